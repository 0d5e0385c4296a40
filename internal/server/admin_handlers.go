package server

import (
	"errors"
	"net/http"
	"time"

	goGate "github.com/MrEthical07/goGate"
	gatemw "github.com/MrEthical07/goGate/middleware"
)

// mustSession returns the session attached by the gate. Handlers behind a
// gate are never reached without one.
func mustSession(r *http.Request) *goGate.Session {
	sess, ok := gatemw.SessionFromRequest(r)
	if !ok {
		panic("server: gated handler reached without a session")
	}
	return sess
}

type recentUserDTO struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// GET /api/admin/stats
func (h *handlers) adminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.Stats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, msgStatsFailed)
		return
	}

	recent := make([]recentUserDTO, 0, len(stats.RecentUsers))
	for _, u := range stats.RecentUsers {
		recent = append(recent, recentUserDTO{
			Name:      u.Name,
			Email:     u.Email,
			Role:      u.Role.String(),
			CreatedAt: u.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, struct {
		TotalUsers  int             `json:"totalUsers"`
		RoleStats   map[string]int  `json:"roleStats"`
		RecentUsers []recentUserDTO `json:"recentUsers"`
	}{
		TotalUsers:  stats.TotalUsers,
		RoleStats:   stats.RoleStats,
		RecentUsers: recent,
	})
}

// GET /api/admin/users
func (h *handlers) adminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list users failed", "error", err)
		writeError(w, http.StatusInternalServerError, msgListUsersFailed)
		return
	}

	out := make([]userDTO, 0, len(users))
	for _, u := range users {
		out = append(out, toUserDTO(u))
	}
	writeJSON(w, http.StatusOK, out)
}

// PATCH /api/admin/users
func (h *handlers) adminSetRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	if req.UserID == "" || req.Role == "" {
		writeError(w, http.StatusBadRequest, msgMissingParams)
		return
	}
	role, ok := exactRole(req.Role)
	if !ok {
		writeError(w, http.StatusBadRequest, msgInvalidRole)
		return
	}

	admin := mustSession(r)
	user, err := h.engine.SetRole(r.Context(), req.UserID, role)
	if err != nil {
		switch {
		case errors.Is(err, goGate.ErrUserNotFound):
			writeError(w, http.StatusNotFound, msgUserNotFound)
		case errors.Is(err, goGate.ErrRoleInvalid):
			writeError(w, http.StatusBadRequest, msgInvalidRole)
		default:
			h.logger.ErrorContext(r.Context(), "role change failed", "user_id", req.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, msgUpdateUserFailed)
		}
		return
	}

	h.logger.InfoContext(r.Context(), "role changed",
		"user_id", user.UserID,
		"role", user.Role.String(),
		"by", admin.UserID,
	)
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// exactRole matches the wire name of a role. Unlike [goGate.ParseRole] it
// accepts neither padding nor other casing.
func exactRole(s string) (goGate.Role, bool) {
	for _, r := range goGate.AllRoles() {
		if r.String() == s {
			return r, true
		}
	}
	return goGate.RoleUnknown, false
}
