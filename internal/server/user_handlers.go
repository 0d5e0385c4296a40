package server

import (
	"net/http"
	"strconv"
)

// GET /api/profile
func (h *handlers) profile(w http.ResponseWriter, r *http.Request) {
	sess := mustSession(r)
	writeJSON(w, http.StatusOK, map[string]sessionUserDTO{"profile": toSessionUser(sess)})
}

type userSummaryDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// GET /api/users?query=&page=
func (h *handlers) searchUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	result, err := h.users.Search(r.Context(), query, page)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "user search failed", "error", err)
		writeError(w, http.StatusInternalServerError, msgListUsersFailed)
		return
	}

	users := make([]userSummaryDTO, 0, len(result.Users))
	for _, u := range result.Users {
		users = append(users, userSummaryDTO{ID: u.UserID, Name: u.Name, Email: u.Email})
	}

	writeJSON(w, http.StatusOK, struct {
		Users       []userSummaryDTO `json:"users"`
		TotalPages  int              `json:"totalPages"`
		CurrentPage int              `json:"currentPage"`
		TotalUsers  int              `json:"totalUsers"`
	}{
		Users:       users,
		TotalPages:  result.TotalPages,
		CurrentPage: result.CurrentPage,
		TotalUsers:  result.TotalUsers,
	})
}
