package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	goGate "github.com/MrEthical07/goGate"
)

const maxBodyBytes = 1 << 20

// Client-facing error messages.
const (
	msgBadRequest       = "Solicitud inválida"
	msgMissingParams    = "Faltan parámetros requeridos"
	msgInvalidRole      = "Rol inválido"
	msgUserNotFound     = "Usuario no encontrado"
	msgInvalidSignUp    = "Datos de registro inválidos"
	msgPasswordPolicy   = "La contraseña no cumple los requisitos de longitud"
	msgAccountExists    = "El usuario ya existe"
	msgSignUpDisabled   = "El registro está deshabilitado"
	msgBadCredentials   = "Credenciales inválidas"
	msgTooManyAttempts  = "Demasiados intentos, inténtalo más tarde"
	msgInvalidToken     = "Token inválido o expirado"
	msgResetDisabled    = "La recuperación de contraseña está deshabilitada"
	msgUnavailable      = "Servicio no disponible"
	msgAuthError        = "Error de autenticación"
	msgSignOutFailed    = "Error al cerrar sesión"
	msgStatsFailed      = "Error al obtener estadísticas"
	msgListUsersFailed  = "Error al obtener usuarios"
	msgUpdateUserFailed = "Error al actualizar usuario"
	msgInternal         = "Error interno del servidor"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after JSON body")
	}
	return nil
}

type userDTO struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func toUserDTO(u goGate.UserRecord) userDTO {
	return userDTO{
		ID:            u.UserID,
		Name:          u.Name,
		Email:         u.Email,
		Role:          u.Role.String(),
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

type sessionDTO struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type sessionUserDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"emailVerified"`
}

func toSessionUser(s *goGate.Session) sessionUserDTO {
	return sessionUserDTO{
		ID:            s.UserID,
		Name:          s.DisplayName,
		Email:         s.Email,
		Role:          s.Role.String(),
		EmailVerified: s.EmailVerified,
	}
}
