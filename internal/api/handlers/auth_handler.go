package handlers

import (
	"net/http"

	"github.com/lumnicode/engine/internal/api/middleware"
	"github.com/lumnicode/engine/internal/services"
	appErr "github.com/lumnicode/engine/pkg/errors"
)

// AuthHandler exposes the signed-in user. Sign-in itself happens at Clerk.
type AuthHandler struct {
	users services.UserService
}

func NewAuthHandler(users services.UserService) *AuthHandler {
	return &AuthHandler{users: users}
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, appErr.New(appErr.CodeUnauthorized, "authentication required"))
		return
	}
	fresh, err := h.users.GetUser(r.Context(), u.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fresh)
}
