package handlers

import (
	"net/http"

	"github.com/lumnicode/engine/internal/api/types"
	"github.com/lumnicode/engine/internal/models"
	"github.com/lumnicode/engine/internal/services"
)

type APIKeysHandler struct {
	keys services.APIKeyService
}

func NewAPIKeysHandler(keys services.APIKeyService) *APIKeysHandler {
	return &APIKeysHandler{keys: keys}
}

func (h *APIKeysHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	keys, err := h.keys.ListKeys(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if keys == nil {
		keys = []models.APIKey{}
	}
	writeJSON(w, http.StatusOK, keys)
}

// Create validates the key with its provider before storing it.
func (h *APIKeysHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req types.APIKeyCreateRequest
	if err := bind(r, &req); err != nil {
		writeError(w, err)
		return
	}
	k, err := h.keys.AddKey(r.Context(), userID, &services.AddKeyInput{
		Provider:           req.Provider,
		APIKey:             req.APIKey,
		DisplayName:        req.DisplayName,
		MonthlyLimit:       req.MonthlyLimit,
		RateLimitPerMinute: req.RateLimitPerMinute,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, k)
}

func (h *APIKeysHandler) Usage(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := h.keys.UsageStats(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *APIKeysHandler) Providers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.keys.Providers())
}

func (h *APIKeysHandler) Validate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	results, err := h.keys.ValidateUserKeys(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []services.KeyValidation{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *APIKeysHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.keys.DeactivateKey(r.Context(), id, userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_active": false})
}

func (h *APIKeysHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.keys.DeleteKey(r.Context(), id, userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
