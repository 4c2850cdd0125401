package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/lumnicode/engine/internal/api/types"
	"github.com/lumnicode/engine/internal/llm"
	"github.com/lumnicode/engine/internal/models"
	"github.com/lumnicode/engine/internal/services"
)

type AIHandler struct {
	generation services.GenerationService
	assist     services.AssistService
}

func NewAIHandler(generation services.GenerationService, assist services.AssistService) *AIHandler {
	return &AIHandler{generation: generation, assist: assist}
}

// Assist answers 200 even when no provider could help; the suggestion says why.
func (h *AIHandler) Assist(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req types.AssistRequest
	if err := bind(r, &req); err != nil {
		writeError(w, err)
		return
	}
	in := &services.AssistInput{FileContent: req.FileContent, Prompt: req.Prompt, Language: req.Language}
	if req.CursorPosition != nil {
		in.Line, in.Column = req.CursorPosition.Line, req.CursorPosition.Column
	}
	res, err := h.assist.Assist(r.Context(), userID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.AssistResponse{Suggestion: res.Suggestion, Confidence: res.Confidence})
}

func (h *AIHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	projectID, err := pathUUID(r, "projectId")
	if err != nil {
		writeError(w, err)
		return
	}
	var req types.GenerateRequest
	if err := bind(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sess, err := h.generation.StartGeneration(r.Context(), projectID, userID, &services.StartGenerationInput{
		Prompt:    req.Prompt,
		TechStack: req.TechStack,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.GenerateResponse{
		SessionID: sess.ID.String(),
		Status:    "started",
		Message:   "AI generation started",
	})
}

func (h *AIHandler) Session(w http.ResponseWriter, r *http.Request) {
	h.sessionCommand(w, r, h.generation.GetSession)
}

func (h *AIHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.sessionCommand(w, r, h.generation.StopSession)
}

func (h *AIHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.sessionCommand(w, r, h.generation.PauseSession)
}

func (h *AIHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.sessionCommand(w, r, h.generation.ResumeSession)
}

type sessionFunc func(ctx context.Context, sessionID, userID uuid.UUID) (*models.GenerationSession, error)

func (h *AIHandler) sessionCommand(w http.ResponseWriter, r *http.Request, fn sessionFunc) {
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
	sess, err := fn(r.Context(), id, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *AIHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	projectID, err := pathUUID(r, "projectId")
	if err != nil {
		writeError(w, err)
		return
	}
	sessions, err := h.generation.History(r.Context(), projectID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []models.GenerationSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *AIHandler) Providers(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	providers, err := h.generation.Providers(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if providers == nil {
		providers = []llm.ProviderInfo{}
	}
	writeJSON(w, http.StatusOK, providers)
}
