package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lumnicode/engine/internal/api/types"
	"github.com/lumnicode/engine/internal/models"
	"github.com/lumnicode/engine/internal/services"
	appErr "github.com/lumnicode/engine/pkg/errors"
)

type FilesHandler struct {
	files services.FileService
}

func NewFilesHandler(files services.FileService) *FilesHandler {
	return &FilesHandler{files: files}
}

// List answers an empty list when project_id is absent.
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	raw := strings.TrimSpace(r.URL.Query().Get("project_id"))
	if raw == "" {
		writeJSON(w, http.StatusOK, []models.File{})
		return
	}
	projectID, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, appErr.New(appErr.CodeInvalid, "invalid project_id"))
		return
	}
	files, err := h.files.ListFiles(r.Context(), projectID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if files == nil {
		files = []models.File{}
	}
	writeJSON(w, http.StatusOK, files)
}

func (h *FilesHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req types.FileCreateRequest
	if err := bind(r, &req); err != nil {
		writeError(w, err)
		return
	}
	f, err := h.files.CreateFile(r.Context(), userID, &services.CreateFileInput{
		ProjectID: req.ProjectID,
		Name:      req.Name,
		Path:      req.Path,
		Content:   req.Content,
		Language:  req.Language,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *FilesHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	f, err := h.files.GetFile(r.Context(), id, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *FilesHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	var req types.FileUpdateRequest
	if err := bind(r, &req); err != nil {
		writeError(w, err)
		return
	}
	f, err := h.files.UpdateFile(r.Context(), id, userID, &services.UpdateFileInput{
		Name:     req.Name,
		Path:     req.Path,
		Content:  req.Content,
		Language: req.Language,
		Message:  req.Message,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	if err := h.files.DeleteFile(r.Context(), id, userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FilesHandler) Versions(w http.ResponseWriter, r *http.Request) {
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
	versions, err := h.files.ListVersions(r.Context(), id, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if versions == nil {
		versions = []models.FileVersion{}
	}
	writeJSON(w, http.StatusOK, versions)
}
