package handlers

import (
	"net/http"
	"strconv"

	"github.com/lumnicode/engine/internal/api/types"
	"github.com/lumnicode/engine/internal/models"
	"github.com/lumnicode/engine/internal/services"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type ProjectsHandler struct {
	projects services.ProjectService
}

func NewProjectsHandler(projects services.ProjectService) *ProjectsHandler {
	return &ProjectsHandler{projects: projects}
}

func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > maxPageSize {
		size = defaultPageSize
	}

	items, total, err := h.projects.ListProjects(r.Context(), userID, &services.ProjectFilters{
		Status:   q.Get("status"),
		Search:   q.Get("search"),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []models.Project{}
	}
	writePage(w, r, items, page, size, total)
}

func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req types.ProjectCreateRequest
	if err := bind(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.projects.CreateProject(r.Context(), userID, &services.CreateProjectInput{
		Name:        req.Name,
		Description: req.Description,
		TechStack:   req.TechStack,
		ProjectType: req.ProjectType,
		Template:    req.Template,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	p, err := h.projects.GetProject(r.Context(), id, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProjectsHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	var req types.ProjectUpdateRequest
	if err := bind(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.projects.UpdateProject(r.Context(), id, userID, &services.UpdateProjectInput{
		Name:        req.Name,
		Description: req.Description,
		TechStack:   req.TechStack,
		ProjectType: req.ProjectType,
		Status:      req.Status,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	if err := h.projects.DeleteProject(r.Context(), id, userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectsHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
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
	snaps, err := h.projects.ListSnapshots(r.Context(), id, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if snaps == nil {
		snaps = []models.ProjectSnapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (h *ProjectsHandler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
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
	var req types.SnapshotCreateRequest
	if err := bind(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s, err := h.projects.CreateSnapshot(r.Context(), id, userID, req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *ProjectsHandler) RestoreSnapshot(w http.ResponseWriter, r *http.Request) {
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
	snapshotID, err := pathUUID(r, "snapshotId")
	if err != nil {
		writeError(w, err)
		return
	}
	files, err := h.projects.RestoreSnapshot(r.Context(), id, snapshotID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"restored_files": len(files), "files": files})
}
