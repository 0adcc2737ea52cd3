package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
)

type projectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Archived    bool   `json:"archived"`
}

type projectResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Archived    bool   `json:"archived"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

func toProjectResponse(p domain.Project) projectResponse {
	return projectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Archived:    p.Archived,
		CreatedAt:   p.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:   p.UpdatedAt.UTC().Format(timeFormat),
	}
}

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.Projects.List(r.Context(), actorFrom(r))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	result := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		result = append(result, toProjectResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": result})
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.svc.Projects.Create(r.Context(), actorFrom(r), domain.Project{
		Name:        req.Name,
		Description: req.Description,
		Archived:    req.Archived,
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectResponse(p))
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Projects.Get(r.Context(), actorFrom(r), chi.URLParam(r, "projectID"))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

func (h *Handler) updateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.svc.Projects.Update(r.Context(), actorFrom(r), domain.Project{
		ID:          chi.URLParam(r, "projectID"),
		Name:        req.Name,
		Description: req.Description,
		Archived:    req.Archived,
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

func (h *Handler) deleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Projects.Delete(r.Context(), actorFrom(r), chi.URLParam(r, "projectID")); err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type projectMemberResponse struct {
	UserID    string `json:"userId"`
	CreatedAt string `json:"createdAt"`
}

func (h *Handler) listProjectMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.svc.Projects.Members(r.Context(), actorFrom(r), chi.URLParam(r, "projectID"))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	result := make([]projectMemberResponse, 0, len(members))
	for _, m := range members {
		result = append(result, projectMemberResponse{UserID: m.UserID, CreatedAt: m.CreatedAt.UTC().Format(timeFormat)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": result})
}

func (h *Handler) addProjectMember(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Projects.AddMember(r.Context(), actorFrom(r), chi.URLParam(r, "projectID"), chi.URLParam(r, "userID"))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projectMemberResponse{UserID: m.UserID, CreatedAt: m.CreatedAt.UTC().Format(timeFormat)})
}

func (h *Handler) removeProjectMember(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Projects.RemoveMember(r.Context(), actorFrom(r), chi.URLParam(r, "projectID"), chi.URLParam(r, "userID"))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type taskRequest struct {
	Title      string `json:"title"`
	Status     string `json:"status"`
	AssigneeID string `json:"assigneeId"`
}

type taskPatchRequest struct {
	Title      *string `json:"title"`
	Status     *string `json:"status"`
	AssigneeID *string `json:"assigneeId"`
}

type taskResponse struct {
	ID         string `json:"id"`
	ProjectID  string `json:"projectId"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	AssigneeID string `json:"assigneeId,omitempty"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

func toTaskResponse(t domain.Task) taskResponse {
	return taskResponse{
		ID:         t.ID,
		ProjectID:  t.ProjectID,
		Title:      t.Title,
		Status:     string(t.Status),
		AssigneeID: t.AssigneeID,
		CreatedAt:  t.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:  t.UpdatedAt.UTC().Format(timeFormat),
	}
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.Tasks.List(r.Context(), actorFrom(r), chi.URLParam(r, "projectID"))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	result := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		result = append(result, toTaskResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": result})
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	t, err := h.svc.Tasks.Create(r.Context(), actorFrom(r), domain.Task{
		ProjectID:  chi.URLParam(r, "projectID"),
		Title:      req.Title,
		Status:     domain.TaskStatus(req.Status),
		AssigneeID: req.AssigneeID,
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskResponse(t))
}

func (h *Handler) updateTask(w http.ResponseWriter, r *http.Request) {
	var req taskPatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	patch := domain.TaskPatch{Title: req.Title, AssigneeID: req.AssigneeID}
	if req.Status != nil {
		status := domain.TaskStatus(*req.Status)
		patch.Status = &status
	}
	t, err := h.svc.Tasks.Update(r.Context(), actorFrom(r), chi.URLParam(r, "taskID"), patch)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Tasks.Delete(r.Context(), actorFrom(r), chi.URLParam(r, "taskID")); err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
