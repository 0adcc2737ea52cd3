package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/usecase"
)

const (
	timeFormat      = "2006-01-02T15:04:05.999999999Z07:00"
	maxJSONBodySize = 1 << 20
)

// Services are the use cases the web API fronts.
type Services struct {
	Auth      *usecase.Authenticator
	Projects  *usecase.ProjectService
	Tasks     *usecase.TaskService
	Members   *usecase.MemberService
	Accounts  *usecase.AccountService
	Documents *usecase.DocumentService
	Activity  *usecase.ActivityService
}

type Handler struct {
	svc Services
	log *slog.Logger
}

func NewHandler(svc Services, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", h.healthz)

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireIdentity)

		pr.Get("/v1/projects", h.listProjects)
		pr.Post("/v1/projects", h.createProject)
		pr.Get("/v1/projects/{projectID}", h.getProject)
		pr.Put("/v1/projects/{projectID}", h.updateProject)
		pr.Delete("/v1/projects/{projectID}", h.deleteProject)

		pr.Get("/v1/projects/{projectID}/members", h.listProjectMembers)
		pr.Put("/v1/projects/{projectID}/members/{userID}", h.addProjectMember)
		pr.Delete("/v1/projects/{projectID}/members/{userID}", h.removeProjectMember)

		pr.Get("/v1/projects/{projectID}/tasks", h.listTasks)
		pr.Post("/v1/projects/{projectID}/tasks", h.createTask)
		pr.Patch("/v1/tasks/{taskID}", h.updateTask)
		pr.Delete("/v1/tasks/{taskID}", h.deleteTask)

		pr.Get("/v1/members", h.listMembers)
		pr.Post("/v1/members", h.inviteMember)
		pr.Put("/v1/members/{userID}/role", h.changeRole)
		pr.Post("/v1/members/{userID}/deactivate", h.deactivateMember)

		pr.Get("/v1/members/{userID}/links", h.listLinks)
		pr.Put("/v1/members/{userID}/links/{provider}", h.linkAccount)
		pr.Delete("/v1/members/{userID}/links/{provider}", h.unlinkAccount)

		pr.Get("/v1/documents", h.listDocuments)
		pr.Post("/v1/documents", h.registerDocument)
		pr.Delete("/v1/documents/{documentID}", h.deleteDocument)

		pr.Get("/v1/activity", h.listActivity)
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type activityResponse struct {
	ID          string         `json:"id"`
	ProjectID   string         `json:"projectId,omitempty"`
	ActorUserID string         `json:"actorUserId"`
	Action      string         `json:"action"`
	EntityType  string         `json:"entityType"`
	EntityID    string         `json:"entityId"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   string         `json:"createdAt"`
}

func (h *Handler) listActivity(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := domain.ActivityFilter{
		ProjectID:  q.Get("project"),
		EntityType: domain.EntityType(q.Get("entity_type")),
		EntityID:   q.Get("entity_id"),
		Limit:      limit,
	}
	if raw := q.Get("before"); raw != "" {
		before, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, domain.CodeValidationFailed, "before must be RFC3339")
			return
		}
		filter.Before = before
	}

	recs, err := h.svc.Activity.List(r.Context(), actorFrom(r), filter)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	result := make([]activityResponse, 0, len(recs))
	for _, rec := range recs {
		result = append(result, activityResponse{
			ID:          rec.ID,
			ProjectID:   rec.ProjectID,
			ActorUserID: rec.ActorUserID,
			Action:      string(rec.Action),
			EntityType:  string(rec.EntityType),
			EntityID:    rec.EntityID,
			Metadata:    rec.Metadata,
			CreatedAt:   rec.CreatedAt.UTC().Format(timeFormat),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": result})
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, domain.CodeValidationFailed, "limit must be integer")
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}

// decodeBody reads exactly one JSON object with no unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeValidationFailed, "invalid json body")
		return false
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeValidationFailed, "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("encode json response", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		slog.Debug("write response", "err", err)
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes the shared error envelope {"error":{"code","message"}}.
func WriteError(w http.ResponseWriter, status int, code domain.Code, message string) {
	writeError(w, status, code, message)
}

func writeError(w http.ResponseWriter, status int, code domain.Code, message string) {
	writeJSON(w, status, map[string]any{"error": errorBody{Code: string(code), Message: message}})
}

// StatusFor maps a domain error code to its HTTP status.
func StatusFor(code domain.Code) int {
	switch code {
	case domain.CodeCrossTenantWrite, domain.CodeNotFound:
		// A foreign row must look exactly like a missing one.
		return http.StatusNotFound
	case domain.CodeAccessDenied, domain.CodeActorRequired:
		return http.StatusForbidden
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized
	case domain.CodeValidationFailed, domain.CodeTenantIDRequired:
		return http.StatusBadRequest
	case domain.CodeBrokerUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) handleDomainError(w http.ResponseWriter, err error) {
	code, ok := domain.CodeOf(err)
	if !ok {
		h.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
		return
	}
	message := err.Error()
	var de *domain.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	if code == domain.CodeCrossTenantWrite {
		code, message = domain.CodeNotFound, "not found"
	}
	status := StatusFor(code)
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		h.log.Error("request failed", "code", code, "err", err)
	}
	writeError(w, status, code, message)
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}
