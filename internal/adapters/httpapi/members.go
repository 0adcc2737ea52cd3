package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
)

type memberResponse struct {
	UserID      string `json:"userId"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Role        string `json:"role"`
	Active      bool   `json:"active"`
}

func toMemberResponse(m domain.Member) memberResponse {
	return memberResponse{UserID: m.UserID, Email: m.Email, DisplayName: m.DisplayName, Role: string(m.Role), Active: m.Active}
}

type inviteRequest struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

type roleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.svc.Members.List(r.Context(), actorFrom(r))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	result := make([]memberResponse, 0, len(members))
	for _, m := range members {
		result = append(result, toMemberResponse(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": result})
}

func (h *Handler) inviteMember(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	m, err := h.svc.Members.Invite(r.Context(), actorFrom(r), domain.Member{
		UserID:      req.UserID,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Role:        domain.Role(req.Role),
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberResponse(m))
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	if err := h.svc.Members.ChangeRole(r.Context(), actorFrom(r), chi.URLParam(r, "userID"), role); err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"userId": chi.URLParam(r, "userID"), "role": string(role)})
}

func (h *Handler) deactivateMember(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Members.Deactivate(r.Context(), actorFrom(r), chi.URLParam(r, "userID")); err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deactivated": true})
}

type linkRequest struct {
	ExternalID string `json:"externalId"`
}

type linkResponse struct {
	UserID     string `json:"userId"`
	Provider   string `json:"provider"`
	ExternalID string `json:"externalId"`
	CreatedAt  string `json:"createdAt"`
}

func toLinkResponse(l domain.ExternalLink) linkResponse {
	return linkResponse{UserID: l.UserID, Provider: l.Provider, ExternalID: l.ExternalID, CreatedAt: l.CreatedAt.UTC().Format(timeFormat)}
}

func (h *Handler) listLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.svc.Accounts.List(r.Context(), actorFrom(r), chi.URLParam(r, "userID"))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	result := make([]linkResponse, 0, len(links))
	for _, l := range links {
		result = append(result, toLinkResponse(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": result})
}

func (h *Handler) linkAccount(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	l, err := h.svc.Accounts.Link(r.Context(), actorFrom(r), domain.ExternalLink{
		UserID:     chi.URLParam(r, "userID"),
		Provider:   chi.URLParam(r, "provider"),
		ExternalID: req.ExternalID,
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLinkResponse(l))
}

func (h *Handler) unlinkAccount(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Accounts.Unlink(r.Context(), actorFrom(r), chi.URLParam(r, "userID"), chi.URLParam(r, "provider"))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type documentRequest struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type documentResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
	CreatedAt   string `json:"createdAt"`
}

func toDocumentResponse(d domain.Document) documentResponse {
	return documentResponse{ID: d.ID, Name: d.Name, ContentType: d.ContentType, SizeBytes: d.SizeBytes, CreatedAt: d.CreatedAt.UTC().Format(timeFormat)}
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.Documents.List(r.Context(), actorFrom(r))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	result := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		result = append(result, toDocumentResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": result})
}

func (h *Handler) registerDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := h.svc.Documents.Register(r.Context(), actorFrom(r), domain.Document{
		Name:        req.Name,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentResponse(d))
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Documents.Delete(r.Context(), actorFrom(r), chi.URLParam(r, "documentID")); err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
