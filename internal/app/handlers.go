package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/tenantkit/pkg/apierr"
	"github.com/dmitrymomot/tenantkit/pkg/audit"
	"github.com/dmitrymomot/tenantkit/pkg/gate"
	"github.com/dmitrymomot/tenantkit/pkg/pg"
	"github.com/dmitrymomot/tenantkit/pkg/tenancy"
	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

const (
	maxProjectName = 200
	maxRequestBody = 64 << 10
	projectsPage   = 100
)

// Project is a row of the partition's projects table.
type Project struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type handlers struct {
	log     *slog.Logger
	errors  apierr.ErrorHandler
	gates   *gate.Gates
	stores  tenant.StoreFunc
	auditor Auditor
}

// TenantView is the client-facing tenant record. Storage details such as the partition name
// stay server-side.
type TenantView struct {
	ID           uuid.UUID                 `json:"id"`
	Name         string                    `json:"name"`
	Slug         string                    `json:"slug"`
	Tier         tenant.Tier               `json:"tier"`
	Status       tenant.Status             `json:"status"`
	TrialEndsAt  *time.Time                `json:"trial_ends_at,omitempty"`
	Features     tenant.FeatureSet         `json:"features"`
	EntityLimits map[tenant.Resource]int64 `json:"entity_limits"`
	CreatedAt    time.Time                 `json:"created_at"`
}

func newTenantView(t *tenant.Tenant) TenantView {
	return TenantView{
		ID:           t.ID,
		Name:         t.Name,
		Slug:         t.Slug,
		Tier:         t.Tier,
		Status:       t.Status,
		TrialEndsAt:  t.TrialEndsAt,
		Features:     t.Features,
		EntityLimits: t.EntityLimits,
		CreatedAt:    t.CreatedAt,
	}
}

type tenantResponse struct {
	Tenant   TenantView  `json:"tenant"`
	UserID   string      `json:"user_id"`
	Role     tenant.Role `json:"role"`
	ReadOnly bool        `json:"read_only"`
}

func (h *handlers) getTenant(w http.ResponseWriter, r *http.Request) {
	s := tenancy.MustFromContext(r.Context())
	writeJSON(w, http.StatusOK, tenantResponse{
		Tenant:   newTenantView(s.Tenant()),
		UserID:   s.UserID(),
		Role:     s.Role(),
		ReadOnly: s.ReadOnly(),
	})
}

// Tables are unqualified: the bound search_path resolves them inside the tenant's partition.
const (
	listProjects = `
SELECT id, name, created_by, created_at FROM projects
ORDER BY created_at DESC
LIMIT $1`
	insertProject = `
INSERT INTO projects (name, created_by) VALUES ($1, $2)
RETURNING id, name, created_by, created_at`
	deleteProject = `DELETE FROM projects WHERE id = $1 RETURNING id`
)

func (h *handlers) listProjects(w http.ResponseWriter, r *http.Request) {
	s := tenancy.MustFromContext(r.Context())

	rows, err := s.DB().Query(r.Context(), listProjects, projectsPage)
	if err != nil {
		h.errors(w, r, fmt.Errorf("list projects: %w", err))
		return
	}
	defer rows.Close()

	projects := make([]Project, 0)
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedBy, &p.CreatedAt); err != nil {
			h.errors(w, r, fmt.Errorf("scan project: %w", err))
			return
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		h.errors(w, r, fmt.Errorf("list projects: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

type createProjectRequest struct {
	Name string `json:"name"`
}

func (h *handlers) createProject(w http.ResponseWriter, r *http.Request) {
	s := tenancy.MustFromContext(r.Context())

	var req createProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errors(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > maxProjectName {
		h.errors(w, r, invalidRequest("name", fmt.Sprintf("must be 1 to %d characters", maxProjectName)))
		return
	}

	var p Project
	err := s.DB().QueryRow(r.Context(), insertProject, req.Name, s.UserID()).
		Scan(&p.ID, &p.Name, &p.CreatedBy, &p.CreatedAt)
	if err != nil {
		h.errors(w, r, fmt.Errorf("insert project: %w", err))
		return
	}

	h.auditor.Record(r.Context(), "project.created",
		audit.WithResource("project", p.ID.String()),
		audit.WithMetadata("name", p.Name),
	)
	writeJSON(w, http.StatusCreated, p)
}

func (h *handlers) deleteProject(w http.ResponseWriter, r *http.Request) {
	s := tenancy.MustFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.errors(w, r, invalidRequest("id", "must be a UUID"))
		return
	}

	var deleted uuid.UUID
	err = s.DB().QueryRow(r.Context(), deleteProject, id).Scan(&deleted)
	switch {
	case pg.IsNoRows(err):
		h.errors(w, r, notFound("project"))
		return
	case err != nil:
		h.errors(w, r, fmt.Errorf("delete project: %w", err))
		return
	}

	h.auditor.Record(r.Context(), "project.deleted", audit.WithResource("project", id.String()))
	w.WriteHeader(http.StatusNoContent)
}

type usage struct {
	Current int64 `json:"current"`
	Limit   int64 `json:"limit"`
}

func (h *handlers) advancedReport(w http.ResponseWriter, r *http.Request) {
	s := tenancy.MustFromContext(r.Context())

	report := make(map[tenant.Resource]usage, 2)
	for _, res := range []tenant.Resource{tenant.ResourceProjects, tenant.ResourceAPIKeys} {
		current, limit, err := h.gates.Usage(r.Context(), s, res)
		if err != nil {
			h.errors(w, r, fmt.Errorf("usage of %s: %w", res, err))
			return
		}
		report[res] = usage{Current: current, Limit: limit}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tier":  s.Tenant().Tier,
		"usage": report,
	})
}

type setRoleRequest struct {
	Role string `json:"role"`
}

// setMemberRole changes a member's role locally. The identity provider can still overwrite it
// with its next membership event.
func (h *handlers) setMemberRole(w http.ResponseWriter, r *http.Request) {
	s := tenancy.MustFromContext(r.Context())
	ctx := r.Context()

	var req setRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errors(w, r, err)
		return
	}
	requested, err := tenant.ParseRole(req.Role)
	if err != nil {
		h.errors(w, r, invalidRequest("role", "unknown role"))
		return
	}

	store := h.stores(s.DB())
	target, err := store.Membership(ctx, s.TenantID(), chi.URLParam(r, "userID"))
	if errors.Is(err, tenant.ErrMembershipNotFound) {
		h.errors(w, r, notFound("member"))
		return
	}
	if err != nil {
		h.errors(w, r, fmt.Errorf("load member: %w", err))
		return
	}

	if err := gate.CheckRoleChange(s.Membership(), target, requested); err != nil {
		h.errors(w, r, err)
		return
	}

	previous := target.Role
	target.Role = requested
	if err := store.UpsertMembership(ctx, target); err != nil {
		h.errors(w, r, fmt.Errorf("update member: %w", err))
		return
	}

	h.auditor.Record(ctx, "member.role_changed",
		audit.WithResource("membership", target.UserID),
		audit.WithMetadata("from", previous.String()),
		audit.WithMetadata("to", requested.String()),
	)
	writeJSON(w, http.StatusOK, map[string]any{"user_id": target.UserID, "role": requested})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apierr.New(http.StatusBadRequest, apierr.CodeInvalidRequest, "The request body is not valid JSON.").
			WithCause(err)
	}
	return nil
}

func invalidRequest(field, reason string) error {
	return apierr.New(http.StatusBadRequest, apierr.CodeInvalidRequest, "The request is invalid.").
		WithDetails(map[string]any{"field": field, "reason": reason})
}

func notFound(resource string) error {
	return apierr.New(http.StatusNotFound, apierr.CodeNotFound, "Not found.").
		WithDetails(map[string]any{"resource": resource})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
