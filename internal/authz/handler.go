package authz

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-iam/gatehouse/internal/identity"
	"github.com/gatehouse-iam/gatehouse/internal/platform/httpx"
)

// Handler exposes the administrative JSON API for roles and assignments.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    Middleware
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		guard:    guard,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers the API routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/roles", func(r chi.Router) {
		r.With(h.guard.RequireAny(PermRoleList)).Get("/", h.listRoles)
		r.With(h.guard.RequireAll(PermRoleCreate)).Post("/", h.createRole)
		r.With(h.guard.RequireAny(PermRoleRead)).Get("/{roleID}", h.getRole)
		r.With(h.guard.RequireAll(PermRoleDelete)).Delete("/{roleID}", h.deleteRole)
		r.With(h.guard.RequireAll(PermRolePermissions)).Put("/{roleID}/permissions", h.updateRolePermissions)
		r.With(h.guard.RequireAll(PermRoleUpdate)).Post("/{roleID}/activate", h.activateRole)
		r.With(h.guard.RequireAll(PermRoleUpdate)).Post("/{roleID}/deactivate", h.deactivateRole)
	})
	r.Route("/users/{userID}", func(r chi.Router) {
		r.With(h.guard.RequireAll(PermUserRoles)).Post("/roles", h.assignRole)
		r.With(h.guard.RequireAll(PermUserRoles)).Delete("/roles/{roleID}", h.revokeRole)
		r.With(h.guard.RequireAny(PermUserRoles, PermRoleRead)).Get("/roles", h.listUserRoles)
		r.With(h.guard.RequireAny(PermUserRoles)).Get("/permissions", h.userPermissions)
	})
	r.Get("/me/permissions", h.myPermissions)
}

type roleResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toRoleResponse(role Role) roleResponse {
	return roleResponse{
		ID:          role.ID,
		Name:        role.Name,
		Code:        role.Code,
		Description: role.Description,
		IsActive:    role.IsActive,
		Permissions: role.Permissions.Tokens(),
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

type createRoleRequest struct {
	Name        string   `json:"name" validate:"required"`
	Code        string   `json:"code" validate:"required"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions" validate:"dive,required"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), actorID(r), req.Name, req.Code, req.Description, req.Permissions)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), actorID(r), id); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

// Permissions may be empty: replacing a role's set with nothing is a
// legitimate way to strip it of every grant.
type updatePermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"dive,required"`
}

func (h *Handler) updateRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	var req updatePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.UpdateRolePermissions(r.Context(), actorID(r), id, req.Permissions); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) activateRole(w http.ResponseWriter, r *http.Request) {
	h.toggleRole(w, r, true)
}

func (h *Handler) deactivateRole(w http.ResponseWriter, r *http.Request) {
	h.toggleRole(w, r, false)
}

func (h *Handler) toggleRole(w http.ResponseWriter, r *http.Request, active bool) {
	id, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	var err error
	if active {
		err = h.service.ActivateRole(r.Context(), actorID(r), id)
	} else {
		err = h.service.DeactivateRole(r.Context(), actorID(r), id)
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

type assignRoleRequest struct {
	RoleID int64 `json:"role_id" validate:"required"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AssignRole(r.Context(), actorID(r), userID, req.RoleID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"user_id": userID, "role_id": req.RoleID})
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.RevokeRole(r.Context(), actorID(r), userID, roleID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) listUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	roles, err := h.service.ListUserRoles(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "roles": out})
}

func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	h.writePermissions(w, r, userID)
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity.UserIDFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required")
		return
	}
	h.writePermissions(w, r, userID)
}

func (h *Handler) writePermissions(w http.ResponseWriter, r *http.Request, userID int64) {
	tokens, err := h.service.EffectivePermissions(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if tokens == nil {
		tokens = []string{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "permissions": tokens})
}

// respondError maps the domain taxonomy onto problem responses.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRoleNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNotAssigned):
		httpx.Problem(w, http.StatusNotFound, "Not Assigned", err.Error())
	case errors.Is(err, ErrDuplicateName), errors.Is(err, ErrDuplicateCode), errors.Is(err, ErrAlreadyAssigned):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrReferentialViolation):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unknown Reference", err.Error())
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrInvalidName):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("authz request failed", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func actorID(r *http.Request) int64 {
	if id, ok := identity.UserIDFromContext(r.Context()); ok {
		return id
	}
	// Bootstrap key callers act as the system actor.
	return 0
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+name)
		return 0, false
	}
	return id, true
}
