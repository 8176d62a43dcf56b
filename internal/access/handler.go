package access

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nyumbani/nyumbani-access/internal/catalog"
	"github.com/nyumbani/nyumbani-access/internal/identity"
	"github.com/nyumbani/nyumbani-access/internal/platform/httpx"
	"github.com/nyumbani/nyumbani-access/internal/shared"
)

// Directory resolves a user id to its identity record. The handler needs it
// to learn the coarse role when computing effective sets for other users.
type Directory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

// Handler exposes the administrative JSON API for roles, grants,
// assignments and overrides. Its own routes are gated recursively through
// the Guard.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	directory Directory
	guard     Guard
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, directory Directory, guard Guard) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		directory: directory,
		guard:     guard,
		validator: validator.New(),
	}
}

// MountRoutes registers the access admin routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me/permissions", h.myPermissions)

	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(catalog.ViewRoleDefinitions))
		r.Get("/permissions", h.listCatalog)
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{roleID}/grants", h.listGrants)
		r.Get("/users/{userID}/roles", h.listUserRoles)
		r.Get("/users/{userID}/overrides", h.listOverrides)
		r.Get("/users/{userID}/permissions", h.userPermissions)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(catalog.EditRoleDefinitions))
		r.Put("/roles", h.upsertRole)
		r.Delete("/roles/{roleID}", h.deleteRole)
		r.Put("/roles/{roleID}/grants", h.setGrant)
		r.Put("/users/{userID}/roles", h.attachRole)
		r.Delete("/users/{userID}/roles/{roleID}", h.detachRole)
		r.Put("/users/{userID}/overrides", h.setOverride)
		r.Delete("/users/{userID}/overrides/{permission}", h.clearOverride)
	})
}

type roleResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type grantResponse struct {
	Permission string `json:"permission"`
	Allow      bool   `json:"allow"`
}

type overrideResponse struct {
	Permission string `json:"permission"`
	Allow      bool   `json:"allow"`
}

type upsertRoleRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=64"`
	Description string `json:"description" validate:"max=255"`
}

type setGrantRequest struct {
	Permission string `json:"permission" validate:"required"`
	Allow      bool   `json:"allow"`
}

type attachRoleRequest struct {
	RoleID int64 `json:"role_id" validate:"required,gt=0"`
}

type setOverrideRequest struct {
	Permission string `json:"permission" validate:"required"`
	Allow      bool   `json:"allow"`
}

type permissionsResponse struct {
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) listCatalog(w http.ResponseWriter, r *http.Request) {
	perms := catalog.All()
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"version":     catalog.Version,
		"permissions": out,
	})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoleDefinitions(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]roleResponse, len(roles))
	for i, role := range roles {
		out[i] = roleResponse{ID: role.ID, Name: role.Name, Description: role.Description}
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) upsertRole(w http.ResponseWriter, r *http.Request) {
	var req upsertRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.UpsertRole(r.Context(), h.actor(r), req.Name, req.Description)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roleResponse{ID: role.ID, Name: role.Name, Description: role.Description})
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), h.actor(r), roleID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	grants, err := h.service.ListGrants(r.Context(), roleID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]grantResponse, len(grants))
	for i, g := range grants {
		out[i] = grantResponse{Permission: string(g.Permission), Allow: g.Allow}
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) setGrant(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	var req setGrantRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.SetGrant(r.Context(), h.actor(r), roleID, catalog.Permission(req.Permission), req.Allow); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	roles, err := h.service.ListRoles(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]roleResponse, len(roles))
	for i, role := range roles {
		out[i] = roleResponse{ID: role.ID, Name: role.Name, Description: role.Description}
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) attachRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req attachRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.AttachRole(r.Context(), h.actor(r), userID, req.RoleID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) detachRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	if err := h.service.DetachRole(r.Context(), h.actor(r), userID, roleID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listOverrides(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	overrides, err := h.service.ListOverrides(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]overrideResponse, len(overrides))
	for i, ov := range overrides {
		out[i] = overrideResponse{Permission: string(ov.Permission), Allow: ov.Allow}
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) setOverride(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req setOverrideRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.SetOverride(r.Context(), h.actor(r), userID, catalog.Permission(req.Permission), req.Allow); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearOverride(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	perm := catalog.Permission(chi.URLParam(r, "permission"))
	if err := h.service.ClearOverride(r.Context(), h.actor(r), userID, perm); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// myPermissions returns the caller's effective set so clients can gate
// their own affordances. The server-side Guard stays authoritative.
func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no active session")
		return
	}
	h.writePermissions(w, r, p)
}

func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	user, err := h.directory.FindByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusBadRequest, "Unknown User", "user does not exist")
			return
		}
		h.respondError(w, err)
		return
	}
	h.writePermissions(w, r, identity.Principal{UserID: user.ID, CoarseRole: user.CoarseRole})
}

func (h *Handler) writePermissions(w http.ResponseWriter, r *http.Request, p identity.Principal) {
	perms, err := h.service.EffectivePermissions(r.Context(), p)
	if err != nil {
		h.respondError(w, err)
		return
	}
	// The wildcard is a display shorthand at this boundary only; the
	// resolver always produces a concrete set.
	if r.URL.Query().Get("compact") == "1" && p.IsSuperAdmin() {
		httpx.JSON(w, http.StatusOK, permissionsResponse{UserID: p.UserID.String(), Permissions: []string{"*"}})
		return
	}
	out := make([]string, len(perms))
	for i, perm := range perms {
		out[i] = string(perm)
	}
	httpx.JSON(w, http.StatusOK, permissionsResponse{UserID: p.UserID.String(), Permissions: out})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) roleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Role ID", "role id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid User ID", "user id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) actor(r *http.Request) uuid.UUID {
	if p, ok := identity.PrincipalFromContext(r.Context()); ok {
		return p.UserID
	}
	return uuid.Nil
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownUser), errors.Is(err, ErrUnknownRole):
		httpx.Problem(w, http.StatusBadRequest, "Unknown Reference", "referenced user or role does not exist")
	case errors.Is(err, ErrRoleInUse):
		httpx.Problem(w, http.StatusConflict, "Role In Use", "role is still assigned to users")
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	default:
		// ErrUnknownPermission deliberately lands here: a tag outside the
		// catalog is a programmer or config bug, not user input.
		if h.logger != nil {
			h.logger.Error("access handler", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
