package access

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nyumbani/nyumbani-access/internal/identity"
	"github.com/nyumbani/nyumbani-access/internal/shared"
)

type stubDirectory struct {
	users map[uuid.UUID]*identity.User
	err   error
}

func (d *stubDirectory) FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	if d.err != nil {
		return nil, d.err
	}
	user, ok := d.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

type handlerFixture struct {
	repo      *stubRepo
	service   *Service
	directory *stubDirectory
	router    chi.Router
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	repo := newStubRepo()
	svc := NewService(repo, nil, nil)
	directory := &stubDirectory{users: make(map[uuid.UUID]*identity.User)}
	handler := NewHandler(nil, svc, directory, Guard{Service: svc})

	router := chi.NewRouter()
	router.Route("/access", handler.MountRoutes)
	return &handlerFixture{repo: repo, service: svc, directory: directory, router: router}
}

func (f *handlerFixture) addDirectoryUser(role identity.CoarseRole) uuid.UUID {
	id := f.repo.addUser()
	f.directory.users[id] = &identity.User{ID: id, CoarseRole: role, IsActive: true}
	return id
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any, p *identity.Principal) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if p != nil {
		req = req.WithContext(identity.ContextWithPrincipal(req.Context(), *p))
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func superAdmin() *identity.Principal {
	return &identity.Principal{UserID: uuid.New(), CoarseRole: identity.RoleSuperAdmin}
}

func TestMyPermissionsRequiresSession(t *testing.T) {
	f := newHandlerFixture(t)

	rr := f.do(t, http.MethodGet, "/access/me/permissions", nil, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRoleRoundTrip(t *testing.T) {
	f := newHandlerFixture(t)
	admin := superAdmin()

	rr := f.do(t, http.MethodPut, "/access/roles", map[string]any{
		"name":        "Listings Ops",
		"description": "Listing review",
	}, admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("upsert role: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Name != "Listings Ops" || created.ID == 0 {
		t.Fatalf("unexpected role: %+v", created)
	}

	rr = f.do(t, http.MethodPut, fmt.Sprintf("/access/roles/%d/grants", created.ID), map[string]any{
		"permission": "APPROVE_LISTINGS",
		"allow":      true,
	}, admin)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("set grant: expected 204, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodGet, fmt.Sprintf("/access/roles/%d/grants", created.ID), nil, admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("list grants: expected 200, got %d", rr.Code)
	}
	var grants []struct {
		Permission string `json:"permission"`
		Allow      bool   `json:"allow"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&grants); err != nil {
		t.Fatalf("decode grants: %v", err)
	}
	if len(grants) != 1 || grants[0].Permission != "APPROVE_LISTINGS" || !grants[0].Allow {
		t.Fatalf("unexpected grants: %+v", grants)
	}
}

func TestSetGrantUnknownPermissionIsServerError(t *testing.T) {
	f := newHandlerFixture(t)
	admin := superAdmin()

	rr := f.do(t, http.MethodPut, "/access/roles", map[string]any{"name": "Support"}, admin)
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rr = f.do(t, http.MethodPut, fmt.Sprintf("/access/roles/%d/grants", created.ID), map[string]any{
		"permission": "NOT_A_TAG",
		"allow":      true,
	}, admin)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for out-of-catalog tag, got %d", rr.Code)
	}
}

func TestAttachRoleUnknownUser(t *testing.T) {
	f := newHandlerFixture(t)
	admin := superAdmin()

	rr := f.do(t, http.MethodPut, "/access/roles", map[string]any{"name": "Support"}, admin)
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rr = f.do(t, http.MethodPut, fmt.Sprintf("/access/users/%s/roles", uuid.New()), map[string]any{
		"role_id": created.ID,
	}, admin)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown user, got %d", rr.Code)
	}
}

func TestDeleteRoleInUseConflicts(t *testing.T) {
	f := newHandlerFixture(t)
	admin := superAdmin()
	userID := f.addDirectoryUser(identity.RoleAdmin)

	rr := f.do(t, http.MethodPut, "/access/roles", map[string]any{"name": "Support"}, admin)
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rr = f.do(t, http.MethodPut, fmt.Sprintf("/access/users/%s/roles", userID), map[string]any{
		"role_id": created.ID,
	}, admin)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("attach: expected 204, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodDelete, fmt.Sprintf("/access/roles/%d", created.ID), nil, admin)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 while role assigned, got %d", rr.Code)
	}
}

func TestAdminRoutesDenyWithoutGrant(t *testing.T) {
	f := newHandlerFixture(t)
	userID := f.addDirectoryUser(identity.RoleAdmin)
	p := &identity.Principal{UserID: userID, CoarseRole: identity.RoleAdmin}

	rr := f.do(t, http.MethodGet, "/access/roles", nil, p)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without VIEW_ROLE_DEFINITIONS, got %d", rr.Code)
	}

	rr = f.do(t, http.MethodPut, "/access/roles", map[string]any{"name": "Support"}, p)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without EDIT_ROLE_DEFINITIONS, got %d", rr.Code)
	}
}

func TestUserPermissionsCompactWildcard(t *testing.T) {
	f := newHandlerFixture(t)
	admin := superAdmin()
	targetID := f.addDirectoryUser(identity.RoleSuperAdmin)

	rr := f.do(t, http.MethodGet, fmt.Sprintf("/access/users/%s/permissions?compact=1", targetID), nil, admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		UserID      string   `json:"user_id"`
		Permissions []string `json:"permissions"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Permissions) != 1 || resp.Permissions[0] != "*" {
		t.Fatalf("expected wildcard shorthand, got %v", resp.Permissions)
	}

	// A non-admin target always gets the concrete set, compact or not.
	regularID := f.addDirectoryUser(identity.RoleRenter)
	rr = f.do(t, http.MethodGet, fmt.Sprintf("/access/users/%s/permissions?compact=1", regularID), nil, admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp.Permissions = nil
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, perm := range resp.Permissions {
		if perm == "*" {
			t.Fatalf("wildcard must be reserved for SUPER_ADMIN, got %v", resp.Permissions)
		}
	}
}

func TestUserPermissionsUnknownUser(t *testing.T) {
	f := newHandlerFixture(t)

	rr := f.do(t, http.MethodGet, fmt.Sprintf("/access/users/%s/permissions", uuid.New()), nil, superAdmin())
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown target, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestUserPermissionsDirectoryFailureIsServerError(t *testing.T) {
	f := newHandlerFixture(t)
	targetID := f.addDirectoryUser(identity.RoleRenter)
	f.directory.err = errors.New("connection refused")

	rr := f.do(t, http.MethodGet, fmt.Sprintf("/access/users/%s/permissions", targetID), nil, superAdmin())
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("directory outage must not read as a bad request, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestMePermissionsListsEffectiveSet(t *testing.T) {
	f := newHandlerFixture(t)
	admin := superAdmin()
	userID := f.addDirectoryUser(identity.RoleAdmin)

	rr := f.do(t, http.MethodPut, "/access/roles", map[string]any{"name": "Content"}, admin)
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	f.do(t, http.MethodPut, fmt.Sprintf("/access/roles/%d/grants", created.ID), map[string]any{
		"permission": "MANAGE_BLOG", "allow": true,
	}, admin)
	f.do(t, http.MethodPut, fmt.Sprintf("/access/users/%s/roles", userID), map[string]any{
		"role_id": created.ID,
	}, admin)

	p := &identity.Principal{UserID: userID, CoarseRole: identity.RoleAdmin}
	rr = f.do(t, http.MethodGet, "/access/me/permissions", nil, p)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Permissions []string `json:"permissions"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Permissions) != 1 || resp.Permissions[0] != "MANAGE_BLOG" {
		t.Fatalf("expected [MANAGE_BLOG], got %v", resp.Permissions)
	}
}
