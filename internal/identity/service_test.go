package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nyumbani/nyumbani-access/internal/shared"
)

type stubUserRepo struct {
	byEmail  map[string]*User
	sessions map[string]uuid.UUID
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{
		byEmail:  make(map[string]*User),
		sessions: make(map[string]uuid.UUID),
	}
}

func (s *stubUserRepo) addUser(t *testing.T, email, password string, role CoarseRole, active bool) *User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		CoarseRole:   role,
		IsActive:     active,
	}
	s.byEmail[email] = user
	return user
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	user, ok := s.byEmail[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

func (s *stubUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	for _, user := range s.byEmail {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubUserRepo) CreateSession(ctx context.Context, id string, userID uuid.UUID, expiresAt time.Time, ip, ua string) error {
	s.sessions[id] = userID
	return nil
}

func (s *stubUserRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

var _ Repository = (*stubUserRepo)(nil)

func TestAuthenticate(t *testing.T) {
	repo := newStubUserRepo()
	user := repo.addUser(t, "admin@nyumbani.local", "admin12345", RoleAdmin, true)
	svc := NewService(repo)
	ctx := context.Background()

	got, err := svc.Authenticate(ctx, "admin@nyumbani.local", "admin12345")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("wrong user returned")
	}
}

// Wrong password, unknown email and a suspended account are
// indistinguishable to the caller.
func TestAuthenticateFailuresCollapse(t *testing.T) {
	repo := newStubUserRepo()
	repo.addUser(t, "admin@nyumbani.local", "admin12345", RoleAdmin, true)
	repo.addUser(t, "gone@nyumbani.local", "gone123456", RoleAdmin, false)
	svc := NewService(repo)
	ctx := context.Background()

	cases := []struct {
		name, email, password string
	}{
		{"wrong password", "admin@nyumbani.local", "nope"},
		{"unknown email", "ghost@nyumbani.local", "admin12345"},
		{"inactive user", "gone@nyumbani.local", "gone123456"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Authenticate(ctx, tc.email, tc.password)
			if !errors.Is(err, shared.ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestParseCoarseRole(t *testing.T) {
	cases := map[string]CoarseRole{
		"SUPER_ADMIN": RoleSuperAdmin,
		"admin":       RoleAdmin,
		" Lister ":    RoleLister,
		"AGENT":       RoleAgent,
		"RENTER":      RoleRenter,
		"":            RoleRenter,
		"wizard":      RoleRenter,
	}
	for raw, want := range cases {
		if got := ParseCoarseRole(raw); got != want {
			t.Fatalf("ParseCoarseRole(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	p := Principal{UserID: uuid.New(), CoarseRole: RoleSuperAdmin}

	ctx := ContextWithPrincipal(context.Background(), p)
	got, ok := PrincipalFromContext(ctx)
	if !ok || got != p {
		t.Fatalf("round trip failed: %+v ok=%v", got, ok)
	}
	if !got.IsSuperAdmin() {
		t.Fatalf("expected super admin")
	}

	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatalf("empty context must not hold a principal")
	}
}
