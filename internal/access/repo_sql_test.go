package access

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505", ConstraintName: "role_definitions_name_key"}
}

func TestWithConflictRetrySecondAttemptWins(t *testing.T) {
	calls := 0
	err := withConflictRetry(func() error {
		calls++
		if calls == 1 {
			return uniqueViolation()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retry should have recovered, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestWithConflictRetrySecondFailureSurfaces(t *testing.T) {
	calls := 0
	err := withConflictRetry(func() error {
		calls++
		return uniqueViolation()
	})
	if calls != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", calls)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		t.Fatalf("second failure should surface the raw violation, got %v", err)
	}
}

func TestWithConflictRetryDoesNotRetryOtherErrors(t *testing.T) {
	boom := errors.New("connection reset")
	calls := 0
	err := withConflictRetry(func() error {
		calls++
		return boom
	})
	if calls != 1 {
		t.Fatalf("non-conflict errors must not be retried, got %d attempts", calls)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMapAssignmentFK(t *testing.T) {
	passthrough := errors.New("read timeout")
	cases := []struct {
		name string
		in   error
		want error
	}{
		{
			name: "dangling user",
			in:   &pgconn.PgError{Code: "23503", ConstraintName: "user_roles_user_id_fkey"},
			want: ErrUnknownUser,
		},
		{
			name: "dangling role",
			in:   &pgconn.PgError{Code: "23503", ConstraintName: "user_roles_role_id_fkey"},
			want: ErrUnknownRole,
		},
		{
			name: "unique violation passes through",
			in:   &pgconn.PgError{Code: "23505", ConstraintName: "user_roles_pkey"},
		},
		{
			name: "plain error passes through",
			in:   passthrough,
		},
		{
			name: "nil stays nil",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapAssignmentFK(tc.in)
			if tc.want != nil {
				if !errors.Is(got, tc.want) {
					t.Fatalf("mapped to %v, want %v", got, tc.want)
				}
				return
			}
			if !errors.Is(got, tc.in) {
				t.Fatalf("expected passthrough of %v, got %v", tc.in, got)
			}
		})
	}
}

func TestViolationPredicates(t *testing.T) {
	if !isUniqueViolation(uniqueViolation()) {
		t.Fatal("23505 should read as a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("23503 is not a unique violation")
	}
	if !isFKViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("23503 should read as an FK violation")
	}
	if isFKViolation(errors.New("boom")) {
		t.Fatal("plain errors are not FK violations")
	}
}
