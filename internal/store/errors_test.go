package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestTranslate(t *testing.T) {
	plain := errors.New("connection reset")

	tests := []struct {
		name         string
		err          error
		wantConflict bool
		constraint   string
	}{
		{"unique", &pq.Error{Code: "23505", Constraint: "users_email_key"}, true, "users_email_key"},
		{"foreign key", fmt.Errorf("delete: %w", &pq.Error{Code: "23503", Constraint: "products_owner_id_fkey"}), true, "products_owner_id_fkey"},
		{"check", &pq.Error{Code: "23514"}, false, ""},
		{"other", plain, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(tt.err)
			if errors.Is(got, ErrConflict) != tt.wantConflict {
				t.Fatalf("translate(%v) conflict = %v, want %v", tt.err, !tt.wantConflict, tt.wantConflict)
			}
			if !tt.wantConflict {
				if got != tt.err {
					t.Fatalf("non-conflict error was rewritten: %v", got)
				}
				return
			}
			var ce *ConflictError
			if !errors.As(got, &ce) || ce.Constraint != tt.constraint {
				t.Fatalf("constraint = %+v, want %q", ce, tt.constraint)
			}
			var pqErr *pq.Error
			if !errors.As(got, &pqErr) {
				t.Fatal("driver error not reachable through Unwrap")
			}
		})
	}
}

func TestExpectAffected(t *testing.T) {
	if err := expectAffected(0, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("0 rows: %v", err)
	}
	if err := expectAffected(1, nil); err != nil {
		t.Fatalf("1 row: %v", err)
	}
	boom := errors.New("boom")
	if err := expectAffected(0, boom); err != boom {
		t.Fatalf("error passthrough: %v", err)
	}
}
