package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/sfm-market/storefront/internal/session"
	"github.com/sfm-market/storefront/types"
)

type ownedThing struct {
	ID    string
	Owner string
}

var thingPolicy = Policy[ownedThing]{
	Resource: "thing",
	OwnerOf:  func(t ownedThing) string { return t.Owner },
}

func sessionFor(subject string, role types.Role) *session.Session {
	return &session.Session{Claims: session.Claims{SubjectID: subject, Role: role}}
}

func TestRequireAuthenticated(t *testing.T) {
	if _, err := RequireAuthenticated(nil); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("nil session: got %v, want ErrUnauthenticated", err)
	}
	sess := sessionFor("u1", types.RoleUser)
	got, err := RequireAuthenticated(sess)
	if err != nil || got != sess {
		t.Fatalf("RequireAuthenticated = %v, %v", got, err)
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		sess    *session.Session
		allowed []types.Role
		want    error
	}{
		{"anonymous", nil, []types.Role{types.RoleUser}, ErrUnauthenticated},
		{"allowed", sessionFor("u1", types.RoleSeller), []types.Role{types.RoleSeller, types.RoleAdmin}, nil},
		{"not allowed", sessionFor("u1", types.RoleUser), []types.Role{types.RoleSeller, types.RoleAdmin}, ErrForbidden},
		{"admin not listed", sessionFor("u1", types.RoleAdmin), []types.Role{types.RoleSeller}, ErrForbidden},
		{"empty set", sessionFor("u1", types.RoleAdmin), nil, ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := RequireRole(tt.sess, tt.allowed...); !errors.Is(err, tt.want) {
				t.Fatalf("RequireRole = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCanMutate(t *testing.T) {
	roles := []types.Role{types.RoleUser, types.RoleSeller, types.RoleAdmin}
	subjects := []string{"u1", "u2"}
	owners := []string{"u1", "u2", ""}

	for _, role := range roles {
		for _, subject := range subjects {
			for _, owner := range owners {
				sess := sessionFor(subject, role)
				want := role == types.RoleAdmin || (owner != "" && owner == subject)
				if got := CanMutate(sess, owner); got != want {
					t.Errorf("CanMutate(%s/%s, owner %q) = %v, want %v", subject, role, owner, got, want)
				}
				if got := thingPolicy.CanMutate(sess, ownedThing{Owner: owner}); got != want {
					t.Errorf("Policy.CanMutate(%s/%s, owner %q) = %v, want %v", subject, role, owner, got, want)
				}
			}
		}
	}

	for _, owner := range owners {
		if CanMutate(nil, owner) {
			t.Errorf("nil session may mutate owner %q", owner)
		}
	}
}

type guardProbe struct {
	fetched bool
	written bool
	thing   ownedThing
	err     error
}

func (p *guardProbe) fetch(context.Context) (ownedThing, error) {
	p.fetched = true
	return p.thing, p.err
}

func (p *guardProbe) write(context.Context, ownedThing) error {
	p.written = true
	return nil
}

func TestGuardMutation(t *testing.T) {
	notFound := errors.New("not found")

	tests := []struct {
		name        string
		sess        *session.Session
		probe       guardProbe
		wantErr     error
		wantFetched bool
		wantWritten bool
	}{
		{
			name:    "anonymous stops before fetch",
			probe:   guardProbe{thing: ownedThing{Owner: "u1"}},
			wantErr: ErrUnauthenticated,
		},
		{
			name:        "missing resource reported before ownership",
			sess:        sessionFor("u2", types.RoleSeller),
			probe:       guardProbe{err: notFound},
			wantErr:     notFound,
			wantFetched: true,
		},
		{
			name:        "non-owner forbidden",
			sess:        sessionFor("u2", types.RoleSeller),
			probe:       guardProbe{thing: ownedThing{ID: "r1", Owner: "u1"}},
			wantErr:     ErrForbidden,
			wantFetched: true,
		},
		{
			name:        "owner allowed",
			sess:        sessionFor("u1", types.RoleSeller),
			probe:       guardProbe{thing: ownedThing{ID: "r1", Owner: "u1"}},
			wantFetched: true,
			wantWritten: true,
		},
		{
			name:        "admin allowed",
			sess:        sessionFor("u9", types.RoleAdmin),
			probe:       guardProbe{thing: ownedThing{ID: "r1", Owner: "u1"}},
			wantFetched: true,
			wantWritten: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := tt.probe
			got, err := GuardMutation(context.Background(), tt.sess, thingPolicy, probe.fetch, probe.write)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if probe.fetched != tt.wantFetched {
				t.Errorf("fetched = %v, want %v", probe.fetched, tt.wantFetched)
			}
			if probe.written != tt.wantWritten {
				t.Errorf("written = %v, want %v", probe.written, tt.wantWritten)
			}
			if err != nil && got != (ownedThing{}) {
				t.Errorf("failed guard leaked resource %+v", got)
			}
			if err == nil && got != probe.thing {
				t.Errorf("returned %+v, want %+v", got, probe.thing)
			}
		})
	}
}

func TestGuardMutation_WriteErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	_, err := GuardMutation(context.Background(), sessionFor("u1", types.RoleUser), thingPolicy,
		func(context.Context) (ownedThing, error) { return ownedThing{Owner: "u1"}, nil },
		func(context.Context, ownedThing) error { return boom },
	)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}
