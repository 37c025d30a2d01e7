package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/martin3r-me/platforms-brands-sub000/internal/models"
)

type ctxKey string

const ctxKeyPrincipal ctxKey = "brands.principal"

const RoleAdmin = "admin"

var ErrForbidden = errors.New("forbidden")

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Teams   []string
	Roles   []string
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// FromContext returns the Principal stored in ctx, or nil.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(ctxKeyPrincipal).(*Principal)
	return p
}

func HasRole(p *Principal, role string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (p *Principal) InTeam(team string) bool {
	if p == nil || team == "" {
		return false
	}
	for _, t := range p.Teams {
		if t == team {
			return true
		}
	}
	return false
}

// Authorizer decides whether the caller in ctx may modify content on board.
type Authorizer interface {
	AuthorizeBoard(ctx context.Context, board models.Board) error
}

// TeamPolicy grants access to members of the board's team and to admins.
type TeamPolicy struct{}

func (TeamPolicy) AuthorizeBoard(ctx context.Context, board models.Board) error {
	p := FromContext(ctx)
	if HasRole(p, RoleAdmin) || p.InTeam(board.TeamID) {
		return nil
	}
	return ErrForbidden
}

type AllowAll struct{}

func (AllowAll) AuthorizeBoard(ctx context.Context, board models.Board) error { return nil }

// RequireRole lets the request through only when the principal has role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if HasRole(FromContext(r.Context()), role) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}
