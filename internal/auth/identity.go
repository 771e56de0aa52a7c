// Package auth identifies callers and decides who may act on a
// clarification session.
package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
)

var (
	// ErrMissingIdentity is returned when a request carries no user id.
	ErrMissingIdentity = errors.New("caller identity is missing")
	// ErrAccessDenied is returned when the caller may not act on a resource.
	ErrAccessDenied = errors.New("access denied")
)

// Default request headers.
const (
	DefaultUserHeader  = "X-User-ID"
	DefaultRolesHeader = "X-Collaborator-Roles"
)

// Identity is the authenticated caller of an operation.
type Identity struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles,omitempty"`
}

// Valid reports whether the identity names a user.
func (id Identity) Valid() bool { return strings.TrimSpace(id.UserID) != "" }

// HasRole reports whether the caller carries role.
func (id Identity) HasRole(role string) bool { return slices.Contains(id.Roles, role) }

// Owned is implemented by resources with an owner and collaborators.
type Owned interface {
	OwnerID() string
	CollaboratorIDs() []string
}

// Authorizer grants access to owners, listed collaborators and callers
// holding one of the reviewer roles.
type Authorizer struct {
	reviewerRoles []string
}

// NewAuthorizer creates an authorizer. Callers with any of reviewerRoles may
// act on every session.
func NewAuthorizer(reviewerRoles ...string) *Authorizer {
	return &Authorizer{reviewerRoles: append([]string(nil), reviewerRoles...)}
}

// IsReviewer reports whether the caller holds a reviewer role.
func (a *Authorizer) IsReviewer(id Identity) bool {
	for _, r := range a.reviewerRoles {
		if id.HasRole(r) {
			return true
		}
	}
	return false
}

// Authorize returns nil when id may act on o.
func (a *Authorizer) Authorize(id Identity, o Owned) error {
	if !id.Valid() {
		return ErrMissingIdentity
	}
	if o.OwnerID() == id.UserID || slices.Contains(o.CollaboratorIDs(), id.UserID) || a.IsReviewer(id) {
		return nil
	}
	return ErrAccessDenied
}

// FromRequest reads the caller identity from the given headers. Roles are a
// comma separated list.
func FromRequest(r *http.Request, userHeader, rolesHeader string) (Identity, error) {
	if userHeader == "" {
		userHeader = DefaultUserHeader
	}
	if rolesHeader == "" {
		rolesHeader = DefaultRolesHeader
	}
	id := Identity{UserID: strings.TrimSpace(r.Header.Get(userHeader))}
	for _, role := range strings.Split(r.Header.Get(rolesHeader), ",") {
		if role = strings.TrimSpace(role); role != "" {
			id.Roles = append(id.Roles, role)
		}
	}
	if !id.Valid() {
		return Identity{}, ErrMissingIdentity
	}
	return id, nil
}

type ctxKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Middleware rejects requests without an identity and stores the identity
// in the request context.
func Middleware(userHeader, rolesHeader string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := FromRequest(r, userHeader, rolesHeader)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireReviewer allows only callers holding a reviewer role. It must run
// after Middleware.
func (a *Authorizer) RequireReviewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		if !ok {
			http.Error(w, ErrMissingIdentity.Error(), http.StatusUnauthorized)
			return
		}
		if !a.IsReviewer(id) {
			http.Error(w, ErrAccessDenied.Error(), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
