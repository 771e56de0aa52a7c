package auth

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resource struct {
	owner   string
	collabs []string
}

func (r resource) OwnerID() string           { return r.owner }
func (r resource) CollaboratorIDs() []string { return r.collabs }

func TestAuthorize(t *testing.T) {
	authz := NewAuthorizer("compliance_officer")
	res := resource{owner: "alice", collabs: []string{"bob"}}

	assert.NoError(t, authz.Authorize(Identity{UserID: "alice"}, res))
	assert.NoError(t, authz.Authorize(Identity{UserID: "bob"}, res))
	assert.NoError(t, authz.Authorize(Identity{UserID: "carol", Roles: []string{"compliance_officer"}}, res))
	assert.ErrorIs(t, authz.Authorize(Identity{UserID: "mallory"}, res), ErrAccessDenied)
	assert.ErrorIs(t, authz.Authorize(Identity{}, res), ErrMissingIdentity)
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-User-ID", " alice ")
	r.Header.Set("X-Collaborator-Roles", "legal_counsel, ,risk_management")

	id, err := FromRequest(r, "", "")
	require.NoError(t, err)
	assert.Equal(t, "alice", id.UserID)
	assert.Equal(t, []string{"legal_counsel", "risk_management"}, id.Roles)

	_, err = FromRequest(httptest.NewRequest(http.MethodGet, "/", nil), "", "")
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

func TestMiddleware(t *testing.T) {
	authz := NewAuthorizer("auditor")
	var seen Identity
	h := Middleware("", "")(authz.RequireReviewer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	})))

	tests := []struct {
		name  string
		user  string
		roles string
		want  int
	}{
		{"anonymous", "", "", http.StatusUnauthorized},
		{"not a reviewer", "alice", "", http.StatusForbidden},
		{"reviewer", "carol", "auditor", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.user != "" {
				r.Header.Set(DefaultUserHeader, tt.user)
			}
			if tt.roles != "" {
				r.Header.Set(DefaultRolesHeader, tt.roles)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, "carol", seen.UserID)
}

func TestCredentialsRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "")

	assert.Empty(t, GetAPIKey("openai"))

	require.NoError(t, Save(&Credentials{OpenAI: &APIKeyCredentials{APIKey: "sk-stored"}}))
	path, err := CredentialPath()
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	assert.Equal(t, "sk-stored", GetAPIKey("openai"))

	t.Setenv("OPENAI_API_KEY", "sk-env")
	assert.Equal(t, "sk-env", GetAPIKey("openai"))
	assert.Empty(t, GetAPIKey("ollama"))
}
