package auth

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	_, err := ExtractBearerToken(req)
	assert.Error(t, err)

	req.Header.Set("Authorization", "Basic abc")
	_, err = ExtractBearerToken(req)
	assert.Error(t, err)

	req.Header.Set("Authorization", "Bearer   ")
	_, err = ExtractBearerToken(req)
	assert.Error(t, err)

	req.Header.Set("Authorization", "Bearer secret-1")
	token, err := ExtractBearerToken(req)
	require.NoError(t, err)
	assert.Equal(t, "secret-1", token)
}

func TestAuthenticateLegacyKeyIsAdmin(t *testing.T) {
	p, ok := Authenticate("master-key", "master-key", nil)
	require.True(t, ok)
	assert.Equal(t, "admin", p.Name)
	assert.True(t, HasAnyScope(p, "process:rw"))
	assert.True(t, HasAnyScope(p, "anything:at-all"))
}

func TestAuthenticateScopedToken(t *testing.T) {
	tokens := []TokenConfig{
		{Name: "ci", Token: "ci-secret", Scopes: []string{"process:rw"}},
		{Token: "anon-secret", Scopes: []string{"events:ro"}},
	}

	p, ok := Authenticate("ci-secret", "master-key", tokens)
	require.True(t, ok)
	assert.Equal(t, "ci", p.Name)
	// Write implies read.
	assert.True(t, HasAnyScope(p, "process:ro"))
	assert.False(t, HasAnyScope(p, "agent:rw"))

	p, ok = Authenticate("anon-secret", "master-key", tokens)
	require.True(t, ok)
	assert.Equal(t, "token", p.Name)

	_, ok = Authenticate("wrong", "master-key", tokens)
	assert.False(t, ok)

	// Empty presented token never matches, even against empty config values.
	_, ok = Authenticate("", "", []TokenConfig{{Token: ""}})
	assert.False(t, ok)
}

func TestHasAnyScope(t *testing.T) {
	p := Principal{Name: "ci", Scopes: normalizeScopes([]string{"events:rw"})}
	assert.True(t, HasAnyScope(p))
	assert.True(t, HasAnyScope(p, "events:ro", "events:rw"))
	assert.False(t, HasAnyScope(p, "process:ro"))
}
