package browser

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasSession(t *testing.T) {
	dir := t.TempDir()
	m := NewSessionManager(DefaultConfig(dir))

	assert.False(t, m.HasSession())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.json"), []byte("[]"), 0o600))
	assert.True(t, m.HasSession())
}

func TestLoadCookiesMissingFile(t *testing.T) {
	m := NewSessionManager(DefaultConfig(t.TempDir()))

	cookies, err := m.loadCookies()
	require.NoError(t, err)
	assert.Empty(t, cookies)
}

func TestLoadCookiesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewSessionManager(DefaultConfig(dir))

	saved := []*proto.NetworkCookie{
		{Name: "sessionid", Value: "abc123", Domain: ".instagram.com", Path: "/", Secure: true, HTTPOnly: true},
		{Name: "csrftoken", Value: "tok", Domain: ".instagram.com", Path: "/"},
	}
	data, err := json.Marshal(saved)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.json"), data, 0o600))

	cookies, err := m.loadCookies()
	require.NoError(t, err)
	require.Len(t, cookies, 2)
	assert.Equal(t, "sessionid", cookies[0].Name)

	params := cookieParams(cookies)
	require.Len(t, params, 2)
	assert.Equal(t, "abc123", params[0].Value)
	assert.Equal(t, ".instagram.com", params[0].Domain)
	assert.True(t, params[0].HTTPOnly)
}

func TestLoadCookiesRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	m := NewSessionManager(DefaultConfig(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.json"), []byte("not json"), 0o600))

	_, err := m.loadCookies()
	assert.Error(t, err)
}
