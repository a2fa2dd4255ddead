package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(env, []byte(
		"DATABASE_URL=sqlite://shop.db\nJWT_SECRET=a\nJWT_REFRESH_SECRET=b\nCORS_ORIGINS=http://a.test, http://b.test\n",
	), 0o600))

	for _, k := range []string{"DATABASE_URL", "JWT_SECRET", "JWT_REFRESH_SECRET", "CORS_ORIGINS", "COOKIE_SECURE", "TRUST_PROXY"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load(env)
	require.NoError(t, err)
	assert.Equal(t, "sqlite://shop.db", cfg.DatabaseURL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.False(t, cfg.CookieSecure)
	assert.False(t, cfg.TrustProxy)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_REFRESH_SECRET", "")

	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
