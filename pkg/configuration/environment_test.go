package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "EAM_TRANSFER_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "modules", "transfer")
	requireMkdirAll(t, sub)

	origWd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	require.NoError(t, os.Chdir(sub))

	_ = os.Unsetenv("EAM_TRANSFER_TEST_ENV_LOAD")
	t.Cleanup(func() { _ = os.Unsetenv("EAM_TRANSFER_TEST_ENV_LOAD") })

	n, err := LoadEnv([]string{".env", ".env.local"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "ok", os.Getenv("EAM_TRANSFER_TEST_ENV_LOAD"))
}

func TestParseDefaults(t *testing.T) {
	c, err := Parse()
	require.NoError(t, err)
	require.Equal(t, BackendGraphQL, c.StoreBackend)
	require.Equal(t, 10, c.Import.YieldEvery)
	require.Equal(t, 30*time.Second, c.Import.StoreCallTimeout)
	require.Equal(t, "localhost:3200", c.SocketAddress)
}

func TestParseRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	_, err := Parse()
	require.ErrorContains(t, err, "StoreBackend must be one of [graphql neo4j memory]")

	t.Setenv("STORE_BACKEND", " Neo4j ")
	c, err := Parse()
	require.NoError(t, err)
	require.Equal(t, BackendNeo4j, c.StoreBackend)
}

func TestParseRateLimitFallsBackToRedisURL(t *testing.T) {
	t.Setenv("RATE_LIMIT_STORAGE", "redis")
	t.Setenv("REDIS_URL", "redis:6380")
	c, err := Parse()
	require.NoError(t, err)
	require.Equal(t, "redis:6380", c.RateLimit.RedisURL)

	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,https://eam.example.com")
	c, err = Parse()
	require.NoError(t, err)
	require.Equal(t, []string{"http://localhost:3000", "https://eam.example.com"}, c.CORS.AllowedOrigins)

	t.Setenv("RATE_LIMIT_STORAGE", "disk")
	_, err = Parse()
	require.Error(t, err)
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func requireMkdirAll(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o755))
}
