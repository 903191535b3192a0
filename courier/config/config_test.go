package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("COURIER_CONFIG", "")
	t.Setenv("BLOB_BASE_URL", "")
	chdir(t, t.TempDir())

	cfg := LoadConfig()
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, "courier", cfg.MinIOBucket)
	assert.Equal(t, uint64(16<<20), cfg.BlobPartSize)
	assert.Empty(t, cfg.BlobBaseURL)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("COURIER_CONFIG", "")
	t.Setenv("DB_DRIVER", DriverSQLite)
	t.Setenv("JWT_TTL", "90m")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("BLOB_PART_SIZE", "not-a-number")
	t.Setenv("BLOB_BASE_URL", "https://chat.example.com")

	cfg := LoadConfig()
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, 90*time.Minute, cfg.JWTTTL)
	assert.True(t, cfg.MinIOUseSSL)
	assert.Equal(t, uint64(16<<20), cfg.BlobPartSize)
	assert.Equal(t, "https://chat.example.com", cfg.BlobBaseURL)
}

func TestLoadConfig_YAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "courier.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jwt_secret: from-file\nminio_bucket: media\nhttp_addr: \"\"\n"), 0o600))

	t.Setenv("COURIER_CONFIG", path)
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("HTTP_ADDR", ":9999")

	cfg := LoadConfig()
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, "media", cfg.MinIOBucket)
	assert.Equal(t, ":9999", cfg.HTTPAddr, "empty yaml values must not clear env values")
}

func TestValidate(t *testing.T) {
	cfg := Config{DBDriver: DriverSQLite, DBName: "courier.db", JWTSecret: "s"}
	assert.NoError(t, cfg.Validate())

	cfg.DBName = ""
	assert.Error(t, cfg.Validate())
	cfg.DBName = "courier.db"

	cfg.JWTSecret = ""
	assert.Error(t, cfg.Validate())

	cfg = Config{DBDriver: DriverPostgres, JWTSecret: "s"}
	assert.Error(t, cfg.Validate())
	cfg.DBHost, cfg.DBName = "db", "courier"
	assert.NoError(t, cfg.Validate())

	cfg.DBDriver = "mongo"
	assert.Error(t, cfg.Validate())
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
