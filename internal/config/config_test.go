package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "local", cfg.VectorDBType)
	assert.Equal(t, "local", cfg.ImageStorageType)
	assert.Equal(t, "file", cfg.ImageStorageFormat)
	assert.Equal(t, 3, cfg.SimilarityTopK)
	assert.Equal(t, 100, cfg.MaxUploadMB)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("VECTOR_DB_TYPE", "redis")
	t.Setenv("REDIS_URL", "localhost:6379")
	t.Setenv("REDIS_COLLECTION", "manuals")
	t.Setenv("EMBEDDING_MODEL", "text-embedding-3-small")
	t.Setenv("EMBEDDING_API_KEY", "sk-test")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "redis", cfg.VectorDBType)
	assert.Equal(t, "localhost:6379", cfg.Redis.URL)
	assert.Equal(t, "manuals", cfg.Redis.Collection)
	assert.True(t, cfg.Embedding.toEndpoint().IsConfigured())
}

func TestToAppConfig_DerivedPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)

	envCfg, err := LoadFromEnv()
	require.NoError(t, err)

	cfg, err := envCfg.ToAppConfig()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir())
	assert.Equal(t, "sqlite:///"+filepath.Join(dir, "ragmag.db"), cfg.DBURL())
	assert.Equal(t, filepath.Join(dir, "storage"), cfg.PersistDir())
	assert.Equal(t, filepath.Join(dir, "images"), cfg.ImageDir())
	assert.Equal(t, int64(100*1024*1024), cfg.MaxUploadBytes())
}

func TestToAppConfig_ValidatesBackendSelection(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("VECTOR_DB_TYPE", "qdrant")

	envCfg, err := LoadFromEnv()
	require.NoError(t, err)

	_, err = envCfg.ToAppConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VECTOR_DB_TYPE")
}

func TestToAppConfig_RedisRequiresURL(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("VECTOR_DB_TYPE", "redis")

	envCfg, err := LoadFromEnv()
	require.NoError(t, err)

	_, err = envCfg.ToAppConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestToAppConfig_ObjectStorageRequiresBucket(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("IMAGE_STORAGE_TYPE", "object")

	envCfg, err := LoadFromEnv()
	require.NoError(t, err)

	_, err = envCfg.ToAppConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_BUCKET")
}
