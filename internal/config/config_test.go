package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.AppPort)
	assert.Equal(t, "postgres", cfg.RecordStore)
	assert.Equal(t, "fs", cfg.AssetStore)
	assert.Equal(t, "uploads", cfg.UploadDir)
	assert.Equal(t, time.Hour, cfg.SweepGrace)
	assert.Zero(t, cfg.SweepInterval)
	assert.Zero(t, cfg.RateLimit)
	assert.True(t, cfg.S3PathStyle)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RECORD_STORE", "memory")
	t.Setenv("ASSET_STORE", "s3")
	t.Setenv("S3_ENDPOINT", "localhost:9000")
	t.Setenv("S3_BUCKET", "covers")
	t.Setenv("S3_USE_SSL", "true")
	t.Setenv("RATE_LIMIT", "2.5")
	t.Setenv("RATE_BURST", "4")
	t.Setenv("SWEEP_INTERVAL", "15m")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.RecordStore)
	assert.Equal(t, "covers", cfg.S3Bucket)
	assert.True(t, cfg.S3UseSSL)
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.Equal(t, 4, cfg.RateBurst)
	assert.Equal(t, 15*time.Minute, cfg.SweepInterval)
}

func TestLoadFromEnvRejectsUnknownStores(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ASSET_STORE", "ftp")

	_, err := LoadFromEnv()
	assert.ErrorContains(t, err, "ASSET_STORE")
}

func TestLoadFromEnvRejectsZeroGrace(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SWEEP_GRACE", "0s")

	_, err := LoadFromEnv()
	assert.ErrorContains(t, err, "SWEEP_GRACE")
}

func TestStringMasksSecrets(t *testing.T) {
	cfg := &Config{
		DatabaseURL: "postgres://app:hunter2@db:5432/app",
		S3AccessKey: "AKIA",
		S3SecretKey: "topsecret",
	}
	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "topsecret")
	assert.NotContains(t, s, "AKIA")
	assert.Contains(t, s, "postgres://app:********@db:5432/app")
}
