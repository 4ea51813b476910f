package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/assets"
)

func TestSweepRefusesMemoryRecordStore(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	uploads := filepath.Join(dir, "uploads")
	t.Setenv("RECORD_STORE", "memory")
	t.Setenv("ASSET_STORE", "fs")
	t.Setenv("UPLOAD_DIR", uploads)
	t.Setenv("LOG_LEVEL", "error")

	fs, err := assets.NewFileStore(uploads)
	require.NoError(t, err)
	ref, err := fs.Store(context.Background(), []byte("referenced by a running server"), "cover.jpg")
	require.NoError(t, err)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(uploads, ref.String()), old, old))

	for _, args := range [][]string{{"sweep"}, {"sweep", "--dry-run"}} {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&out)
		rootCmd.SetArgs(args)
		sweepDryRun, sweepGrace = false, ""

		err := rootCmd.Execute()
		assert.ErrorIs(t, err, errMemorySweep)
	}

	_, err = fs.Fetch(context.Background(), ref)
	assert.NoError(t, err)
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("90m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	for _, bad := range []string{"soon", "-1h", "0", "0s"} {
		_, err = parseDuration(bad)
		assert.Error(t, err, bad)
	}
}
