package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/basekick-labs/welllog/internal/catalog"
	"github.com/basekick-labs/welllog/internal/config"
	"github.com/basekick-labs/welllog/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "well.las")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRunProject(t *testing.T) {
	path := writeFile(t, "~Curve\nDEPT.M : DEPTH\nGR.GAPI : GAMMA\n~A\n1 10 2 20 3 30 4 40\n")

	var stdout, stderr bytes.Buffer
	code := runProject([]string{"-thin", "2", path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "{\"DEPT\": [1.0, 3.0], \"GR\": [10.0, 30.0]}\n", stdout.String())

	stdout.Reset()
	code = runProject([]string{"-max-curves", "1", "-thin", "1", path}, &stdout, &stderr)
	require.Equal(t, 0, code)
	assert.Equal(t, "{\"DEPT\": [1.0, 2.0, 3.0, 4.0]}\n", stdout.String())
}

func TestRunProject_Warnings(t *testing.T) {
	path := writeFile(t, "~Well\nbroken line\n~Curve\nDEPT.M : DEPTH\n~A\n1 2\n")

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, runProject([]string{"-thin", "1", path}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "warning:")
	assert.Equal(t, "{\"DEPT\": [1.0, 2.0]}\n", stdout.String())

	stdout.Reset()
	stderr.Reset()
	assert.Equal(t, 1, runProject([]string{"-strict", path}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "error:")
	assert.Empty(t, stdout.String())
}

func TestRunProject_Errors(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 2, runProject(nil, &stdout, &stderr))
	assert.Equal(t, 2, runProject([]string{"-bogus"}, &stdout, &stderr))
	assert.Equal(t, 1, runProject([]string{filepath.Join(t.TempDir(), "missing.las")}, &stdout, &stderr))

	noCurves := writeFile(t, "~Well\nWELL. X : name\n")
	stderr.Reset()
	assert.Equal(t, 1, runProject([]string{noCurves}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "curve segment")
}

func TestNewRetention(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalBackend(filepath.Join(dir, "objects"), zerolog.Nop())
	require.NoError(t, err)
	cfg := config.RetentionConfig{Enabled: true, Schedule: "0 3 * * *", MaxAgeHours: 24, MaxConcurrent: 2}

	t.Run("catalog disabled", func(t *testing.T) {
		var wells *catalog.Catalog
		s, err := newRetention(cfg, wells, store, nil)
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("retention disabled", func(t *testing.T) {
		wells, err := catalog.New(filepath.Join(dir, "off.db"), zerolog.Nop())
		require.NoError(t, err)
		defer wells.Close()

		off := cfg
		off.Enabled = false
		s, err := newRetention(off, wells, store, nil)
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("enabled", func(t *testing.T) {
		wells, err := catalog.New(filepath.Join(dir, "on.db"), zerolog.Nop())
		require.NoError(t, err)
		defer wells.Close()

		s, err := newRetention(cfg, wells, store, nil)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.False(t, s.IsRunning())
	})
}
