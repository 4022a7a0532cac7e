package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/medrag/internal/apierr"
	"github.com/fyrsmithlabs/medrag/internal/config"
	"github.com/fyrsmithlabs/medrag/internal/loader"
	"github.com/fyrsmithlabs/medrag/internal/pipeline"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"invalid request", fmt.Errorf("%w: query is required", pipeline.ErrInvalidRequest), exitInvalid},
		{"not found", fmt.Errorf("open visit.txt: %w", loader.ErrNotFound), exitInvalid},
		{"unsupported format", loader.ErrUnsupportedFormat, exitInvalid},
		{"malformed record", loader.ErrMalformedRecord, exitInvalid},
		{"authentication", apierr.FromStatus("googleai", 401, "bad key"), exitAuth},
		{"rate limited", apierr.FromStatus("googleai", 429, "quota"), exitRateLimited},
		{"unavailable", apierr.FromStatus("pubmed", 503, "down"), exitUnavailable},
		{"canceled", context.Canceled, exitFailure},
		{"suite failed", fmt.Errorf("%w: 1 of 3 cases failed", errSuiteFailed), exitFailure},
		{"other", errors.New("boom"), exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("missing default file is ignored", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		assert.NoError(t, loadEnvFile(path, false))
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "keys.env")
		err := loadEnvFile(path, true)
		require.Error(t, err)
		assert.ErrorIs(t, err, pipeline.ErrInvalidRequest)
	})

	t.Run("empty path is a no-op", func(t *testing.T) {
		assert.NoError(t, loadEnvFile("", true))
	})

	t.Run("loads values without overriding", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("MEDRAG_TEST_NEW=from-file\nMEDRAG_TEST_SET=from-file\n"), 0o600))
		t.Setenv("MEDRAG_TEST_SET", "from-env")
		t.Setenv("MEDRAG_TEST_NEW", "")
		require.NoError(t, os.Unsetenv("MEDRAG_TEST_NEW"))

		require.NoError(t, loadEnvFile(path, false))
		assert.Equal(t, "from-file", os.Getenv("MEDRAG_TEST_NEW"))
		assert.Equal(t, "from-env", os.Getenv("MEDRAG_TEST_SET"))
	})
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Version:    "+version)
	assert.Contains(t, out.String(), "Commit:")
}

func TestFlagErrorsAreInvalidRequests(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"clinical", "--no-such-flag"})

	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, exitInvalid, exitCode(err))
}

func TestClinicalValidation(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	tests := []struct {
		name string
		args []string
	}{
		{"missing note", []string{"clinical", "--query", "why?"}},
		{"missing query", []string{"clinical", "--note", "visit.txt"}},
		{"negative top_k", []string{"clinical", "--note", "visit.txt", "--query", "why?", "--top_k", "-1"}},
		{"watch on s3", []string{"clinical", "--note", "s3://bucket/visit.txt", "--query", "why?", "--watch"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRootCmd()
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			root.SetArgs(tt.args)

			err := root.Execute()
			require.Error(t, err)
			assert.Equal(t, exitInvalid, exitCode(err))
		})
	}
}

func TestLiteratureValidation(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"literature", "--query", "  "})

	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, exitInvalid, exitCode(err))
}

func TestNotesRoot(t *testing.T) {
	t.Run("configured directory", func(t *testing.T) {
		dir := t.TempDir()
		got, err := notesRoot(config.PipelineConfig{NotesDir: dir})
		require.NoError(t, err)
		assert.Equal(t, dir, got)
	})

	t.Run("defaults to working directory", func(t *testing.T) {
		wd, err := os.Getwd()
		require.NoError(t, err)
		got, err := notesRoot(config.PipelineConfig{})
		require.NoError(t, err)
		assert.Equal(t, wd, got)
	})

	t.Run("missing directory is invalid", func(t *testing.T) {
		_, err := notesRoot(config.PipelineConfig{NotesDir: filepath.Join(t.TempDir(), "missing")})
		require.Error(t, err)
		assert.Equal(t, exitInvalid, exitCode(err))
	})
}
