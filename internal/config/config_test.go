package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/conorfennell/ankipack/internal/anki"
	"github.com/conorfennell/ankipack/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load([]string{"--name", "Deck1"})
	require.NoError(t, err)

	assert.Equal(t, "Deck1", cfg.Name)
	assert.Equal(t, ".", cfg.OutputDir)
	assert.Equal(t, "Default", cfg.Deck)
	assert.Equal(t, "repos", cfg.CacheDir)
	assert.True(t, cfg.Backup)
	assert.False(t, cfg.Legacy)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
	assert.Equal(t, anki.ClozePerTemplate, cfg.Cloze())
}

func TestLoad_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ankipack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: FromFile
deck: FileDeck
output_dir: /tmp/file
log_level: debug
`), 0o644))
	t.Setenv("ANKIPACK_DECK", "EnvDeck")
	t.Setenv("ANKIPACK_LEGACY", "true")

	cfg, err := Load([]string{"--config", path, "--output-dir", "/tmp/flag"})
	require.NoError(t, err)

	assert.Equal(t, "FromFile", cfg.Name, "file beats flag default")
	assert.Equal(t, "EnvDeck", cfg.Deck, "env beats file")
	assert.Equal(t, "/tmp/flag", cfg.OutputDir, "flag beats file")
	assert.True(t, cfg.Legacy)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no name and no update", nil},
		{"name with whitespace", []string{"--name", "my deck"}},
		{"unknown log level", []string{"--name", "Deck1", "--log-level", "loud"}},
		{"update without extension", []string{"--update", "deck.zip"}},
		{"unknown cloze policy", []string{"--name", "Deck1", "--cloze-policy", "sometimes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.args)
			assert.True(t, errors.Is(err, common.ErrValidation), "got %v", err)
		})
	}
}

func TestLoad_UpdateNeedsNoName(t *testing.T) {
	cfg, err := Load([]string{"--update", "deck.apkg", "--cloze-policy", "reference", "--backup=false"})
	require.NoError(t, err)
	assert.Equal(t, "deck.apkg", cfg.Update)
	assert.False(t, cfg.Backup)
	assert.Equal(t, anki.ClozePerReference, cfg.Cloze())
}

func TestLoad_UnknownFlag(t *testing.T) {
	_, err := Load([]string{"--nope"})
	assert.Error(t, err)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load([]string{"--name", "Deck1", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}
