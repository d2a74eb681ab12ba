package gitsource

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRemote(t *testing.T) {
	tests := []struct {
		source string
		want   bool
	}{
		{"https://github.com/conorfennell/cards.git", true},
		{"http://example.com/cards", true},
		{"ssh://git@github.com/conorfennell/cards.git", true},
		{"git@github.com:conorfennell/cards.git", true},
		{"./cards", false},
		{"/home/me/cards", false},
		{"cards.git", false},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRemote(tt.source))
		})
	}
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://github.com/conorfennell/cards.git", filepath.Join("repos", "github.com", "conorfennell", "cards"), false},
		{"git@github.com:conorfennell/cards.git", filepath.Join("repos", "github.com", "conorfennell", "cards"), false},
		{"not a url", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := LocalPath("repos", tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func initRepo(t *testing.T, dir string) {
	t.Helper()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cards.md"), []byte("Q: One\nA: 1\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("cards.md")
	require.NoError(t, err)
	_, err = wt.Commit("add cards", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

func TestSync_ClonesThenPulls(t *testing.T) {
	upstream := t.TempDir()
	initRepo(t, upstream)
	checkout := filepath.Join(t.TempDir(), "checkout")

	require.NoError(t, Sync(upstream, checkout, nil))
	_, err := os.Stat(filepath.Join(checkout, "cards.md"))
	require.NoError(t, err)

	require.NoError(t, Sync(upstream, checkout, nil), "already up to date is not an error")
}
