package sanitize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePath(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	tests := []struct {
		name        string
		path        string
		allowedRoot string
		want        string
		wantErr     error
	}{
		{name: "empty path", path: "", wantErr: ErrEmptyPath},
		{name: "simple absolute path", path: "/tmp/visit.txt", want: "/tmp/visit.txt"},
		{name: "traversal - simple", path: "../etc/passwd", wantErr: ErrPathTraversal},
		{name: "traversal - middle", path: "notes/../../../etc/passwd", wantErr: ErrPathTraversal},
		{name: "traversal - encoded still contains dots", path: "notes/..%2f..%2fetc/passwd", wantErr: ErrPathTraversal},
		{name: "traversal - trailing", path: "notes/..", wantErr: ErrPathTraversal},
		{name: "relative path resolves under root", path: "ward/visit.txt", allowedRoot: root, want: filepath.Join(root, "ward", "visit.txt")},
		{name: "absolute path within root", path: filepath.Join(root, "visit.txt"), allowedRoot: root, want: filepath.Join(root, "visit.txt")},
		{name: "absolute path outside root", path: filepath.Join(outside, "visit.txt"), allowedRoot: root, wantErr: ErrPathTraversal},
		{name: "system file outside root", path: "/etc/hosts", allowedRoot: root, wantErr: ErrPathTraversal},
		{name: "root escape through dots", path: filepath.Join(root, "..", "other.txt"), allowedRoot: root, wantErr: ErrPathTraversal},
		{name: "sibling with root prefix", path: root + "-evil/visit.txt", allowedRoot: root, wantErr: ErrPathTraversal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidatePath(tt.path, tt.allowedRoot)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidatePath_SymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("not a note"), 0o600))

	link := filepath.Join(root, "link.txt")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := ValidatePath("link.txt", root)
	assert.ErrorIs(t, err, ErrPathTraversal)
}

func TestValidatePath_SymlinkInsideRoot(t *testing.T) {
	root := t.TempDir()
	note := filepath.Join(root, "visit.txt")
	require.NoError(t, os.WriteFile(note, []byte("note"), 0o600))

	link := filepath.Join(root, "latest.txt")
	if err := os.Symlink(note, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	got, err := ValidatePath("latest.txt", root)
	require.NoError(t, err)
	assert.Equal(t, link, got)
}
