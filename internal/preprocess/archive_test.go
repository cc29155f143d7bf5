package preprocess

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestExpandZip_SkipsEscapingMembers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.zip")
	writeZip(t, path, map[string]string{
		"ok.txt":           "fine",
		"nested/gc.log":    "pause",
		"../../etc/passwd": "evil",
	})

	files, err := ExpandZip(path, "in.zip", dir, 1<<20)
	require.NoError(t, err)

	byName := map[string]FileInput{}
	for _, f := range files {
		byName[f.Name] = f
		assert.True(t, strings.HasPrefix(f.Path, dir), f.Path)
		assert.Equal(t, "in.zip", f.SourceZip)
		assert.NotEmpty(t, f.FileID)
	}
	require.Len(t, byName, 2)
	assert.Equal(t, FileTypeLog, byName["nested/gc.log"].FileType)
	assert.Equal(t, int64(4), byName["ok.txt"].SizeBytes)

	content, _, err := ReadFile(byName["nested/gc.log"].Path)
	require.NoError(t, err)
	assert.Equal(t, "pause", content)
}

func TestExpandZip_MemberTooLarge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.zip")
	writeZip(t, path, map[string]string{"big.log": strings.Repeat("x", 100)})

	_, err := ExpandZip(path, "big.zip", dir, 10)
	assert.Error(t, err)
}

func TestExpandZip_NotAZip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fake.zip")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))

	_, err := ExpandZip(path, "fake.zip", dir, 1<<20)
	assert.Error(t, err)
}

func TestCollectFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "logs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "results.csv"), []byte("a,b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "logs", "app.log"), []byte("x"), 0o644))

	files, err := CollectFiles(root)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "logs/app.log", files[0].Name)
	assert.Equal(t, FileTypeLog, files[0].FileType)
	assert.Equal(t, "results.csv", files[1].Name)

	single, err := CollectFiles(filepath.Join(root, "results.csv"))
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, "results.csv", single[0].Name)
	assert.Equal(t, int64(3), single[0].SizeBytes)

	_, err = CollectFiles(filepath.Join(root, "missing"))
	assert.Error(t, err)
}

func TestIsZip(t *testing.T) {
	assert.True(t, IsZip("Results.ZIP"))
	assert.False(t, IsZip("results.zip.log"))
}
