package projectfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMissingFileReturnsNotFound(t *testing.T) {
	fs := New(t.TempDir())
	content, ok, err := fs.Read("missing.txt")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, content)
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	fs := New(t.TempDir())
	require.NoError(t, fs.Write("a/b/c.txt", "hello\n"))

	content, ok, err := fs.Read("a/b/c.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello\n", content)
}

func TestWriteRejectsPathEscape(t *testing.T) {
	fs := New(t.TempDir())
	err := fs.Write("../escape.txt", "x")
	assert.Error(t, err)
}

func TestWriteRejectsAbsolutePath(t *testing.T) {
	fs := New(t.TempDir())
	err := fs.Write("/etc/passwd", "x")
	assert.Error(t, err)
}

func TestDeleteMissingFileIsSuccess(t *testing.T) {
	fs := New(t.TempDir())
	assert.NoError(t, fs.Delete("nope.txt"))
}

func TestAppendJSONLThenReadLines(t *testing.T) {
	fs := New(t.TempDir())
	require.NoError(t, fs.AppendJSONL("log.jsonl", map[string]string{"a": "1"}))
	require.NoError(t, fs.AppendJSONL("log.jsonl", map[string]string{"a": "2"}))

	lines, err := fs.ReadJSONLLines("log.jsonl")
	require.NoError(t, err)
	require.Len(t, lines, 2)
}

func TestEnumerateSkipsGitAndKaiAndIgnoreRules(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "HEAD"), []byte("ref"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".kai", "logs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".kai", "logs", "x.jsonl"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.txt"), []byte("hi"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "ignored.js"), []byte("x"), 0644))

	fs := New(root)
	files, err := fs.Enumerate([]string{"node_modules/**"})
	require.NoError(t, err)
	assert.Contains(t, files, "keep.txt")
	assert.NotContains(t, files, "node_modules/ignored.js")
	for _, f := range files {
		assert.NotContains(t, f, ".git/")
		assert.NotContains(t, f, ".kai/")
	}
}

func TestEnumerateSkipsBinaryFiles(t *testing.T) {
	root := t.TempDir()
	binaryContent := make([]byte, 100)
	for i := range binaryContent {
		binaryContent[i] = 0
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin.dat"), binaryContent, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "text.txt"), []byte("hello world"), 0644))

	fs := New(root)
	files, err := fs.Enumerate(nil)
	require.NoError(t, err)
	assert.Contains(t, files, "text.txt")
	assert.NotContains(t, files, "bin.dat")
}

func TestEnsureGitignoreCreatesDefaultAndDoesNotDuplicate(t *testing.T) {
	root := t.TempDir()
	fs := New(root)
	require.NoError(t, fs.EnsureGitignore())
	require.NoError(t, fs.EnsureGitignore())

	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, 1, countOccurrences(string(data), ".kai/"))
}

func countOccurrences(haystack, needle string) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			count++
		}
	}
	return count
}

func TestApplyDiffWritesResultOnSuccess(t *testing.T) {
	root := t.TempDir()
	fs := New(root)
	require.NoError(t, fs.Write("a.txt", "line one\nline two\n"))

	diff := "--- a/a.txt\n+++ b/a.txt\n@@ -1,2 +1,2 @@\n line one\n-line two\n+line TWO\n"
	ok, err := fs.ApplyDiff("a.txt", diff)
	require.NoError(t, err)
	assert.True(t, ok)

	content, _, err := fs.Read("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "line one\nline TWO\n", content)
}

func TestApplyDiffLogsFailureOnEmptyDiff(t *testing.T) {
	root := t.TempDir()
	fs := New(root)
	require.NoError(t, fs.Write("a.txt", "content\n"))

	ok, err := fs.ApplyDiff("a.txt", "")
	require.NoError(t, err)
	assert.False(t, ok)

	lines, err := fs.ReadJSONLLines(".kai/logs/diff_failures.jsonl")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "empty diff")
}
