package consolidation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kai/internal/projectfs"
)

func TestTypeScriptLoopSkipsWhenNoTsConfig(t *testing.T) {
	loop := NewTypeScriptLoop(false)
	result := loop.Run(context.Background(), t.TempDir())
	assert.True(t, result.Success)
}

func TestTypeScriptLoopRunsWhenTsConfigPresent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tsconfig.json"), []byte("{}"), 0644))

	loop := NewTypeScriptLoop(false)
	loop.Command = "sh"
	loop.Args = []string{"-c", "exit 0"}

	result := loop.Run(context.Background(), dir)
	assert.True(t, result.Success)
}

func TestTypeScriptLoopFailsOnNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tsconfig.json"), []byte("{}"), 0644))

	loop := NewTypeScriptLoop(false)
	loop.Command = "sh"
	loop.Args = []string{"-c", "echo TS2322 something; exit 1"}

	result := loop.Run(context.Background(), dir)
	assert.False(t, result.Success)
	assert.Contains(t, result.Log, "TS2322")
}

func TestCoverageLoopAppliesGeneratedDiffThroughApplyDiff(t *testing.T) {
	dir := t.TempDir()
	fs := projectfs.New(dir)
	require.NoError(t, fs.Write("math_test.go", "package math\n\nfunc TestA(t *testing.T) {}\n"))

	extended := "package math\n\nfunc TestA(t *testing.T) {}\n\nfunc TestB(t *testing.T) {}\n"
	client := &stubClient{rawText: extended}

	loop := NewCoverageLoop(fs, client, 1)
	loop.Command = "sh"
	loop.Args = []string{"-c", `echo '{"files":{"math.go":0.5}}'`}

	loop.Run(context.Background(), dir)

	content, exists, err := fs.Read("math_test.go")
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, extended, content)
}

func TestCoverageLoopWiresRepairLoop(t *testing.T) {
	fs := projectfs.New(t.TempDir())
	loop := NewCoverageLoop(fs, &stubClient{}, 1)
	require.NotNil(t, loop.Repair)
}

func TestCoverageLoopNoChangeIsFailure(t *testing.T) {
	dir := t.TempDir()
	fs := projectfs.New(dir)
	original := "package math\n\nfunc TestA(t *testing.T) {}\n"
	require.NoError(t, fs.Write("math_test.go", original))

	client := &stubClient{rawText: original}

	loop := NewCoverageLoop(fs, client, 1)
	loop.Command = "sh"
	loop.Args = []string{"-c", `echo '{"files":{"math.go":0.5}}'`}

	result := loop.Run(context.Background(), dir)
	assert.False(t, result.Success)
	assert.Contains(t, result.Log, "no change")
}
