package consolidation

import (
	"context"
	"testing"

	"kai/internal/projectfs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairLoopAppliesCorrectedDiffOnSecondAttempt(t *testing.T) {
	fs := projectfs.New(t.TempDir())
	require.NoError(t, fs.Write("a.txt", "hello\n"))

	goodDiff := "--- a/a.txt\n+++ b/a.txt\n@@ -1,1 +1,1 @@\n-hello\n+goodbye\n"
	client := &stubClient{chatResponses: []string{"not a diff at all", goodDiff}}

	loop := NewRepairLoop(fs, client)
	loop.MaxAttempts = 3

	ok, err := loop.Repair(context.Background(), "a.txt", "broken diff", "context mismatch")
	require.NoError(t, err)
	assert.True(t, ok)

	content, _, _ := fs.Read("a.txt")
	assert.Equal(t, "goodbye\n", content)
}

func TestRepairLoopExitsImmediatelyOnEmptyResponse(t *testing.T) {
	fs := projectfs.New(t.TempDir())
	require.NoError(t, fs.Write("a.txt", "hello\n"))

	client := &stubClient{chatResponses: []string{""}}
	loop := NewRepairLoop(fs, client)
	loop.MaxAttempts = 5

	ok, err := loop.Repair(context.Background(), "a.txt", "broken diff", "context mismatch")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(1), client.chatCalls)
}

func TestRepairLoopGivesUpAfterMaxAttempts(t *testing.T) {
	fs := projectfs.New(t.TempDir())
	require.NoError(t, fs.Write("a.txt", "hello\n"))

	client := &stubClient{chatResponses: []string{"still broken"}}
	loop := NewRepairLoop(fs, client)
	loop.MaxAttempts = 2

	ok, err := loop.Repair(context.Background(), "a.txt", "broken diff", "context mismatch")
	require.NoError(t, err)
	assert.False(t, ok)
}
