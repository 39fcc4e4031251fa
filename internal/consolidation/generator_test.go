package consolidation

import (
	"context"
	"testing"

	"kai/internal/model"
	"kai/internal/projectfs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestGenerateProducesDeterministicOrderRegardlessOfCompletion(t *testing.T) {
	defer goleak.VerifyNone(t)

	fs := projectfs.New(t.TempDir())
	client := &stubClient{chatResponses: []string{"content-a\n", "content-b\n"}}
	g := NewGenerator(fs, client, model.RetryPolicy{MaxRetries: 1, BaseDelayMs: 1})

	plan := &OperationPlan{Operations: []Operation{
		{Action: ActionCreate, FilePath: "a.go"},
		{Action: ActionCreate, FilePath: "b.go"},
		{Action: ActionDelete, FilePath: "c.go"},
	}}

	content, err := g.Generate(context.Background(), plan, "history", "context")
	require.NoError(t, err)
	assert.Equal(t, DeleteSentinel, content["c.go"])
	assert.NotEmpty(t, content["a.go"])
	assert.NotEmpty(t, content["b.go"])
}

func TestGenerateFailsWholeBatchOnEmptyResponseAfterRetries(t *testing.T) {
	defer goleak.VerifyNone(t)

	fs := projectfs.New(t.TempDir())
	client := &stubClient{chatResponses: []string{""}}
	g := NewGenerator(fs, client, model.RetryPolicy{MaxRetries: 1, BaseDelayMs: 1})

	plan := &OperationPlan{Operations: []Operation{{Action: ActionCreate, FilePath: "a.go"}}}
	_, err := g.Generate(context.Background(), plan, "history", "context")
	assert.Error(t, err)
}

func TestGenerateWithConcurrencyLimitProducesEveryFile(t *testing.T) {
	defer goleak.VerifyNone(t)

	fs := projectfs.New(t.TempDir())
	client := &stubClient{}
	g := NewGenerator(fs, client, model.RetryPolicy{MaxRetries: 0, BaseDelayMs: 1})
	g.Concurrency = 2

	ops := make([]Operation, 0, 6)
	for i := 0; i < 6; i++ {
		ops = append(ops, Operation{Action: ActionCreate, FilePath: string(rune('a'+i)) + ".go"})
	}
	plan := &OperationPlan{Operations: ops}

	content, err := g.Generate(context.Background(), plan, "history", "context")
	require.NoError(t, err)
	assert.Len(t, content, 6)
}
