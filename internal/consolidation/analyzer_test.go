package consolidation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzerPlanParsesValidResponse(t *testing.T) {
	client := &stubClient{structuredResponses: []string{
		`{"operations":[{"action":"CREATE","filePath":"src/hello.ts","rationale":"new file"}]}`,
	}}
	a := NewAnalyzer(client, 3)
	plan, err := a.Plan(context.Background(), "history", "context")
	require.NoError(t, err)
	require.Len(t, plan.Operations, 1)
	assert.Equal(t, ActionCreate, plan.Operations[0].Action)
	assert.Equal(t, "src/hello.ts", plan.Operations[0].FilePath)
}

func TestAnalyzerPlanRetriesThenSucceeds(t *testing.T) {
	client := &stubClient{structuredResponses: []string{
		`not json`,
		`{"operations":[{"action":"MODIFY","filePath":"a.go"}]}`,
	}}
	a := NewAnalyzer(client, 3)
	plan, err := a.Plan(context.Background(), "history", "context")
	require.NoError(t, err)
	require.Len(t, plan.Operations, 1)
}

func TestAnalyzerPlanFailsAfterExhaustingRetries(t *testing.T) {
	client := &stubClient{structuredResponses: []string{`still not json`}}
	a := NewAnalyzer(client, 1)
	_, err := a.Plan(context.Background(), "history", "context")
	assert.Error(t, err)
}
