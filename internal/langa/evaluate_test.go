package langa

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/codetrace/internal/trace"
)

func TestEvaluate_EmitsStepEventPerStatement(t *testing.T) {
	doc, err := Evaluate("let x = 1;\nlet y = x + 1;", EvaluateOptions{})
	require.NoError(t, err)
	require.Len(t, doc.Events, 2)
	assert.Equal(t, trace.KindStep, doc.Events[0].Event)
	assert.Equal(t, 1, doc.Events[0].LineNumber())
	assert.Equal(t, trace.KindStep, doc.Events[1].Event)
	assert.Equal(t, 2, doc.Events[1].LineNumber())
	assert.EqualValues(t, float64(1), doc.Events[1].Locals["x"])
}

func TestEvaluate_ConsoleLogProducesLogEvent(t *testing.T) {
	doc, err := Evaluate(`console.log("hello", 42);`, EvaluateOptions{})
	require.NoError(t, err)
	require.Len(t, doc.Events, 2)
	assert.Equal(t, trace.KindStep, doc.Events[0].Event)
	assert.Equal(t, trace.KindLog, doc.Events[1].Event)
	assert.Equal(t, "hello 42", *doc.Events[1].Value)
}

func TestEvaluate_UncaughtThrowProducesTerminalErrorEvent(t *testing.T) {
	doc, err := Evaluate(`throw new Error("boom");`, EvaluateOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, doc.Events)
	last := doc.Events[len(doc.Events)-1]
	assert.Equal(t, trace.KindError, last.Event)
	assert.Contains(t, *last.Message, "boom")
}

func TestEvaluate_TimeoutProducesTerminalErrorEvent(t *testing.T) {
	doc, err := Evaluate("while (true) {}", EvaluateOptions{Deadline: 50 * time.Millisecond})
	require.NoError(t, err)
	require.NotEmpty(t, doc.Events)
	last := doc.Events[len(doc.Events)-1]
	assert.Equal(t, trace.KindError, last.Event)
}

func TestEvaluate_InvalidSyntaxPropagatesInstrumentationError(t *testing.T) {
	_, err := Evaluate("let x = ;", EvaluateOptions{})
	require.Error(t, err)
	var instErr *InstrumentationError
	require.ErrorAs(t, err, &instErr)
}

func TestEvaluate_LocalsSnapshotExcludesSandboxBindings(t *testing.T) {
	doc, err := Evaluate("let x = 1;", EvaluateOptions{})
	require.NoError(t, err)
	require.Len(t, doc.Events, 1)
	_, hasConsole := doc.Events[0].Locals["console"]
	assert.False(t, hasConsole)
}
