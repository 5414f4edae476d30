package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StartsPending(t *testing.T) {
	tk := New(OperationAdd, "doc-1", "manual.pdf", "/tmp/upload-1.pdf")

	require.NotEmpty(t, tk.ID())
	assert.Equal(t, StatePending, tk.State())
	assert.False(t, tk.State().IsTerminal())
	assert.Equal(t, "doc-1", tk.DocumentID())
}

func TestTask_Transitions(t *testing.T) {
	tk := New(OperationUpdate, "doc-1", "manual.pdf", "/tmp/upload-1.pdf")

	running := tk.Running()
	assert.Equal(t, StateRunning, running.State())
	// The original value is unchanged.
	assert.Equal(t, StatePending, tk.State())

	done := running.Succeeded(42, 7)
	assert.Equal(t, StateSucceeded, done.State())
	assert.True(t, done.State().IsTerminal())
	assert.Equal(t, 42, done.PageCount())
	assert.Equal(t, 7, done.ImagesDeleted())

	failed := running.Failed("parser unreachable")
	assert.Equal(t, StateFailed, failed.State())
	assert.True(t, failed.State().IsTerminal())
	assert.Equal(t, "parser unreachable", failed.ErrorMessage())
}
