package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionErrorUnwraps(t *testing.T) {
	err := fmt.Errorf("run: %w", &ExecutionError{Phase: PhaseMatch, SearchID: "s1", Err: context.Canceled})
	assert.True(t, IsCancelled(err))
	assert.Contains(t, err.Error(), "search s1: match phase")

	var ee *ExecutionError
	assert.True(t, errors.As(err, &ee))
	assert.Equal(t, PhaseMatch, ee.Phase)
}

func TestEmptyScopeError(t *testing.T) {
	err := &ExecutionError{Phase: PhaseScope, SearchID: "s1", Err: &EmptyScopeError{Scope: "participants"}}
	assert.True(t, IsEmptyScope(err))
	assert.False(t, IsCancelled(err))
	assert.Contains(t, err.Error(), "no participants match the filter")
}
