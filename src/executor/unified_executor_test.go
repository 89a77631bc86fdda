package executor

import (
	"context"
	"errors"
	"testing"

	"bouncebot/src/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRecorder struct {
	err     error
	runIDs  []string
	results []*OrderResult
}

func (m *mockRecorder) SaveTrade(ctx context.Context, runID string, result *OrderResult) error {
	m.runIDs = append(m.runIDs, runID)
	m.results = append(m.results, result)
	return m.err
}

func TestUnifiedExecutor_RecordsFills(t *testing.T) {
	recorder := &mockRecorder{}
	inner := NewBacktestExecutor(ModeBacktest)
	executor := NewUnifiedExecutor(inner, recorder, "run-1")

	assert.Equal(t, inner.GetName(), executor.GetName())
	assert.Equal(t, "run-1", executor.RunID())

	result, err := executor.Execute(context.Background(), createIntent(strategy.SideBuy, 10, 100))
	require.NoError(t, err)
	require.Len(t, recorder.results, 1)
	assert.Same(t, result, recorder.results[0])
	assert.Equal(t, []string{"run-1"}, recorder.runIDs)
	assert.NoError(t, executor.Close())
}

func TestUnifiedExecutor_RecorderErrorDoesNotFailTrade(t *testing.T) {
	recorder := &mockRecorder{err: errors.New("db down")}
	executor := NewUnifiedExecutor(NewBacktestExecutor(ModeBacktest), recorder, "run-2")

	result, err := executor.Execute(context.Background(), createIntent(strategy.SideBuy, 10, 100))
	assert.NoError(t, err)
	assert.NotNil(t, result)
}

func TestUnifiedExecutor_ExecutionErrorSkipsRecorder(t *testing.T) {
	recorder := &mockRecorder{}
	executor := NewUnifiedExecutor(NewBacktestExecutor(ModeBacktest), recorder, "run-3")

	_, err := executor.Execute(context.Background(), createIntent(strategy.SideSell, 10, 100))
	assert.Error(t, err)
	assert.Empty(t, recorder.results)
}

func TestUnifiedExecutor_NilRecorder(t *testing.T) {
	executor := NewUnifiedExecutor(NewBacktestExecutor(ModeBacktest), nil, "")
	_, err := executor.Execute(context.Background(), createIntent(strategy.SideBuy, 1, 100))
	assert.NoError(t, err)
}
