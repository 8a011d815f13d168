package shell_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/lending-daemon-go/app/shell"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
	"github.com/AntonStoeckl/lending-daemon-go/testutil/helper"
)

func Test_ClassifyCommandError(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want string
	}{
		{"nil is success", nil, shell.StatusSuccess},
		{"canceled", fmt.Errorf("load: %w", context.Canceled), shell.StatusCanceled},
		{"deadline", context.DeadlineExceeded, shell.StatusTimeout},
		{"conflict", errors.Join(lending.ErrConcurrencyConflict, errors.New("40001")), shell.StatusConcurrencyConflict},
		{"duplicate request", lending.ErrDuplicateRequest, shell.StatusRejected},
		{"queue non empty", lending.ErrQueueNonEmpty, shell.StatusRejected},
		{"unknown borrowing", lending.ErrBorrowingNotFound, shell.StatusRejected},
		{"capacity exceeded", lending.ErrCapacityExceeded, shell.StatusError},
		{"store unavailable", lending.ErrStoreUnavailable, shell.StatusError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, shell.ClassifyCommandError(tc.err))
		})
	}
}

func Test_RecordCommandMetrics_CountsPerStatus(t *testing.T) {
	// setup
	ctx := context.Background()
	metricsCollector := helper.NewMetricsCollectorSpy(true)

	// act
	shell.RecordCommandMetrics(ctx, metricsCollector, "Extend", shell.StatusRejected, 3*time.Millisecond)
	shell.RecordCommandMetrics(ctx, metricsCollector, "Extend", shell.StatusSuccess, 2*time.Millisecond)
	shell.RecordCommandMetrics(ctx, nil, "Extend", shell.StatusSuccess, time.Millisecond)

	// assert
	assert.Equal(t, 2, metricsCollector.HasDurationRecordForMetric(shell.CommandHandlerDurationMetric).
		WithLabel(shell.LogAttrCommandType, "Extend").Count())
	assert.Equal(t, 2, metricsCollector.HasCounterRecordForMetric(shell.CommandHandlerCallsMetric).Count())
	assert.True(t, metricsCollector.HasCounterRecordForMetric(shell.CommandHandlerRejectedMetric).
		WithStatus(shell.StatusRejected).Assert())
	assert.False(t, metricsCollector.HasCounterRecordForMetric(shell.CommandHandlerIdempotentMetric).Assert())
}

func Test_ToMilliseconds(t *testing.T) {
	assert.Equal(t, 1.5, shell.ToMilliseconds(1500*time.Microsecond))
	assert.Equal(t, 0.001, shell.ToMilliseconds(time.Microsecond))
}
