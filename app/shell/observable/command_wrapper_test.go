package observable_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/lending-daemon-go/app/shell"
	"github.com/AntonStoeckl/lending-daemon-go/app/shell/observable"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
	"github.com/AntonStoeckl/lending-daemon-go/testutil/helper"
)

type mockCommand struct {
	RequesterID string
}

func (c mockCommand) CommandType() string {
	return "TestCommand"
}

type mockResult struct {
	Value string
}

type mockHandler struct {
	result        mockResult
	handlerResult shell.HandlerResult
	err           error
	calls         []mockCommand
	sawContext    context.Context
}

func (h *mockHandler) Handle(ctx context.Context, command mockCommand) (mockResult, shell.HandlerResult, error) {
	h.calls = append(h.calls, command)
	h.sawContext = ctx

	return h.result, h.handlerResult, h.err
}

func Test_CommandWrapper_Handle_Success_NonIdempotent(t *testing.T) {
	// setup
	handler := &mockHandler{
		result:        mockResult{Value: "borrowed"},
		handlerResult: shell.HandlerResult{RetryAttempts: 1, LastErrorType: "none"},
	}
	metricsCollector := helper.NewMetricsCollectorSpy(true)
	tracingCollector := helper.NewTracingCollectorSpy(true)
	logHandler := helper.NewLogHandlerSpy(false)

	wrapper, err := observable.NewCommandWrapper[mockCommand, mockResult](
		handler,
		observable.WithCommandMetrics[mockCommand, mockResult](metricsCollector),
		observable.WithCommandTracing[mockCommand, mockResult](tracingCollector),
		observable.WithCommandContextualLogging[mockCommand, mockResult](slog.New(logHandler)),
	)
	require.NoError(t, err)

	command := mockCommand{RequesterID: "alice"}

	// act
	result, handlerResult, err := wrapper.Handle(context.Background(), command)

	// assert
	assert.NoError(t, err)
	assert.Equal(t, mockResult{Value: "borrowed"}, result)
	assert.Equal(t, handler.handlerResult, handlerResult)
	assert.Equal(t, []mockCommand{command}, handler.calls)

	assert.True(t, metricsCollector.HasCounterRecordForMetric(shell.CommandHandlerCallsMetric).
		WithLabel("command_type", "TestCommand").
		WithStatus("success").
		Assert())
	assert.True(t, metricsCollector.HasDurationRecordForMetric(shell.CommandHandlerDurationMetric).
		WithStatus("success").
		Assert())
	assert.True(t, tracingCollector.HasSpanWithStatus(shell.SpanNameCommandHandle, "success"))
	assert.True(t, logHandler.HasInfoLogWithMessage("command handler started").Assert())
	assert.True(t, logHandler.HasInfoLogWithMessage("command handler completed").WithDurationMS().Assert())
}

func Test_CommandWrapper_Handle_Success_Idempotent(t *testing.T) {
	// setup
	handler := &mockHandler{handlerResult: shell.HandlerResult{Idempotent: true, RetryAttempts: 1}}
	metricsCollector := helper.NewMetricsCollectorSpy(true)

	wrapper, err := observable.NewCommandWrapper[mockCommand, mockResult](
		handler,
		observable.WithCommandMetrics[mockCommand, mockResult](metricsCollector),
	)
	require.NoError(t, err)

	// act
	_, handlerResult, err := wrapper.Handle(context.Background(), mockCommand{})

	// assert
	assert.NoError(t, err)
	assert.True(t, handlerResult.Idempotent)
	assert.True(t, metricsCollector.HasCounterRecordForMetric(shell.CommandHandlerIdempotentMetric).
		WithLabel("command_type", "TestCommand").
		Assert())
}

func Test_CommandWrapper_Handle_WithRetries_RecordsMetrics(t *testing.T) {
	// setup
	handler := &mockHandler{handlerResult: shell.HandlerResult{
		RetryAttempts:    6,
		TotalRetryDelay:  15 * time.Millisecond,
		LastErrorType:    "concurrency_conflict",
		RetriesExhausted: true,
	}, err: lending.ErrConcurrencyConflict}
	metricsCollector := helper.NewMetricsCollectorSpy(true)

	wrapper, err := observable.NewCommandWrapper[mockCommand, mockResult](
		handler,
		observable.WithCommandMetrics[mockCommand, mockResult](metricsCollector),
	)
	require.NoError(t, err)

	// act
	_, _, err = wrapper.Handle(context.Background(), mockCommand{})

	// assert
	assert.ErrorIs(t, err, lending.ErrConcurrencyConflict)
	assert.True(t, metricsCollector.HasCounterRecordForMetric(shell.CommandHandlerRetriesMetric).
		WithLabel("attempt_number", "5").
		WithErrorType("concurrency_conflict").
		Assert())
	assert.True(t, metricsCollector.HasDurationRecordForMetric(shell.CommandHandlerRetryDelayMetric).Assert())
	assert.True(t, metricsCollector.HasCounterRecordForMetric(shell.CommandHandlerMaxRetriesReachedMetric).Assert())
	assert.True(t, metricsCollector.HasCounterRecordForMetric(shell.CommandHandlerConcurrencyConflictMetric).Assert())
}

func Test_CommandWrapper_Handle_Rejection_LogsAtInfo(t *testing.T) {
	// setup
	handler := &mockHandler{err: lending.ErrQueueNonEmpty, handlerResult: shell.HandlerResult{RetryAttempts: 1}}
	metricsCollector := helper.NewMetricsCollectorSpy(true)
	tracingCollector := helper.NewTracingCollectorSpy(true)
	logHandler := helper.NewLogHandlerSpy(false)

	wrapper, err := observable.NewCommandWrapper[mockCommand, mockResult](
		handler,
		observable.WithCommandMetrics[mockCommand, mockResult](metricsCollector),
		observable.WithCommandTracing[mockCommand, mockResult](tracingCollector),
		observable.WithCommandLogging[mockCommand, mockResult](slog.New(logHandler)),
	)
	require.NoError(t, err)

	// act
	_, _, err = wrapper.Handle(context.Background(), mockCommand{})

	// assert
	assert.ErrorIs(t, err, lending.ErrQueueNonEmpty)
	assert.True(t, metricsCollector.HasCounterRecordForMetric(shell.CommandHandlerRejectedMetric).Assert())
	assert.True(t, tracingCollector.HasSpanWithStatus(shell.SpanNameCommandHandle, "rejected"))
	assert.True(t, logHandler.HasInfoLogWithMessage("command handler rejected").WithAttr("error").Assert())
	assert.False(t, logHandler.HasErrorLogWithMessage("command handler failed").Assert())
}

func Test_CommandWrapper_Handle_Error_RecordsCorrectStatus(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status string
	}{
		{"infrastructure failure", errors.Join(lending.ErrStoreUnavailable, errors.New("connection refused")), shell.StatusError},
		{"canceled", context.Canceled, shell.StatusCanceled},
		{"timeout", context.DeadlineExceeded, shell.StatusTimeout},
		{"capacity exceeded", lending.ErrCapacityExceeded, shell.StatusError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// setup
			handler := &mockHandler{err: tc.err}
			metricsCollector := helper.NewMetricsCollectorSpy(true)
			logHandler := helper.NewLogHandlerSpy(false)

			wrapper, err := observable.NewCommandWrapper[mockCommand, mockResult](
				handler,
				observable.WithCommandMetrics[mockCommand, mockResult](metricsCollector),
				observable.WithCommandContextualLogging[mockCommand, mockResult](slog.New(logHandler)),
			)
			require.NoError(t, err)

			// act
			_, _, err = wrapper.Handle(context.Background(), mockCommand{})

			// assert
			assert.ErrorIs(t, err, tc.err)
			assert.True(t, metricsCollector.HasCounterRecordForMetric(shell.CommandHandlerCallsMetric).
				WithStatus(tc.status).
				Assert())
			assert.True(t, logHandler.HasErrorLogWithMessage("command handler failed").Assert())
		})
	}
}

func Test_CommandWrapper_Handle_WithoutObservability_PropagatesContext(t *testing.T) {
	// setup
	type ctxKey struct{}
	handler := &mockHandler{result: mockResult{Value: "ok"}}

	wrapper, err := observable.NewCommandWrapper[mockCommand, mockResult](handler)
	require.NoError(t, err)

	ctx := context.WithValue(context.Background(), ctxKey{}, "request-1")

	// act
	result, _, err := wrapper.Handle(ctx, mockCommand{})

	// assert
	assert.NoError(t, err)
	assert.Equal(t, "ok", result.Value)
	assert.Equal(t, "request-1", handler.sawContext.Value(ctxKey{}))
}
