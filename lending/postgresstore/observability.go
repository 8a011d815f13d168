package postgresstore

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

const (
	logMsgBeginTxFailed       = "failed to begin transaction"
	logMsgCommitFailed        = "failed to commit transaction"
	logMsgRollbackFailed      = "failed to roll back transaction"
	logMsgDBQueryFailed       = "database query execution failed"
	logMsgDBExecFailed        = "database statement execution failed"
	logMsgRowsAffectedFailed  = "failed to get rows affected count"
	logMsgScanRowFailed       = "failed to scan database row"
	logMsgCloseRowsFailed     = "failed to close database rows"
	logMsgConcurrencyConflict = "concurrency conflict detected"
	logMsgOperationFailed     = "lending store operation failed: "
	logMsgSQLExecuted         = "executed sql for: "
	logMsgOperation           = "lending store operation: "

	logAttrError      = "error"
	logAttrErrorType  = "error_type"
	logAttrQuery      = "query"
	logAttrRowCount   = "row_count"
	logAttrDurationMS = "duration_ms"

	operationMigrate                     = "migrate"
	operationTransaction                 = "transaction"
	operationItem                        = "item"
	operationLockItem                    = "lock_item"
	operationItems                       = "items"
	operationInsertItem                  = "insert_item"
	operationUpdateItemCapacity          = "update_item_capacity"
	operationBorrowing                   = "borrowing"
	operationQueueEntry                  = "queue_entry"
	operationActiveBorrowings            = "active_borrowings"
	operationOpenQueueEntries            = "open_queue_entries"
	operationInsertBorrowing             = "insert_borrowing"
	operationUpdateBorrowing             = "update_borrowing"
	operationInsertQueueEntry            = "insert_queue_entry"
	operationUpdateQueueEntry            = "update_queue_entry"
	operationBorrowingsDueWithin         = "borrowings_due_within"
	operationBorrowingsOverdueAt         = "borrowings_overdue_at"
	operationItemsReturnedWithin         = "items_returned_within"
	operationQueueEntriesAvailableWithin = "queue_entries_available_within"
	operationQueueEntriesAvailableBefore = "queue_entries_available_before"
	operationSeedWatermark               = "seed_watermark"
	operationAcquirePassLease            = "acquire_pass_lease"
	operationReleasePassLease            = "release_pass_lease"
	operationAdvanceWatermark            = "advance_watermark"

	spanNamePrefix       = "lendingstore."
	spanAttrOperation    = "operation"
	spanAttrErrorType    = "error_type"
	spanAttrRowCount     = "row_count"
	spanAttrDurationMS   = "duration_ms"
	metricLabelStatus    = "status"
	metricLabelConflict  = "conflict_type"
	statusSuccess        = "success"
	statusError          = "error"
	conflictTypeLockWait = "serialization"

	metricOperationDuration    = "lendingstore_operation_duration_seconds"
	metricRowsReturned         = "lendingstore_rows_total"
	metricDatabaseErrors       = "lendingstore_database_errors_total"
	metricConcurrencyConflicts = "lendingstore_concurrency_conflicts_total"
)

// operationObserver bundles the span, metrics and logs of one store operation.
type operationObserver struct {
	s         *Store
	ctx       context.Context
	operation string
	span      lending.SpanContext
	start     time.Time
}

// startOperation starts the span of an operation and returns the context that carries it.
func (s *Store) startOperation(ctx context.Context, operation string) (*operationObserver, context.Context) {
	newCtx, span := s.startTraceSpan(ctx, spanNamePrefix+operation, map[string]string{spanAttrOperation: operation})

	return &operationObserver{
		s:         s,
		ctx:       newCtx,
		operation: operation,
		span:      span,
		start:     time.Now(),
	}, newCtx
}

// finish records the outcome of the operation and returns err unchanged.
func (o *operationObserver) finish(err error, rowCount int) error {
	duration := time.Since(o.start)

	if err != nil {
		errorType := classifyError(err)
		o.s.recordDurationMetrics(o.ctx, duration, o.operation, statusError)
		o.s.recordErrorMetrics(o.ctx, o.operation, errorType)

		switch errorType {
		case errorTypeConcurrencyConflict:
			o.s.recordConcurrencyConflictMetrics(o.ctx, o.operation)
			o.s.logOperation(o.ctx, logMsgConcurrencyConflict, spanAttrOperation, o.operation)
		case errorTypeDatabase, errorTypeBuildQuery:
			o.s.logError(o.ctx, logMsgOperationFailed+o.operation, err, logAttrErrorType, errorType)
		}

		o.s.finishTraceSpan(o.span, statusError, map[string]string{
			spanAttrErrorType:  errorType,
			spanAttrDurationMS: fmt.Sprintf("%.3f", toMilliseconds(duration)),
		})

		return err
	}

	o.s.recordDurationMetrics(o.ctx, duration, o.operation, statusSuccess)
	o.s.recordValueMetrics(o.ctx, metricRowsReturned, float64(rowCount), o.operation, statusSuccess)
	o.s.logOperation(
		o.ctx,
		o.operation,
		logAttrRowCount, rowCount,
		logAttrDurationMS, toMilliseconds(duration),
	)
	o.s.finishTraceSpan(o.span, statusSuccess, map[string]string{
		spanAttrRowCount:   fmt.Sprintf("%d", rowCount),
		spanAttrDurationMS: fmt.Sprintf("%.3f", toMilliseconds(duration)),
	})

	return nil
}

// logQueryWithDuration logs SQL statements with execution time at debug level.
func (s *Store) logQueryWithDuration(ctx context.Context, sqlQuery string, action string, duration time.Duration) {
	args := []any{logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery}

	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, args...)
	}

	if s.logger != nil {
		s.logger.Debug(logMsgSQLExecuted+action, args...)
	}
}

// logOperation logs operational information at info level.
func (s *Store) logOperation(ctx context.Context, action string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
	}

	if s.logger != nil {
		s.logger.Info(logMsgOperation+action, args...)
	}
}

// logWarn logs non-critical failures at warn level.
func (s *Store) logWarn(ctx context.Context, message string, err error) {
	if s.contextualLogger != nil {
		s.contextualLogger.WarnContext(ctx, message, logAttrError, err.Error())
	}

	if s.logger != nil {
		s.logger.Warn(message, logAttrError, err.Error())
	}
}

// logError logs error information at the error level.
func (s *Store) logError(ctx context.Context, message string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, message, allArgs...)
	}

	if s.logger != nil {
		s.logger.Error(message, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

func (s *Store) recordDurationMetrics(ctx context.Context, duration time.Duration, operation, status string) {
	if s.metricsCollector == nil {
		return
	}

	labels := map[string]string{spanAttrOperation: operation, metricLabelStatus: status}

	if contextualCollector, ok := s.metricsCollector.(lending.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metricOperationDuration, duration, labels)
		return
	}

	s.metricsCollector.RecordDuration(metricOperationDuration, duration, labels)
}

func (s *Store) recordValueMetrics(ctx context.Context, metric string, value float64, operation, status string) {
	if s.metricsCollector == nil {
		return
	}

	labels := map[string]string{spanAttrOperation: operation, metricLabelStatus: status}

	if contextualCollector, ok := s.metricsCollector.(lending.ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metric, value, labels)
		return
	}

	s.metricsCollector.RecordValue(metric, value, labels)
}

func (s *Store) recordErrorMetrics(ctx context.Context, operation, errorType string) {
	s.incrementCounter(ctx, metricDatabaseErrors, map[string]string{
		spanAttrOperation: operation,
		metricLabelStatus: statusError,
		spanAttrErrorType: errorType,
	})
}

func (s *Store) recordConcurrencyConflictMetrics(ctx context.Context, operation string) {
	s.incrementCounter(ctx, metricConcurrencyConflicts, map[string]string{
		spanAttrOperation:   operation,
		metricLabelConflict: conflictTypeLockWait,
	})
}

func (s *Store) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := s.metricsCollector.(lending.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metric, labels)
		return
	}

	s.metricsCollector.IncrementCounter(metric, labels)
}

// startTraceSpan starts a tracing span if the tracing collector is configured.
func (s *Store) startTraceSpan(
	ctx context.Context,
	name string,
	attrs map[string]string,
) (context.Context, lending.SpanContext) {

	if s.tracingCollector != nil {
		return s.tracingCollector.StartSpan(ctx, name, attrs)
	}

	return ctx, nil
}

// finishTraceSpan finishes a tracing span if the tracing collector is configured.
func (s *Store) finishTraceSpan(spanCtx lending.SpanContext, status string, attrs map[string]string) {
	if s.tracingCollector != nil && spanCtx != nil {
		s.tracingCollector.FinishSpan(spanCtx, status, attrs)
	}
}
