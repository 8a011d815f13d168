package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AntonStoeckl/lending-daemon-go/app/shell"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// Metric names.
const (
	PassDurationMetric         = "daemon_pass_duration_seconds"
	PassCallsMetric            = "daemon_pass_calls_total"
	StepDurationMetric         = "daemon_step_duration_seconds"
	NotificationsMetric        = "daemon_notifications_total"
	TransitionsMetric          = "daemon_transitions_total"
	RecordFailuresMetric       = "daemon_record_failures_total"
	CapacityViolationsMetric   = "daemon_capacity_violations_total"
	WatermarkLagMetric         = "daemon_watermark_lag_seconds"
	PassLeaseUnavailableMetric = "daemon_pass_lease_unavailable_total"
)

// Status values.
const (
	StatusSuccess    = "success"
	StatusError      = "error"
	StatusIncomplete = "incomplete"
	StatusSkipped    = "skipped"
	StatusSent       = "sent"
	StatusFailed     = "failed"
)

// Step names, in pass order.
const (
	StepCloseDeadlines   = "close_deadlines"
	StepOverdue          = "overdue"
	StepPromotions       = "promotions"
	StepExpiringReminder = "expiring_reminders"
	StepExpirations      = "expirations"
	StepWatermark        = "watermark"
)

// Notification kinds.
const (
	KindCloseDeadline         = "close_deadline"
	KindOverdue               = "overdue"
	KindNewlyAvailable        = "newly_available"
	KindExpiringQueuePosition = "expiring_queue_position"
	KindExpired               = "expired"
)

// Transition kinds.
const (
	TransitionPromoted = "promoted"
	TransitionExpired  = "expired"
)

// Log messages and attributes.
const (
	LogMsgPassStarted         = "daemon pass started"
	LogMsgPassCompleted       = "daemon pass completed"
	LogMsgPassIncomplete      = "daemon pass completed with failed records, watermark not advanced"
	LogMsgPassFailed          = "daemon pass failed"
	LogMsgPassSkipped         = "daemon pass skipped, another pass holds the lease"
	LogMsgStepCompleted       = "daemon step completed"
	LogMsgNotificationFailed  = "notification failed"
	LogMsgRecordFailed        = "daemon could not handle record"
	LogMsgCapacityViolated    = "active borrowings exceed item capacity"
	LogMsgLeaseReleaseFailed  = "could not release the pass lease"
	LogMsgWatchStopped        = "daemon watch stopped"
	LogAttrStep               = "step"
	LogAttrStatus             = "status"
	LogAttrKind               = "kind"
	LogAttrCount              = "count"
	LogAttrRecipient          = "recipient"
	LogAttrSubject            = "subject"
	LogAttrRecordID           = "record_id"
	LogAttrWindowAfter        = "window_after"
	LogAttrWindowUntil        = "window_until"
	LogAttrDurationMS         = "duration_ms"
	LogAttrError              = "error"
	LogAttrFailedRecords      = "failed_records"
	LogAttrNotificationsSent  = "notifications_sent"
	LogAttrNotificationErrors = "notification_failures"
	SpanNameRunPass           = "daemon.run_pass"
	SpanNameStep              = "daemon.step"
)

type observer struct {
	logger           lending.Logger
	contextualLogger lending.ContextualLogger
	metricsCollector lending.MetricsCollector
	tracingCollector lending.TracingCollector
}

func (o observer) info(ctx context.Context, msg string, args ...any) {
	if o.contextualLogger != nil {
		o.contextualLogger.InfoContext(ctx, msg, args...)
	} else if o.logger != nil {
		o.logger.Info(msg, args...)
	}
}

func (o observer) warn(ctx context.Context, msg string, args ...any) {
	if o.contextualLogger != nil {
		o.contextualLogger.WarnContext(ctx, msg, args...)
	} else if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}

func (o observer) error(ctx context.Context, msg string, args ...any) {
	if o.contextualLogger != nil {
		o.contextualLogger.ErrorContext(ctx, msg, args...)
	} else if o.logger != nil {
		o.logger.Error(msg, args...)
	}
}

func (o observer) count(ctx context.Context, metric string, labels map[string]string) {
	shell.IncrementCounter(ctx, o.metricsCollector, metric, labels)
}

func (o observer) duration(ctx context.Context, metric string, d time.Duration, labels map[string]string) {
	if o.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := o.metricsCollector.(lending.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metric, d, labels)
		return
	}

	o.metricsCollector.RecordDuration(metric, d, labels)
}

func (o observer) value(ctx context.Context, metric string, v float64, labels map[string]string) {
	if o.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := o.metricsCollector.(lending.ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metric, v, labels)
		return
	}

	o.metricsCollector.RecordValue(metric, v, labels)
}

func (o observer) startSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, lending.SpanContext) {
	if o.tracingCollector == nil {
		return ctx, nil
	}

	return o.tracingCollector.StartSpan(ctx, name, attrs)
}

func (o observer) finishSpan(span lending.SpanContext, status string, d time.Duration, err error) {
	if o.tracingCollector == nil || span == nil {
		return
	}

	attrs := map[string]string{
		LogAttrStatus:     status,
		LogAttrDurationMS: fmt.Sprintf("%.3f", shell.ToMilliseconds(d)),
	}

	if err != nil {
		attrs[LogAttrError] = err.Error()
	}

	o.tracingCollector.FinishSpan(span, status, attrs)
}

func (o observer) notification(ctx context.Context, kind string, status string) {
	o.count(ctx, NotificationsMetric, map[string]string{LogAttrKind: kind, LogAttrStatus: status})
}

func (o observer) transition(ctx context.Context, kind string) {
	o.count(ctx, TransitionsMetric, map[string]string{LogAttrKind: kind})
}

func (o observer) recordFailure(ctx context.Context, step string, recordID fmt.Stringer, err error) {
	if errors.Is(err, lending.ErrCapacityExceeded) {
		o.count(ctx, CapacityViolationsMetric, map[string]string{LogAttrStep: step})
		o.error(ctx, LogMsgCapacityViolated, LogAttrStep, step, LogAttrRecordID, recordID.String(), LogAttrError, err.Error())

		return
	}

	o.count(ctx, RecordFailuresMetric, map[string]string{LogAttrStep: step})
	o.error(ctx, LogMsgRecordFailed, LogAttrStep, step, LogAttrRecordID, recordID.String(), LogAttrError, err.Error())
}
