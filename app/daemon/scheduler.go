package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/lending-daemon-go/app/features/expirequeueposition"
	"github.com/AntonStoeckl/lending-daemon-go/app/features/promote"
	"github.com/AntonStoeckl/lending-daemon-go/app/notify"
	"github.com/AntonStoeckl/lending-daemon-go/app/shell"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

var (
	// ErrPassIncomplete is returned when at least one record of a pass could not be handled.
	// The watermark stays where it was, so the next pass scans the same window again.
	ErrPassIncomplete = errors.New("daemon pass left records unhandled, watermark not advanced")

	// ErrInvalidInterval is returned by Watch for a non-positive interval.
	ErrInvalidInterval = errors.New("watch interval must be positive")

	// ErrNilStore is returned by NewScheduler without a store.
	ErrNilStore = errors.New("daemon store must not be nil")

	// ErrNilNotifier is returned by NewScheduler without a notifier.
	ErrNilNotifier = errors.New("daemon notifier must not be nil")
)

// Store is the part of lending.Store a pass needs.
type Store interface {
	lending.ItemReader
	lending.Transactor
	lending.TimeQueries
	lending.WatermarkStore
}

// PassReport summarizes one pass.
type PassReport struct {
	Window               lending.Window
	StepRecords          map[string]int
	NotificationsSent    int
	NotificationFailures int
	Promotions           int
	Expirations          int
	FailedRecords        int
	WatermarkAdvanced    bool
}

// Scheduler runs daemon passes against a Store and sends notices through a Notifier.
//
// A pass with a failed record keeps the watermark, so the next pass scans the same window again.
// Close-deadline and expiring-queue-position reminders of that window are sent again on every pass
// while the record keeps failing.
type Scheduler struct {
	store          Store
	notifier       notify.Notifier
	templates      *notify.Templates
	policy         lending.Policy
	leaseTTL       time.Duration
	clock          func() time.Time
	promoteHandler shell.CommandHandler[promote.Command, promote.Result]
	expireHandler  shell.CommandHandler[expirequeueposition.Command, expirequeueposition.Result]
	observer       observer
}

// NewScheduler creates a Scheduler with the default policy unless WithPolicy says otherwise.
func NewScheduler(store Store, notifier notify.Notifier, opts ...Option) (*Scheduler, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	if notifier == nil {
		return nil, ErrNilNotifier
	}

	templates, err := notify.NewTemplates()
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		store:          store,
		notifier:       notifier,
		templates:      templates,
		policy:         lending.DefaultPolicy(),
		leaseTTL:       defaultLeaseTTL,
		clock:          time.Now,
		promoteHandler: promote.NewCommandHandler(store),
		expireHandler:  expirequeueposition.NewCommandHandler(store),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// RunPass runs the six steps of a pass for the window between the watermark and now.
//
// It returns lending.ErrPassInProgress without touching anything when another pass holds the lease,
// ErrPassIncomplete when single records failed, and the cause when a step query failed or an item was found
// with more active borrowings than copies.
func (s *Scheduler) RunPass(ctx context.Context, now time.Time) (PassReport, error) {
	now = lending.ToTimestamp(now)
	start := time.Now()
	ctx, span := s.observer.startSpan(ctx, SpanNameRunPass, nil)

	report, err := s.runPass(ctx, now)

	elapsed := time.Since(start)
	status := passStatus(err)
	labels := map[string]string{LogAttrStatus: status}
	s.observer.duration(ctx, PassDurationMetric, elapsed, labels)
	s.observer.count(ctx, PassCallsMetric, labels)
	s.observer.finishSpan(span, status, elapsed, err)

	summary := []any{
		LogAttrNotificationsSent, report.NotificationsSent,
		LogAttrNotificationErrors, report.NotificationFailures,
		LogAttrFailedRecords, report.FailedRecords,
		LogAttrDurationMS, shell.ToMilliseconds(elapsed),
	}

	switch status {
	case StatusSuccess:
		s.observer.info(ctx, LogMsgPassCompleted, summary...)
	case StatusSkipped:
		s.observer.info(ctx, LogMsgPassSkipped)
	case StatusIncomplete:
		s.observer.warn(ctx, LogMsgPassIncomplete, summary...)
	default:
		s.observer.error(ctx, LogMsgPassFailed, append(summary, LogAttrError, err.Error())...)
	}

	return report, err
}

func (s *Scheduler) runPass(ctx context.Context, now time.Time) (PassReport, error) {
	if err := s.store.SeedWatermark(ctx, now); err != nil {
		return PassReport{}, fmt.Errorf("seeding the watermark: %w", err)
	}

	owner := uuid.New()

	watermark, acquired, err := s.store.AcquirePassLease(ctx, owner, now, now.Add(s.leaseTTL))
	if err != nil {
		return PassReport{}, fmt.Errorf("acquiring the pass lease: %w", err)
	}

	if !acquired {
		s.observer.count(ctx, PassLeaseUnavailableMetric, nil)
		return PassReport{}, lending.ErrPassInProgress
	}

	defer s.releaseLease(ctx, owner)

	p := newPass(s, lending.NewWindow(watermark.LastRunTime, now), now)

	s.observer.info(
		ctx,
		LogMsgPassStarted,
		LogAttrWindowAfter, p.window.After.Format(time.RFC3339Nano),
		LogAttrWindowUntil, p.window.Until.Format(time.RFC3339Nano),
	)
	s.observer.value(ctx, WatermarkLagMetric, now.Sub(watermark.LastRunTime).Seconds(), nil)

	steps := []struct {
		name string
		run  func(ctx context.Context) (int, error)
	}{
		{StepCloseDeadlines, p.sendCloseDeadlineReminders},
		{StepOverdue, p.sendOverdueReminders},
		{StepPromotions, p.promoteForReturnedItems},
		{StepExpiringReminder, p.sendExpiringQueuePositionReminders},
		{StepExpirations, p.expireLapsedQueuePositions},
	}

	for _, step := range steps {
		if err := p.runStep(ctx, step.name, step.run); err != nil {
			return p.report, err
		}
	}

	if p.report.FailedRecords > 0 {
		return p.report, ErrPassIncomplete
	}

	if err := p.runStep(ctx, StepWatermark, p.advanceWatermark); err != nil {
		return p.report, err
	}

	p.report.WatermarkAdvanced = true

	return p.report, nil
}

func (s *Scheduler) releaseLease(ctx context.Context, owner uuid.UUID) {
	if err := s.store.ReleasePassLease(context.WithoutCancel(ctx), owner); err != nil {
		s.observer.warn(ctx, LogMsgLeaseReleaseFailed, LogAttrError, err.Error())
	}
}

// Watch runs a pass right away and then every interval until ctx is done.
// A failed pass is logged by RunPass and does not stop the loop.
func (s *Scheduler) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w, got %s", ErrInvalidInterval, interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_, _ = s.RunPass(ctx, s.clock())

		select {
		case <-ctx.Done():
			s.observer.info(ctx, LogMsgWatchStopped)
			return nil
		case <-ticker.C:
		}
	}
}

func passStatus(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, lending.ErrPassInProgress):
		return StatusSkipped
	case errors.Is(err, ErrPassIncomplete):
		return StatusIncomplete
	default:
		return StatusError
	}
}
