package daemon

import (
	"errors"
	"fmt"
	"time"

	"github.com/AntonStoeckl/lending-daemon-go/app/features/expirequeueposition"
	"github.com/AntonStoeckl/lending-daemon-go/app/features/promote"
	"github.com/AntonStoeckl/lending-daemon-go/app/shell"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

const defaultLeaseTTL = 10 * time.Minute

// ErrInvalidLeaseTTL is returned when the pass lease would not outlive a single instant.
var ErrInvalidLeaseTTL = errors.New("pass lease ttl must be positive")

// Option configures a Scheduler.
type Option func(*Scheduler) error

// WithPolicy sets the lending policy the pass evaluates lead times and grace periods with.
func WithPolicy(policy lending.Policy) Option {
	return func(s *Scheduler) error {
		if err := policy.Validate(); err != nil {
			return err
		}

		s.policy = policy

		return nil
	}
}

// WithLeaseTTL sets how long a pass may hold the pass lease before another pass may take it over.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(s *Scheduler) error {
		if ttl <= 0 {
			return fmt.Errorf("%w, got %s", ErrInvalidLeaseTTL, ttl)
		}

		s.leaseTTL = ttl

		return nil
	}
}

// WithClock sets the clock Watch reads the pass time from.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) error {
		s.clock = clock
		return nil
	}
}

// WithPromoteHandler replaces the promote handler, e.g. with an observable wrapper around it.
func WithPromoteHandler(handler shell.CommandHandler[promote.Command, promote.Result]) Option {
	return func(s *Scheduler) error {
		s.promoteHandler = handler
		return nil
	}
}

// WithExpireHandler replaces the expire_queue_position handler.
func WithExpireHandler(
	handler shell.CommandHandler[expirequeueposition.Command, expirequeueposition.Result],
) Option {

	return func(s *Scheduler) error {
		s.expireHandler = handler
		return nil
	}
}

// WithLogger sets the logger for pass and step summaries and for failed records.
func WithLogger(logger lending.Logger) Option {
	return func(s *Scheduler) error {
		s.observer.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger, which takes precedence over WithLogger.
func WithContextualLogger(logger lending.ContextualLogger) Option {
	return func(s *Scheduler) error {
		s.observer.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector lending.MetricsCollector) Option {
	return func(s *Scheduler) error {
		s.observer.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector. Every pass gets a span, every step a child span.
func WithTracing(collector lending.TracingCollector) Option {
	return func(s *Scheduler) error {
		s.observer.tracingCollector = collector
		return nil
	}
}
