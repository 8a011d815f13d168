package lending

import (
	"fmt"
	"time"
)

const (
	defaultLoanTermDays    = 30
	defaultQueueExpiryDays = 7
)

// Day is the unit all policy durations are configured in.
const Day = 24 * time.Hour

// Policy is the configuration value object injected into the lending rules and the daemon.
type Policy struct {
	// LoanTerm is added to the start time of a new borrowing to compute its due time.
	LoanTerm time.Duration

	// QueueExpiry is the grace period a promoted requester has to claim the reserved copy.
	// Extending a borrowing also moves its due time to now + QueueExpiry.
	QueueExpiry time.Duration

	// DeadlineLeadTimes are the distances before a due time at which a reminder is sent.
	DeadlineLeadTimes []time.Duration

	// QueueExpiryLeadTimes are the distances before a grace deadline at which a reminder is sent.
	QueueExpiryLeadTimes []time.Duration
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		LoanTerm:             Days(defaultLoanTermDays),
		QueueExpiry:          Days(defaultQueueExpiryDays),
		DeadlineLeadTimes:    []time.Duration{Days(1), Days(3)},
		QueueExpiryLeadTimes: []time.Duration{Days(1)},
	}
}

// Days converts a day count to a duration.
func Days(n int) time.Duration {
	return time.Duration(n) * Day
}

// DaysList converts day counts to durations.
func DaysList(days []int) []time.Duration {
	durations := make([]time.Duration, 0, len(days))
	for _, d := range days {
		durations = append(durations, Days(d))
	}

	return durations
}

// Validate rejects policies the daemon cannot evaluate unambiguously.
func (p Policy) Validate() error {
	if p.LoanTerm <= 0 {
		return fmt.Errorf("%w: loan term must be positive", ErrInvalidPolicy)
	}

	if p.QueueExpiry <= 0 {
		return fmt.Errorf("%w: queue expiry must be positive", ErrInvalidPolicy)
	}

	if err := validateLeadTimes("deadline", p.DeadlineLeadTimes); err != nil {
		return err
	}

	return validateLeadTimes("queue expiry", p.QueueExpiryLeadTimes)
}

func validateLeadTimes(kind string, leadTimes []time.Duration) error {
	seen := make(map[time.Duration]struct{}, len(leadTimes))

	for _, lead := range leadTimes {
		if lead < 0 {
			return fmt.Errorf("%w: %s lead time must not be negative, got %s", ErrInvalidPolicy, kind, lead)
		}

		if _, ok := seen[lead]; ok {
			return fmt.Errorf("%w: duplicate %s lead time %s", ErrInvalidPolicy, kind, lead)
		}

		seen[lead] = struct{}{}
	}

	return nil
}

// DueTime is the due time of a borrowing started at start.
func (p Policy) DueTime(start time.Time) time.Time {
	return ToTimestamp(start.Add(p.LoanTerm))
}

// ExtendedDueTime is the due time of a borrowing extended at now.
func (p Policy) ExtendedDueTime(now time.Time) time.Time {
	return ToTimestamp(now.Add(p.QueueExpiry))
}

// GraceDeadline is the instant an available queue entry lapses. The second result is false for entries
// that never became available.
func (p Policy) GraceDeadline(entry QueueEntry) (time.Time, bool) {
	if entry.AvailableTime == nil {
		return time.Time{}, false
	}

	return ToTimestamp(entry.AvailableTime.Add(p.QueueExpiry)), true
}

// HasLapsed reports whether the grace deadline of an available entry lies before now.
func (p Policy) HasLapsed(entry QueueEntry, now time.Time) bool {
	deadline, ok := p.GraceDeadline(entry)
	if !ok {
		return false
	}

	return deadline.Before(now)
}
