package core

import (
	"time"

	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// SelectPromotion picks the entry that becomes available at now, if a copy is unreserved and someone waits.
// The selected entry is returned with its available time set.
func SelectPromotion(s ItemState, now time.Time) (lending.QueueEntry, bool) {
	if s.UnreservedCopies() <= 0 {
		return lending.QueueEntry{}, false
	}

	next, ok := s.FirstWaiting()
	if !ok {
		return lending.QueueEntry{}, false
	}

	next.AvailableTime = lending.TimePtr(now)

	return next, true
}
