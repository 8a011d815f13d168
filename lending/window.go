package lending

import (
	"time"
)

// Window is the half-open time interval (After, Until] a daemon pass scans.
// An instant equal to After was already covered by the previous pass.
type Window struct {
	After time.Time
	Until time.Time
}

// NewWindow builds the window between the last and the current run time.
func NewWindow(lastRunTime time.Time, currentRunTime time.Time) Window {
	return Window{
		After: ToTimestamp(lastRunTime),
		Until: ToTimestamp(currentRunTime),
	}
}

// Contains reports whether t lies inside the window.
func (w Window) Contains(t time.Time) bool {
	return t.After(w.After) && !t.After(w.Until)
}

// IsEmpty reports whether no instant can lie inside the window.
func (w Window) IsEmpty() bool {
	return !w.Until.After(w.After)
}

// Shift moves both bounds by d.
func (w Window) Shift(d time.Duration) Window {
	return Window{
		After: w.After.Add(d),
		Until: w.Until.Add(d),
	}
}
