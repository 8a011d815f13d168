// Package daemon runs the time-driven part of the lending rules.
//
// A pass scans the window between the last completed pass and now. It sends due-date and overdue reminders,
// promotes requesters for copies returned inside the window, reminds promoted requesters of their grace deadline
// and expires the queue positions whose grace period lapsed. The watermark only moves forward when every record
// of the pass was handled, so a failed record is picked up again by the next pass.
//
// Passes are serialized across processes by a lease stored next to the watermark.
package daemon
