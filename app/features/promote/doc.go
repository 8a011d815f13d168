// Package promote implements the promote lending rule.
//
// Promotion reserves an unreserved copy for the earliest waiting requester by setting the entry's
// available time. It is a no-op when nobody waits or when every copy is lent out or already reserved,
// so running it again with an old daemon watermark never over-reserves.
package promote
