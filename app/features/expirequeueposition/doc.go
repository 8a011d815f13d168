// Package expirequeueposition implements the rule that expires a reserved queue position.
//
// The entry is marked expired and the copy it held is promoted to the next waiting requester in the
// same transaction. Expiring an entry that is already closed is a no-op. Only available entries can
// expire, a waiting entry is rejected with lending.ErrQueuePositionNotAvailable.
package expirequeueposition
