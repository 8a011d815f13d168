// Package extend implements the extend lending rule.
//
// An active borrowing may be extended only while nobody waits for the item. The new due time is
// the extension instant plus the policy's queue expiry period, the same grace a promoted requester gets.
package extend
