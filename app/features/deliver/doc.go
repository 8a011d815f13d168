// Package deliver implements the deliver lending rule: a borrower hands a copy back.
//
// Delivering does not promote anyone from the queue. The daemon picks up returned items in
// its next pass and promotes waiting requesters there.
package deliver
