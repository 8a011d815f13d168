// Package session adapts interactive requests to the lending rules.
//
// A Session reads the current time from its clock, builds the command and hands it to the rule's handler.
// Front-ends such as the lendingd CLI only deal with ids and the named errors of package lending.
package session
