// Package notify delivers the daemon's notices to borrowers and requesters.
//
// A Notifier sends one plain-text message to one recipient. SMTPNotifier talks to a mail relay with
// STARTTLS and PLAIN auth. LogNotifier only logs the message and is used for dry runs and when SMTP
// is disabled. Templates renders the subjects and bodies of the five notices from an x/text message catalog.
package notify
