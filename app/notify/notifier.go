package notify

import (
	"context"
	"fmt"
	"strings"
)

// Notifier sends a single message to a single recipient.
// Failures are reported as lending.ErrNotificationFailure joined with the cause.
type Notifier interface {
	Notify(ctx context.Context, recipient string, subject string, body string) error
}

// RecipientAddress turns a borrower or requester id into a mail address.
// Ids that already contain an "@" are used as they are, so are all ids when domain is empty.
func RecipientAddress(id string, domain string) string {
	id = strings.TrimSpace(id)
	domain = strings.TrimPrefix(strings.TrimSpace(domain), "@")

	if domain == "" || strings.Contains(id, "@") {
		return id
	}

	return fmt.Sprintf("%s@%s", id, domain)
}

// PrefixedSubject puts the configured prefix in front of the subject.
func PrefixedSubject(prefix string, subject string) string {
	if prefix == "" {
		return subject
	}

	return prefix + " " + subject
}
