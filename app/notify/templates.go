package notify

import (
	"time"

	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// DateLayout is the layout of every date shown in a notice.
const DateLayout = "Mon Jan 02, 2006"

const (
	keyCloseDeadlineSubject         = "close_deadline.subject"
	keyCloseDeadlineBody            = "close_deadline.body"
	keyOverdueSubject               = "overdue.subject"
	keyOverdueBody                  = "overdue.body"
	keyNewlyAvailableSubject        = "newly_available.subject"
	keyNewlyAvailableBody           = "newly_available.body"
	keyExpiringQueuePositionSubject = "expiring_queue_position.subject"
	keyExpiringQueuePositionBody    = "expiring_queue_position.body"
	keyExpiredSubject               = "expired.subject"
	keyExpiredBody                  = "expired.body"
)

// Mail is a rendered notice.
type Mail struct {
	Subject string
	Body    string
}

var englishMessages = map[string]string{
	keyCloseDeadlineSubject: "Reminder - Your borrowing deadline is approaching",
	keyCloseDeadlineBody: "Your borrowing deadline for the following item is approaching:\n\n%[1]s\n\n" +
		"Please return the item by %[2]s",
	keyOverdueSubject: "Your deadline has passed",
	keyOverdueBody: "Your delivery deadline for the following item has passed:\n\n%[1]s\n\n" +
		"Please return the item as soon as possible.",
	keyNewlyAvailableSubject:        "An item you have queued for is now available",
	keyExpiringQueuePositionSubject: "Reminder - Your queue position expiry deadline is approaching",
	keyExpiringQueuePositionBody: "Your queue position expiry deadline for the following item is approaching:\n\n%[1]s\n\n" +
		"Please borrow the item by %[2]s",
	keyExpiredSubject: "Your queue position has expired",
}

// Templates renders the five notices the daemon sends.
type Templates struct {
	printer *message.Printer
}

// NewTemplates builds the English message catalog.
func NewTemplates() (*Templates, error) {
	builder := catalog.NewBuilder(catalog.Fallback(language.English))

	for key, msg := range englishMessages {
		if err := builder.SetString(language.English, key, msg); err != nil {
			return nil, err
		}
	}

	err := builder.Set(language.English, keyNewlyAvailableBody, plural.Selectf(3, "%d",
		plural.One, "The following item is now available for you to borrow:\n\n%[1]s\n\n"+
			"Please pick up the item within %[3]d day, by %[2]s.",
		plural.Other, "The following item is now available for you to borrow:\n\n%[1]s\n\n"+
			"Please pick up the item within %[3]d days, by %[2]s.",
	))
	if err != nil {
		return nil, err
	}

	err = builder.Set(language.English, keyExpiredBody, plural.Selectf(2, "%d",
		plural.One, "Your queue position for the following item has expired:\n\n%[1]s\n\n"+
			"You can queue for the item again at any time, but you will be placed at the back of the queue.\n\n"+
			"There is currently %[2]d user in the queue.",
		plural.Other, "Your queue position for the following item has expired:\n\n%[1]s\n\n"+
			"You can queue for the item again at any time, but you will be placed at the back of the queue.\n\n"+
			"There are currently %[2]d users in the queue.",
	))
	if err != nil {
		return nil, err
	}

	return &Templates{printer: message.NewPrinter(language.English, message.Catalog(builder))}, nil
}

// CloseDeadline is the reminder sent ahead of a due time.
func (t *Templates) CloseDeadline(itemName string, due time.Time) Mail {
	return t.render(keyCloseDeadlineSubject, keyCloseDeadlineBody, itemName, formatDate(due))
}

// Overdue is the reminder sent on every pass after a due time.
func (t *Templates) Overdue(itemName string) Mail {
	return t.render(keyOverdueSubject, keyOverdueBody, itemName)
}

// NewlyAvailable tells a promoted requester how long the reserved copy is held.
func (t *Templates) NewlyAvailable(itemName string, graceDeadline time.Time, graceDays int) Mail {
	return t.render(keyNewlyAvailableSubject, keyNewlyAvailableBody, itemName, formatDate(graceDeadline), graceDays)
}

// ExpiringQueuePosition is the reminder sent ahead of a grace deadline.
func (t *Templates) ExpiringQueuePosition(itemName string, graceDeadline time.Time) Mail {
	return t.render(keyExpiringQueuePositionSubject, keyExpiringQueuePositionBody, itemName, formatDate(graceDeadline))
}

// Expired tells a requester that their reservation lapsed and how many requesters are still queued.
func (t *Templates) Expired(itemName string, openQueueLength int) Mail {
	return t.render(keyExpiredSubject, keyExpiredBody, itemName, openQueueLength)
}

func (t *Templates) render(subjectKey string, bodyKey string, args ...any) Mail {
	return Mail{
		Subject: t.printer.Sprintf(subjectKey),
		Body:    t.printer.Sprintf(bodyKey, args...),
	}
}

func formatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
