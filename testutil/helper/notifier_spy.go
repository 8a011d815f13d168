package helper

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// SpyNotification is one recorded notification.
type SpyNotification struct {
	Recipient string
	Subject   string
	Body      string
}

// NotifierSpy records notifications and can be told to fail for certain recipients.
type NotifierSpy struct {
	mu            sync.Mutex
	notifications []SpyNotification
	failFor       map[string]struct{}
}

// NewNotifierSpy creates a NotifierSpy that fails for the given recipients.
func NewNotifierSpy(failFor ...string) *NotifierSpy {
	s := &NotifierSpy{failFor: make(map[string]struct{}, len(failFor))}

	for _, recipient := range failFor {
		s.failFor[recipient] = struct{}{}
	}

	return s
}

// Notify implements notify.Notifier.
func (s *NotifierSpy) Notify(_ context.Context, recipient string, subject string, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.failFor[recipient]; ok {
		return errors.Join(lending.ErrNotificationFailure, errors.New("recipient rejected by spy"))
	}

	s.notifications = append(s.notifications, SpyNotification{Recipient: recipient, Subject: subject, Body: body})

	return nil
}

// Notifications returns a copy of all successfully delivered notifications.
func (s *NotifierSpy) Notifications() []SpyNotification {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]SpyNotification(nil), s.notifications...)
}

// Count returns the number of delivered notifications.
func (s *NotifierSpy) Count() int {
	return len(s.Notifications())
}

// CountFor counts delivered notifications to recipient whose subject contains subjectPart.
func (s *NotifierSpy) CountFor(recipient string, subjectPart string) int {
	count := 0

	for _, n := range s.Notifications() {
		if n.Recipient == recipient && strings.Contains(n.Subject, subjectPart) {
			count++
		}
	}

	return count
}

// Reset drops all recorded notifications.
func (s *NotifierSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications = nil
}
