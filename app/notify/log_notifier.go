package notify

import (
	"context"

	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

const (
	logMsgNotSent = "mail sending is disabled, the following mail was not sent"

	logAttrRecipient = "recipient"
	logAttrSubject   = "subject"
	logAttrBody      = "body"
	logAttrError     = "error"
)

// LogNotifier logs every message at info level instead of sending it.
type LogNotifier struct {
	logger           lending.Logger
	contextualLogger lending.ContextualLogger
	recipientDomain  string
	subjectPrefix    string
}

var _ Notifier = (*LogNotifier)(nil)

// LogNotifierOption configures a LogNotifier.
type LogNotifierOption func(*LogNotifier)

// WithLogNotifierLogger sets the basic logger.
func WithLogNotifierLogger(logger lending.Logger) LogNotifierOption {
	return func(n *LogNotifier) {
		n.logger = logger
	}
}

// WithLogNotifierContextualLogger sets the contextual logger.
func WithLogNotifierContextualLogger(logger lending.ContextualLogger) LogNotifierOption {
	return func(n *LogNotifier) {
		n.contextualLogger = logger
	}
}

// WithLogNotifierAddressing sets the recipient domain and subject prefix, so the log shows the mail as it would be sent.
func WithLogNotifierAddressing(recipientDomain string, subjectPrefix string) LogNotifierOption {
	return func(n *LogNotifier) {
		n.recipientDomain = recipientDomain
		n.subjectPrefix = subjectPrefix
	}
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(opts ...LogNotifierOption) *LogNotifier {
	n := &LogNotifier{}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Notify logs the message. It never fails.
func (n *LogNotifier) Notify(ctx context.Context, recipient string, subject string, body string) error {
	args := []any{
		logAttrRecipient, RecipientAddress(recipient, n.recipientDomain),
		logAttrSubject, PrefixedSubject(n.subjectPrefix, subject),
		logAttrBody, body,
	}

	if n.contextualLogger != nil {
		n.contextualLogger.InfoContext(ctx, logMsgNotSent, args...)
	}

	if n.logger != nil {
		n.logger.Info(logMsgNotSent, args...)
	}

	return nil
}
