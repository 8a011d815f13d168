package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

const (
	defaultDialTimeout = 10 * time.Second

	logMsgSent       = "mail sent"
	logMsgSendFailed = "could not send mail"
	logAttrDuration  = "duration_ms"
)

var (
	// ErrMissingSMTPHost is returned when the SMTP configuration has no host.
	ErrMissingSMTPHost = errors.New("smtp host must not be empty")

	// ErrMissingSender is returned when the SMTP configuration has no From address.
	ErrMissingSender = errors.New("smtp from address must not be empty")

	// ErrReadingPasswordFile is returned when the SMTP password file cannot be read.
	ErrReadingPasswordFile = errors.New("could not read smtp password file")
)

// SMTPConfig holds the mail relay settings.
type SMTPConfig struct {
	Host            string
	Port            int
	Username        string
	PasswordFile    string
	From            string
	SubjectPrefix   string
	RecipientDomain string
}

// SMTPNotifier sends plain-text mails through an SMTP relay.
// It upgrades the connection with STARTTLS when the relay offers it and authenticates with PLAIN auth
// when a username is configured.
type SMTPNotifier struct {
	config           SMTPConfig
	password         string
	tlsConfig        *tls.Config
	dialTimeout      time.Duration
	logger           lending.Logger
	contextualLogger lending.ContextualLogger
}

var _ Notifier = (*SMTPNotifier)(nil)

// SMTPOption configures an SMTPNotifier.
type SMTPOption func(*SMTPNotifier)

// WithSMTPLogger sets the basic logger.
func WithSMTPLogger(logger lending.Logger) SMTPOption {
	return func(n *SMTPNotifier) {
		n.logger = logger
	}
}

// WithSMTPContextualLogger sets the contextual logger.
func WithSMTPContextualLogger(logger lending.ContextualLogger) SMTPOption {
	return func(n *SMTPNotifier) {
		n.contextualLogger = logger
	}
}

// WithTLSConfig replaces the TLS configuration used for STARTTLS.
func WithTLSConfig(tlsConfig *tls.Config) SMTPOption {
	return func(n *SMTPNotifier) {
		n.tlsConfig = tlsConfig
	}
}

// WithDialTimeout sets the timeout for connecting to the relay.
func WithDialTimeout(timeout time.Duration) SMTPOption {
	return func(n *SMTPNotifier) {
		n.dialTimeout = timeout
	}
}

// NewSMTPNotifier validates the configuration and reads the password file once.
func NewSMTPNotifier(config SMTPConfig, opts ...SMTPOption) (*SMTPNotifier, error) {
	if strings.TrimSpace(config.Host) == "" {
		return nil, ErrMissingSMTPHost
	}

	if strings.TrimSpace(config.From) == "" {
		return nil, ErrMissingSender
	}

	n := &SMTPNotifier{
		config:      config,
		tlsConfig:   &tls.Config{ServerName: config.Host, MinVersion: tls.VersionTLS12},
		dialTimeout: defaultDialTimeout,
	}

	if config.PasswordFile != "" {
		password, err := readPasswordFile(config.PasswordFile)
		if err != nil {
			return nil, err
		}

		n.password = password
	}

	for _, opt := range opts {
		opt(n)
	}

	return n, nil
}

func readPasswordFile(path string) (string, error) {
	content, err := os.ReadFile(path) //nolint:gosec // the path comes from the operator's configuration
	if err != nil {
		return "", errors.Join(ErrReadingPasswordFile, err)
	}

	return strings.TrimSpace(string(content)), nil
}

// Notify sends one mail. Any failure is returned as lending.ErrNotificationFailure joined with the cause.
func (n *SMTPNotifier) Notify(ctx context.Context, recipient string, subject string, body string) error {
	start := time.Now()
	to := RecipientAddress(recipient, n.config.RecipientDomain)
	subject = PrefixedSubject(n.config.SubjectPrefix, subject)

	if err := n.send(ctx, to, composeMessage(n.config.From, to, subject, body, start)); err != nil {
		n.logError(ctx, to, subject, err)
		return errors.Join(lending.ErrNotificationFailure, fmt.Errorf("mail to %s: %w", to, err))
	}

	n.logSent(ctx, to, subject, time.Since(start))

	return nil
}

func (n *SMTPNotifier) send(ctx context.Context, to string, message []byte) error {
	addr := net.JoinHostPort(n.config.Host, strconv.Itoa(n.config.Port))
	dialer := net.Dialer{Timeout: n.dialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, n.config.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer client.Close() //nolint:errcheck

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err = client.StartTLS(n.tlsConfig); err != nil {
			return err
		}
	}

	if n.config.Username != "" {
		auth := smtp.PlainAuth("", n.config.Username, n.password, n.config.Host)
		if err = client.Auth(auth); err != nil {
			return err
		}
	}

	if err = client.Mail(n.config.From); err != nil {
		return err
	}

	if err = client.Rcpt(to); err != nil {
		return err
	}

	writer, err := client.Data()
	if err != nil {
		return err
	}

	if _, err = writer.Write(message); err != nil {
		_ = writer.Close()
		return err
	}

	if err = writer.Close(); err != nil {
		return err
	}

	return client.Quit()
}

// composeMessage renders a plain-text RFC 5322 message with CRLF line endings.
func composeMessage(from string, to string, subject string, body string, at time.Time) []byte {
	var b strings.Builder

	headers := [][2]string{
		{"From", from},
		{"To", to},
		{"Subject", subject},
		{"Date", at.Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=UTF-8"},
		{"Content-Transfer-Encoding", "8bit"},
	}

	for _, h := range headers {
		b.WriteString(h[0] + ": " + h[1] + "\r\n")
	}

	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	b.WriteString("\r\n")

	return []byte(b.String())
}

func (n *SMTPNotifier) logSent(ctx context.Context, to string, subject string, duration time.Duration) {
	args := []any{
		logAttrRecipient, to,
		logAttrSubject, subject,
		logAttrDuration, float64(duration.Microseconds()) / 1000,
	}

	if n.contextualLogger != nil {
		n.contextualLogger.InfoContext(ctx, logMsgSent, args...)
	}

	if n.logger != nil {
		n.logger.Info(logMsgSent, args...)
	}
}

func (n *SMTPNotifier) logError(ctx context.Context, to string, subject string, err error) {
	args := []any{logAttrRecipient, to, logAttrSubject, subject, logAttrError, err.Error()}

	if n.contextualLogger != nil {
		n.contextualLogger.ErrorContext(ctx, logMsgSendFailed, args...)
	}

	if n.logger != nil {
		n.logger.Error(logMsgSendFailed, args...)
	}
}
