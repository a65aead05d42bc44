// Package mailer delivers rendered messages through a user's SMTP relay.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/go-mail/mail"
	"github.com/oklog/ulid/v2"

	"github.com/mailroute/mailroute/internal/model"
)

// DefaultTimeout bounds a delivery when the context carries no deadline.
const DefaultTimeout = 30 * time.Second

var (
	// ErrTimeout indicates the relay did not complete the exchange in time.
	ErrTimeout = errors.New("smtp timeout")
	// ErrNotConfigured indicates the user has no SMTP relay configured.
	ErrNotConfigured = errors.New("smtp not configured")
)

// Message is a fully rendered email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Transport sends a message through the relay described by cfg and
// returns the Message-ID it assigned.
type Transport interface {
	Send(ctx context.Context, cfg *model.SMTPConfig, msg *Message) (string, error)
}

// SMTPTransport implements Transport with one connection per message.
type SMTPTransport struct {
	logger *slog.Logger

	// InsecureSkipVerify disables relay certificate checks. Development only.
	InsecureSkipVerify bool
}

// NewSMTPTransport creates an SMTPTransport.
func NewSMTPTransport(logger *slog.Logger) *SMTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPTransport{logger: logger.With("component", "smtp")}
}

// Send implements Transport. The exchange is abandoned when ctx is done;
// the dialer timeout then reclaims the connection.
func (t *SMTPTransport) Send(ctx context.Context, cfg *model.SMTPConfig, msg *Message) (string, error) {
	if cfg == nil || cfg.Host == "" {
		return "", ErrNotConfigured
	}

	messageID := NewMessageID(cfg.FromEmail)
	m := buildMessage(cfg, msg, messageID)
	d := t.dialer(ctx, cfg)

	log := t.logger.With(
		"host", cfg.Host,
		"port", cfg.Port,
		"tls_mode", cfg.TLSMode,
		"recipient_domain", Domain(msg.To),
	)

	done := make(chan error, 1)
	start := time.Now()
	go func() {
		done <- d.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		log.Warn("smtp send abandoned", "error", ctx.Err(), "elapsed", time.Since(start))
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			log.Warn("smtp send failed", "error", err, "elapsed", time.Since(start))
			return "", classify(err)
		}
	}

	log.Debug("smtp send succeeded", "message_id", messageID, "elapsed", time.Since(start))
	return messageID, nil
}

func (t *SMTPTransport) dialer(ctx context.Context, cfg *model.SMTPConfig) *mail.Dialer {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: t.InsecureSkipVerify, //nolint:gosec // opt-in for local relays
		MinVersion:         tls.VersionTLS12,
	}

	switch cfg.TLSMode {
	case model.TLSModeSSL:
		d.SSL = true
	case model.TLSModeStartTLS:
		d.StartTLSPolicy = mail.MandatoryStartTLS
	case model.TLSModeNone:
		d.StartTLSPolicy = mail.NoStartTLS
	default:
		d.StartTLSPolicy = mail.OpportunisticStartTLS
	}

	d.Timeout = DefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			d.Timeout = remaining
		}
	}
	return d
}

func buildMessage(cfg *model.SMTPConfig, msg *Message, messageID string) *mail.Message {
	m := mail.NewMessage()
	if cfg.FromName != "" {
		m.SetAddressHeader("From", cfg.FromEmail, cfg.FromName)
	} else {
		m.SetHeader("From", cfg.FromEmail)
	}
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetDateHeader("Date", time.Now())

	// multipart/alternative when both bodies are present
	switch {
	case msg.TextBody != "" && msg.HTMLBody != "":
		m.SetBody("text/plain", msg.TextBody)
		m.AddAlternative("text/html", msg.HTMLBody)
	case msg.TextBody != "":
		m.SetBody("text/plain", msg.TextBody)
	default:
		m.SetBody("text/html", msg.HTMLBody)
	}
	return m
}

func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// NewMessageID returns an RFC 5322 Message-ID on the sender's domain.
func NewMessageID(fromEmail string) string {
	domain := Domain(fromEmail)
	if domain == "" {
		domain = "mailroute.local"
	}
	return fmt.Sprintf("<%s@%s>", strings.ToLower(ulid.Make().String()), domain)
}

// Domain returns the lower-cased domain part of an address, or "".
func Domain(addr string) string {
	at := strings.LastIndexByte(addr, '@')
	if at < 0 || at == len(addr)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSuffix(addr[at+1:], ">"))
}
