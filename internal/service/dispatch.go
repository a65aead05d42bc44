package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/mailroute/mailroute/internal/analytics"
	"github.com/mailroute/mailroute/internal/mailer"
	"github.com/mailroute/mailroute/internal/metrics"
	"github.com/mailroute/mailroute/internal/model"
	"github.com/mailroute/mailroute/internal/quota"
	"github.com/mailroute/mailroute/internal/render"
	"github.com/mailroute/mailroute/internal/repository"
)

const (
	// DefaultSMTPTimeout bounds one relay exchange.
	DefaultSMTPTimeout = 30 * time.Second

	maxRecipientLength = 254
)

// TemplateFinder resolves a template id for a user, falling back to
// public templates.
type TemplateFinder interface {
	Find(ctx context.Context, userID, templateID string) (*model.Template, error)
}

// SMTPConfigStore loads a user's relay settings.
type SMTPConfigStore interface {
	Get(ctx context.Context, userID string) (*model.SMTPConfig, error)
}

// QuotaChecker consumes one unit of a user's quota.
type QuotaChecker interface {
	CheckAndIncrement(ctx context.Context, userID string, limit int64) (quota.Decision, error)
}

// EventPublisher records send outcomes off the request path.
type EventPublisher interface {
	PublishAsync(event analytics.SendEventPayload)
}

// DispatchRequest is one call to a personal endpoint.
type DispatchRequest struct {
	Username       string
	TemplateID     string
	APIKey         string
	RecipientEmail string
	Variables      map[string]any
}

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	Auth              *Authenticator
	Templates         TemplateFinder
	SMTPConfigs       SMTPConfigStore
	Quota             QuotaChecker
	Transport         mailer.Transport
	Events            EventPublisher // optional
	Metrics           metrics.Recorder
	Logger            *slog.Logger
	DefaultDailyLimit int64
	SMTPTimeout       time.Duration
}

// Dispatcher sends templated mail on behalf of a user. It holds no mutable
// state; the quota store is the only synchronization point.
type Dispatcher struct {
	auth         *Authenticator
	templates    TemplateFinder
	smtpConfigs  SMTPConfigStore
	quota        QuotaChecker
	transport    mailer.Transport
	events       EventPublisher
	metrics      metrics.Recorder
	logger       *slog.Logger
	defaultLimit int64
	smtpTimeout  time.Duration
	now          func() time.Time
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SMTPTimeout <= 0 {
		cfg.SMTPTimeout = DefaultSMTPTimeout
	}
	return &Dispatcher{
		auth:         cfg.Auth,
		templates:    cfg.Templates,
		smtpConfigs:  cfg.SMTPConfigs,
		quota:        cfg.Quota,
		transport:    cfg.Transport,
		events:       cfg.Events,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With("component", "dispatcher"),
		defaultLimit: cfg.DefaultDailyLimit,
		smtpTimeout:  cfg.SMTPTimeout,
		now:          time.Now,
	}
}

// Dispatch authenticates the caller, resolves the template, charges the
// quota and hands the rendered message to the user's relay. Every failure
// is exactly one of the typed errors in this package, or an internal error.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*model.SendResult, error) {
	start := time.Now()
	outcome := model.ErrorKindInternal
	defer func() {
		d.metrics.IncSend(outcome)
		d.metrics.ObserveSendDuration(outcome, time.Since(start))
	}()

	user, _, err := d.auth.AuthenticateUser(ctx, req.Username, req.APIKey)
	if err != nil {
		outcome = ErrorKind(err)
		d.logger.Warn("send rejected", "username", req.Username, "error_kind", outcome, "error", err)
		return nil, err
	}

	log := d.logger.With("user_id", user.ID, "template_id", req.TemplateID)

	result, err := d.send(ctx, log, user, req)
	if err != nil {
		outcome = ErrorKind(err)
	} else {
		outcome = metrics.OutcomeSent
	}
	d.publish(user.ID, req, outcome, result)

	switch outcome {
	case metrics.OutcomeSent:
		log.Info("mail sent", "message_id", result.MessageID, "duration", time.Since(start))
	case model.ErrorKindInternal:
		log.Error("send failed", "error", err)
	default:
		log.Warn("send failed", "error_kind", outcome, "error", err)
	}
	return result, err
}

func (d *Dispatcher) send(ctx context.Context, log *slog.Logger, user *model.User, req DispatchRequest) (*model.SendResult, error) {
	if !model.ValidTemplateID(req.TemplateID) {
		return nil, &NotFoundError{TemplateID: req.TemplateID}
	}
	tpl, err := d.templates.Find(ctx, user.ID, req.TemplateID)
	if err != nil {
		if errors.Is(err, repository.ErrTemplateNotFound) {
			return nil, &NotFoundError{TemplateID: req.TemplateID}
		}
		return nil, fmt.Errorf("resolve template: %w", err)
	}

	recipient, err := ValidateRecipient(req.RecipientEmail)
	if err != nil {
		return nil, err
	}

	decision, err := d.quota.CheckAndIncrement(ctx, user.ID, user.EffectiveDailyLimit(d.defaultLimit))
	if err != nil {
		return nil, fmt.Errorf("check quota: %w", err)
	}
	d.metrics.IncQuotaDecision(decision.Allowed)
	if !decision.Allowed {
		return nil, &RateLimitError{
			Limit:      decision.Limit,
			ResetAt:    decision.ResetAt,
			RetryAfter: decision.RetryAfter,
		}
	}

	if missing := render.Missing(tpl.Variables, req.Variables); len(missing) > 0 {
		log.Warn("template variables missing", "missing", missing)
	}
	msg := &mailer.Message{
		To:       recipient,
		Subject:  render.Render(tpl.Subject, req.Variables),
		HTMLBody: render.Render(tpl.HTMLBody, req.Variables),
		TextBody: render.Render(tpl.TextBody, req.Variables),
	}

	cfg, err := d.smtpConfigs.Get(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrSMTPConfigNotFound) {
			return nil, &DeliveryError{Reason: "smtp not configured", Err: mailer.ErrNotConfigured}
		}
		return nil, fmt.Errorf("load smtp config: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.smtpTimeout)
	defer cancel()

	smtpStart := time.Now()
	messageID, err := d.transport.Send(sendCtx, cfg, msg)
	d.metrics.ObserveSMTPDuration(time.Since(smtpStart))
	if err != nil {
		return nil, deliveryError(err)
	}

	return &model.SendResult{Success: true, MessageID: messageID}, nil
}

func deliveryError(err error) *DeliveryError {
	switch {
	case errors.Is(err, mailer.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return &DeliveryError{Reason: "timeout", Timeout: true, Err: err}
	case errors.Is(err, mailer.ErrNotConfigured):
		return &DeliveryError{Reason: "smtp not configured", Err: err}
	default:
		return &DeliveryError{Reason: err.Error(), Err: err}
	}
}

func (d *Dispatcher) publish(userID string, req DispatchRequest, outcome string, result *model.SendResult) {
	if d.events == nil {
		return
	}

	event := analytics.SendEventPayload{
		UserID:     userID,
		TemplateID: req.TemplateID,
		OccurredAt: d.now().UnixMilli(),
	}
	if _, err := ValidateRecipient(req.RecipientEmail); err == nil {
		event.RecipientDomain = mailer.Domain(req.RecipientEmail)
	}

	switch outcome {
	case metrics.OutcomeSent:
		event.Status = model.SendStatusSent
		event.MessageID = result.MessageID
	case model.ErrorKindRateLimit:
		event.Status = model.SendStatusRateLimited
		event.ErrorKind = outcome
	default:
		event.Status = model.SendStatusFailed
		event.ErrorKind = outcome
	}

	d.events.PublishAsync(event)
}

// ValidateRecipient accepts a single bare RFC 5322 address of at most 254
// characters and returns it trimmed.
func ValidateRecipient(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", &ValidationError{Field: "recipient_email", Message: "is required"}
	}
	if len(addr) > maxRecipientLength {
		return "", &ValidationError{Field: "recipient_email", Message: "must be at most 254 characters"}
	}

	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Name != "" || parsed.Address != addr {
		return "", &ValidationError{Field: "recipient_email", Message: "must be a single email address"}
	}
	return addr, nil
}
