package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/mailroute/mailroute/internal/model"
	"github.com/mailroute/mailroute/internal/repository"
)

// ErrSMTPNotConfigured is returned when the user has no relay settings.
var ErrSMTPNotConfigured = errors.New("smtp not configured")

// SMTPStore persists relay settings.
type SMTPStore interface {
	Get(ctx context.Context, userID string) (*model.SMTPConfig, error)
	Save(ctx context.Context, cfg *model.SMTPConfig, keepPassword bool) error
}

// SMTPService manages a user's relay settings.
type SMTPService struct {
	store SMTPStore
}

// NewSMTPService creates an SMTPService.
func NewSMTPService(store SMTPStore) *SMTPService {
	return &SMTPService{store: store}
}

// Get returns the user's relay settings.
func (s *SMTPService) Get(ctx context.Context, userID string) (*model.SMTPConfig, error) {
	cfg, err := s.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrSMTPConfigNotFound) {
			return nil, ErrSMTPNotConfigured
		}
		return nil, err
	}
	return cfg, nil
}

// Set replaces the user's relay settings. An empty password keeps the one
// already stored.
func (s *SMTPService) Set(ctx context.Context, userID string, req model.SMTPConfigRequest) (*model.SMTPConfig, error) {
	cfg, err := validateSMTPConfig(userID, req)
	if err != nil {
		return nil, err
	}

	keep := req.Password == ""
	if err := s.store.Save(ctx, cfg, keep); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateSMTPConfig(userID string, req model.SMTPConfigRequest) (*model.SMTPConfig, error) {
	host := strings.TrimSpace(req.Host)
	if host == "" || strings.ContainsAny(host, " /:") {
		return nil, &ValidationError{Field: "host", Message: "must be a hostname"}
	}
	if req.Port < 1 || req.Port > 65535 {
		return nil, &ValidationError{Field: "port", Message: "must be between 1 and 65535"}
	}

	from, err := mail.ParseAddress(req.FromEmail)
	if err != nil || from.Name != "" || from.Address != req.FromEmail {
		return nil, &ValidationError{Field: "from_email", Message: "must be a single email address"}
	}

	mode := req.TLSMode
	if mode == "" {
		mode = model.TLSModeAuto
	}
	if !model.ValidTLSMode(mode) {
		return nil, &ValidationError{Field: "tls_mode", Message: "must be one of auto, starttls, ssl, none"}
	}
	if req.Password != "" && req.Username == "" {
		return nil, &ValidationError{Field: "username", Message: "is required when a password is set"}
	}

	return &model.SMTPConfig{
		UserID:    userID,
		Host:      host,
		Port:      req.Port,
		Username:  req.Username,
		Password:  req.Password,
		FromEmail: req.FromEmail,
		FromName:  strings.TrimSpace(req.FromName),
		TLSMode:   mode,
	}, nil
}
