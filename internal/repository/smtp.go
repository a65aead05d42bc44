package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mailroute/mailroute/internal/model"
	"github.com/mailroute/mailroute/internal/secrets"
)

// ErrSMTPConfigNotFound indicates the user has not configured a relay.
var ErrSMTPConfigNotFound = errors.New("smtp config not found")

// SMTPConfigRepository stores relay settings with the password sealed.
type SMTPConfigRepository struct {
	repo *Repository
	box  *secrets.Box
}

// NewSMTPConfigRepository creates an SMTPConfigRepository.
func NewSMTPConfigRepository(repo *Repository, box *secrets.Box) *SMTPConfigRepository {
	return &SMTPConfigRepository{repo: repo, box: box}
}

// Get returns the user's relay settings with the password opened.
func (s *SMTPConfigRepository) Get(ctx context.Context, userID string) (*model.SMTPConfig, error) {
	query := `
		SELECT user_id, host, port, username, password_sealed, from_email, from_name, tls_mode, updated_at
		FROM smtp_configs
		WHERE user_id = $1
	`

	var cfg model.SMTPConfig
	var sealed string
	err := s.repo.pool.QueryRow(ctx, query, userID).Scan(
		&cfg.UserID,
		&cfg.Host,
		&cfg.Port,
		&cfg.Username,
		&sealed,
		&cfg.FromEmail,
		&cfg.FromName,
		&cfg.TLSMode,
		&cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSMTPConfigNotFound
		}
		return nil, fmt.Errorf("failed to get smtp config: %w", err)
	}

	if cfg.Password, err = s.box.Open(sealed); err != nil {
		return nil, fmt.Errorf("open smtp password: %w", err)
	}
	return &cfg, nil
}

// Save upserts the user's relay settings. When keepPassword is set the
// stored password is left untouched and cfg.Password is ignored.
func (s *SMTPConfigRepository) Save(ctx context.Context, cfg *model.SMTPConfig, keepPassword bool) error {
	sealed, err := s.box.Seal(cfg.Password)
	if err != nil {
		return fmt.Errorf("seal smtp password: %w", err)
	}

	query := `
		INSERT INTO smtp_configs (user_id, host, port, username, password_sealed, from_email, from_name, tls_mode, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			host = EXCLUDED.host,
			port = EXCLUDED.port,
			username = EXCLUDED.username,
			password_sealed = CASE WHEN $10 THEN smtp_configs.password_sealed ELSE EXCLUDED.password_sealed END,
			from_email = EXCLUDED.from_email,
			from_name = EXCLUDED.from_name,
			tls_mode = EXCLUDED.tls_mode,
			updated_at = EXCLUDED.updated_at
	`

	cfg.UpdatedAt = time.Now().UTC()
	_, err = s.repo.pool.Exec(ctx, query,
		cfg.UserID,
		cfg.Host,
		cfg.Port,
		cfg.Username,
		sealed,
		cfg.FromEmail,
		cfg.FromName,
		cfg.TLSMode,
		cfg.UpdatedAt,
		keepPassword,
	)
	if err != nil {
		return fmt.Errorf("failed to save smtp config: %w", err)
	}
	return nil
}
