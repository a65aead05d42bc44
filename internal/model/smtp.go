package model

import (
	"slices"
	"time"
)

// TLS modes for the SMTP relay connection.
const (
	TLSModeAuto     = "auto"     // STARTTLS when offered
	TLSModeStartTLS = "starttls" // STARTTLS required
	TLSModeSSL      = "ssl"      // implicit TLS (port 465)
	TLSModeNone     = "none"     // plaintext
)

// ValidTLSModes lists the accepted TLS modes.
var ValidTLSModes = []string{TLSModeAuto, TLSModeStartTLS, TLSModeSSL, TLSModeNone}

// SMTPConfig is a user's SMTP relay configuration.
// Password holds the plaintext only after it has been unsealed by the store.
type SMTPConfig struct {
	UserID    string    `json:"user_id"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Username  string    `json:"username,omitempty"`
	Password  string    `json:"-"`
	FromEmail string    `json:"from_email"`
	FromName  string    `json:"from_name,omitempty"`
	TLSMode   string    `json:"tls_mode"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SMTPConfigRequest is the body for PUT /api/v1/smtp.
type SMTPConfigRequest struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name,omitempty"`
	TLSMode   string `json:"tls_mode,omitempty"`
}

// SMTPConfigResponse never includes the password.
type SMTPConfigResponse struct {
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	Username    string    `json:"username,omitempty"`
	HasPassword bool      `json:"has_password"`
	FromEmail   string    `json:"from_email"`
	FromName    string    `json:"from_name,omitempty"`
	TLSMode     string    `json:"tls_mode"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ToResponse converts an SMTPConfig to SMTPConfigResponse.
func (c *SMTPConfig) ToResponse() SMTPConfigResponse {
	return SMTPConfigResponse{
		Host:        c.Host,
		Port:        c.Port,
		Username:    c.Username,
		HasPassword: c.Password != "",
		FromEmail:   c.FromEmail,
		FromName:    c.FromName,
		TLSMode:     c.TLSMode,
		UpdatedAt:   c.UpdatedAt,
	}
}

// ValidTLSMode reports whether mode is a known TLS mode.
func ValidTLSMode(mode string) bool {
	return slices.Contains(ValidTLSModes, mode)
}
