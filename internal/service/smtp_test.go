package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailroute/mailroute/internal/model"
)

func TestSMTPService_SetKeepsPassword(t *testing.T) {
	t.Parallel()

	store := newFakeSMTP()
	svc := NewSMTPService(store)
	ctx := t.Context()

	_, err := svc.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrSMTPNotConfigured)

	req := model.SMTPConfigRequest{
		Host: "smtp.example.com", Port: 587, Username: "apikey", Password: "s3cret",
		FromEmail: "noreply@example.com",
	}
	cfg, err := svc.Set(ctx, "u1", req)
	require.NoError(t, err)
	assert.Equal(t, model.TLSModeAuto, cfg.TLSMode)
	assert.False(t, store.kept)

	req.Password = ""
	req.Port = 465
	req.TLSMode = model.TLSModeSSL
	_, err = svc.Set(ctx, "u1", req)
	require.NoError(t, err)
	assert.True(t, store.kept)

	got, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got.Password)
	assert.Equal(t, 465, got.Port)
}

func TestValidateSMTPConfig(t *testing.T) {
	t.Parallel()

	valid := model.SMTPConfigRequest{Host: "smtp.example.com", Port: 587, FromEmail: "a@example.com"}

	tests := []struct {
		name   string
		mutate func(*model.SMTPConfigRequest)
		field  string
	}{
		{"empty host", func(r *model.SMTPConfigRequest) { r.Host = "" }, "host"},
		{"host with port", func(r *model.SMTPConfigRequest) { r.Host = "smtp.example.com:25" }, "host"},
		{"port zero", func(r *model.SMTPConfigRequest) { r.Port = 0 }, "port"},
		{"port too large", func(r *model.SMTPConfigRequest) { r.Port = 70000 }, "port"},
		{"bad from", func(r *model.SMTPConfigRequest) { r.FromEmail = "Alice <a@example.com>" }, "from_email"},
		{"bad tls", func(r *model.SMTPConfigRequest) { r.TLSMode = "tls1.3" }, "tls_mode"},
		{"password without user", func(r *model.SMTPConfigRequest) { r.Password = "x" }, "username"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := valid
			tt.mutate(&req)
			_, err := validateSMTPConfig("u1", req)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}
