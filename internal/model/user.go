// Package model defines domain entities for the application.
package model

import (
	"regexp"
	"slices"
	"time"
)

// SystemUserID owns the built-in public templates.
const SystemUserID = "system"

// UnlimitedQuota disables the daily send quota for a user.
const UnlimitedQuota int64 = -1

var usernameRegex = regexp.MustCompile(`^[a-z0-9_-]{3,32}$`)

// reservedUsernames collide with the system owner or with top-level routes.
var reservedUsernames = []string{SystemUserID, "api", "healthz", "readyz", "metrics"}

// User owns API keys, templates and an SMTP relay configuration.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	// DailyLimit overrides the server default when set.
	DailyLimit *int64    `json:"daily_limit,omitempty"`
	Verified   bool      `json:"verified"`
	CreatedAt  time.Time `json:"created_at"`
}

// EffectiveDailyLimit returns the send quota that applies to this user.
// Verified users are unlimited.
func (u *User) EffectiveDailyLimit(defaultLimit int64) int64 {
	if u.Verified {
		return UnlimitedQuota
	}
	if u.DailyLimit != nil {
		return *u.DailyLimit
	}
	return defaultLimit
}

// ValidUsername reports whether s can be used as a username (and URL segment).
func ValidUsername(s string) bool {
	return usernameRegex.MatchString(s)
}

// ReservedUsername reports whether s cannot be registered.
func ReservedUsername(s string) bool {
	return slices.Contains(reservedUsernames, s)
}
