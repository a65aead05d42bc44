package service

import (
	"context"
	"errors"
	"net/mail"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mailroute/mailroute/internal/model"
	"github.com/mailroute/mailroute/internal/quota"
	"github.com/mailroute/mailroute/internal/repository"
)

// ErrUserExists is returned when the username or email is taken.
var ErrUserExists = errors.New("user already exists")

// UserCreator persists new users.
type UserCreator interface {
	CreateUser(ctx context.Context, user *model.User) error
}

// NewUserInput describes a user to provision.
type NewUserInput struct {
	Username   string
	Email      string
	DailyLimit *int64
	Verified   bool
}

// CreateUser validates and stores a new user.
func CreateUser(ctx context.Context, store UserCreator, in NewUserInput) (*model.User, error) {
	if !model.ValidUsername(in.Username) {
		return nil, &ValidationError{Field: "username", Message: "must be 3-32 characters of a-z, 0-9, '_' or '-'"}
	}
	if model.ReservedUsername(in.Username) {
		return nil, &ValidationError{Field: "username", Message: "is reserved"}
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return nil, &ValidationError{Field: "email", Message: "must be a single email address"}
	}
	if in.DailyLimit != nil && *in.DailyLimit < quota.Unlimited {
		return nil, &ValidationError{Field: "daily_limit", Message: "must be -1 (unlimited) or more"}
	}

	user := &model.User{
		ID:         ulid.Make().String(),
		Username:   in.Username,
		Email:      in.Email,
		DailyLimit: in.DailyLimit,
		Verified:   in.Verified,
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return user, nil
}
