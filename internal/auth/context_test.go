package auth

import (
	"context"
	"testing"

	"github.com/mailroute/mailroute/internal/model"
)

func TestAuthContextRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if AuthFromContext(ctx) != nil {
		t.Fatal("empty context should carry no auth")
	}
	if UserIDFromContext(ctx) != "" {
		t.Fatal("empty context should carry no user id")
	}

	ac := &model.AuthContext{KeyID: "k1", UserID: "u1", Username: "alice"}
	ctx = ContextWithAuth(ctx, ac)

	if got := AuthFromContext(ctx); got != ac {
		t.Errorf("AuthFromContext = %v, want %v", got, ac)
	}
	if got := UserIDFromContext(ctx); got != "u1" {
		t.Errorf("UserIDFromContext = %q, want u1", got)
	}
}
