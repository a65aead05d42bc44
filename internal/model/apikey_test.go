package model

import (
	"testing"
)

func TestAPIKey_HasScope(t *testing.T) {
	testCases := []struct {
		name      string
		keyScopes []string
		checkFor  string
		want      bool
	}{
		{
			name:      "has exact scope",
			keyScopes: []string{ScopeRead, ScopeWrite},
			checkFor:  ScopeRead,
			want:      true,
		},
		{
			name:      "does not have scope",
			keyScopes: []string{ScopeRead},
			checkFor:  ScopeWrite,
			want:      false,
		},
		{
			name:      "admin implies read",
			keyScopes: []string{ScopeAdmin},
			checkFor:  ScopeRead,
			want:      true,
		},
		{
			name:      "admin implies write",
			keyScopes: []string{ScopeAdmin},
			checkFor:  ScopeWrite,
			want:      true,
		},
		{
			name:      "empty scopes",
			keyScopes: []string{},
			checkFor:  ScopeRead,
			want:      false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			key := &APIKey{Scopes: tc.keyScopes}
			if got := key.HasScope(tc.checkFor); got != tc.want {
				t.Errorf("HasScope(%s) = %v, want %v", tc.checkFor, got, tc.want)
			}

			authCtx := &AuthContext{Scopes: tc.keyScopes}
			if got := authCtx.HasScope(tc.checkFor); got != tc.want {
				t.Errorf("AuthContext.HasScope(%s) = %v, want %v", tc.checkFor, got, tc.want)
			}
		})
	}
}

func TestAPIKey_ToResponse(t *testing.T) {
	t.Parallel()

	key := &APIKey{
		ID:        "01HV0000000000000000000000",
		UserID:    "user-1",
		KeyHash:   "$argon2id$secret",
		KeyPrefix: "abc123",
		Scopes:    []string{ScopeRead},
		Name:      "ci",
		IsActive:  true,
	}

	resp := key.ToResponse()

	if resp.ID != key.ID || resp.KeyPrefix != "abc123" || resp.Name != "ci" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if !resp.IsActive {
		t.Error("IsActive should be carried over")
	}
}
