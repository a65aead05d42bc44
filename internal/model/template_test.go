package model

import "testing"

func TestValidTemplateID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"welcome", true},
		{"order_shipped-v2", true},
		{"42", true},
		{"", false},
		{"has space", false},
		{"../etc", false},
	}

	for _, tt := range tests {
		if got := ValidTemplateID(tt.in); got != tt.want {
			t.Errorf("ValidTemplateID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTemplate_ToResponse(t *testing.T) {
	t.Parallel()

	tpl := &Template{OwnerUserID: SystemUserID, TemplateID: "welcome", IsPublic: true}

	resp := tpl.ToResponse("user-1")
	if resp.Owned {
		t.Error("system template should not be owned by user-1")
	}
	if !resp.System {
		t.Error("expected System = true")
	}
	if resp.Variables == nil {
		t.Error("Variables should be an empty slice, not nil")
	}

	own := &Template{OwnerUserID: "user-1", TemplateID: "mine"}
	if !own.ToResponse("user-1").Owned {
		t.Error("expected Owned = true for the owner")
	}
}
