package cache

import (
	"testing"
)

func TestHashIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ip   string
	}{
		{"IPv4", "192.168.1.1"},
		{"IPv6 localhost", "::1"},
		{"IPv6 full", "2001:0db8:85a3:0000:0000:8a2e:0370:7334"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := hashIP(tt.ip)
			if len(h) != 16 {
				t.Errorf("hashIP(%q) length = %d, want 16", tt.ip, len(h))
			}
			if h != hashIP(tt.ip) {
				t.Errorf("hashIP(%q) is not deterministic", tt.ip)
			}
		})
	}

	if hashIP("10.0.0.1") == hashIP("10.0.0.2") {
		t.Error("different addresses should hash differently")
	}
}

func TestAllow_DisabledSkipsRedis(t *testing.T) {
	t.Parallel()

	// A nil client would panic if touched.
	c := &Cache{}

	res, err := c.AllowKey(t.Context(), "k", 0, 10)
	if err != nil || !res.Allowed {
		t.Errorf("AllowKey with zero rate = %+v, %v", res, err)
	}
	res, err = c.AllowIP(t.Context(), "1.2.3.4", 0, 10)
	if err != nil || !res.Allowed {
		t.Errorf("AllowIP with zero rate = %+v, %v", res, err)
	}
}
