package domain

import "testing"

func TestMatchTrustedNetwork(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		network string
		want    bool
	}{
		{"cidr contains", "10.1.2.3", "10.0.0.0/8", true},
		{"cidr does not contain", "11.1.2.3", "10.0.0.0/8", false},
		{"ipv6 cidr", "2001:db8::1", "2001:db8::/32", true},
		{"plain prefix", "192.168.1.77", "192.168.1.", true},
		{"plain prefix miss", "192.168.2.77", "192.168.1.", false},
		{"malformed cidr fails closed", "10.1.2.3", "10.0.0.0/99", false},
		{"garbage cidr", "10.1.2.3", "not-a-net/8", false},
		{"empty entry", "10.1.2.3", "", false},
		{"non ip id against cidr", "unknown", "10.0.0.0/8", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchTrustedNetwork(tt.id, tt.network); got != tt.want {
				t.Fatalf("MatchTrustedNetwork(%q, %q) = %v, want %v", tt.id, tt.network, got, tt.want)
			}
		})
	}
}

func TestMatchAllowList_LoopbackAlwaysAllowed(t *testing.T) {
	for _, id := range []string{"127.0.0.1", "::1", "localhost"} {
		if !MatchAllowList(id, nil, nil) {
			t.Fatalf("expected %q to be allowed", id)
		}
	}
	if MatchAllowList("8.8.8.8", nil, nil) {
		t.Fatalf("expected 8.8.8.8 not to be allowed with empty lists")
	}
}

func TestMatchAllowList_ExactAndTrusted(t *testing.T) {
	wl := map[string]struct{}{"9.9.9.9": {}}
	tn := map[string]struct{}{"172.16.0.0/12": {}}

	if !MatchAllowList("9.9.9.9", wl, tn) {
		t.Fatalf("expected exact whitelist match")
	}
	if !MatchAllowList("172.20.1.1", wl, tn) {
		t.Fatalf("expected trusted network match")
	}
	if MatchAllowList("9.9.9.10", wl, tn) {
		t.Fatalf("expected no match")
	}
}

func TestBlockRecord_ActiveAndRemaining(t *testing.T) {
	at := mustTime(t, "2026-01-01T00:00:00Z")
	rec := NewBlockRecord("x", at, 3600e9)

	if !rec.BlockedUntil.Equal(at.Add(3600e9)) {
		t.Fatalf("expected BlockedUntil = BlockedAt + Duration")
	}
	if !rec.Active(at.Add(3599e9)) {
		t.Fatalf("expected active before BlockedUntil")
	}
	if rec.Active(rec.BlockedUntil) {
		t.Fatalf("expected inactive at BlockedUntil")
	}
	if got := rec.Remaining(at.Add(3000e9)); got != 600e9 {
		t.Fatalf("expected 600s remaining, got %s", got)
	}
}
