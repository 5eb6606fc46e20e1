package guard

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDefaultKeyFunc_PrefersHeaderWhenSet(t *testing.T) {
	fn := DefaultKeyFunc("X-Client", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Client", " client-123 ")

	if got := fn(r); got != "client-123" {
		t.Fatalf("expected header key, got %q", got)
	}
}

func TestDefaultKeyFunc_ProxyHeaders(t *testing.T) {
	fn := DefaultKeyFunc("", true)

	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"xff first ip", "X-Forwarded-For", "1.2.3.4, 5.6.7.8", "1.2.3.4"},
		{"xff with port", "X-Forwarded-For", "1.2.3.4:5555", "1.2.3.4"},
		{"real ip", "X-Real-IP", " 9.9.9.9 ", "9.9.9.9"},
		{"forwarded", "Forwarded", "for=192.0.2.60;proto=http;by=203.0.113.43", "192.0.2.60"},
		{"forwarded ipv6", "Forwarded", `For="[2001:db8:cafe::17]:4711"`, "2001:db8:cafe::17"},
		{"forwarded list", "Forwarded", "for=198.51.100.17, for=203.0.113.1", "198.51.100.17"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
			r.RemoteAddr = "10.0.0.9:5555"
			r.Header.Set(tt.header, tt.value)

			if got := fn(r); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDefaultKeyFunc_XForwardedForWinsOverRealIP(t *testing.T) {
	fn := DefaultKeyFunc("", true)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.Header.Set("X-Forwarded-For", "1.1.1.1")
	r.Header.Set("X-Real-IP", "2.2.2.2")

	if got := fn(r); got != "1.1.1.1" {
		t.Fatalf("expected xff ip, got %q", got)
	}
}

func TestDefaultKeyFunc_IgnoresProxyHeadersWhenUntrusted(t *testing.T) {
	fn := DefaultKeyFunc("", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")
	r.Header.Set("X-Real-IP", "5.6.7.8")

	if got := fn(r); got != "10.0.0.9" {
		t.Fatalf("expected remote host, got %q", got)
	}
}

func TestDefaultKeyFunc_FallbacksToRemoteAddrHost(t *testing.T) {
	fn := DefaultKeyFunc("", true)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "[::1]:5555"

	if got := fn(r); got != "::1" {
		t.Fatalf("expected remote host, got %q", got)
	}

	r.RemoteAddr = ""
	if got := fn(r); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
}
