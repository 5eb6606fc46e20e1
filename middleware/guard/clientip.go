package guard

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

type KeyFunc func(r *http.Request) string

// DefaultKeyFunc resolve o identificador do cliente.
//
// Ordem: keyHeader (se definido), X-Forwarded-For (primeiro IP), X-Real-IP,
// Forwarded (for=), e por fim o host de RemoteAddr. Os headers de proxy só
// são lidos com trustProxy.
func DefaultKeyFunc(keyHeader string, trustProxy bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustProxy {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := normalizeHost(first); ip != "" {
					return ip
				}
			}
			if ip := normalizeHost(r.Header.Get("X-Real-IP")); ip != "" {
				return ip
			}
			if ip := forwardedFor(r.Header.Get("Forwarded")); ip != "" {
				return ip
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// forwardedFor extrai o primeiro for= do header Forwarded (RFC 7239).
func forwardedFor(v string) string {
	if v == "" {
		return ""
	}
	first, _, _ := strings.Cut(v, ",")
	for _, part := range strings.Split(first, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(name, "for") {
			continue
		}
		return normalizeHost(value)
	}
	return ""
}

// normalizeHost remove aspas, colchetes e porta de um endereço vindo de header.
func normalizeHost(v string) string {
	v = strings.Trim(strings.TrimSpace(v), `"`)
	if v == "" {
		return ""
	}
	if ap, err := netip.ParseAddrPort(v); err == nil {
		return ap.Addr().Unmap().String()
	}
	v = strings.TrimSuffix(strings.TrimPrefix(v, "["), "]")
	if addr, err := netip.ParseAddr(v); err == nil {
		return addr.Unmap().String()
	}
	return v
}
