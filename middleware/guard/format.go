// utilitários pequenos de formatação para headers.

package guard

import (
	"strconv"
	"strings"
)

func formatInt(v int) string { return strconv.Itoa(v) }

// frameAncestors monta o valor do CSP: 'self' seguido das origens configuradas.
func frameAncestors(origins []string) string {
	var b strings.Builder
	b.WriteString("frame-ancestors 'self'")
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			b.WriteByte(' ')
			b.WriteString(o)
		}
	}
	return b.String()
}

// frameOptions usa ALLOW-FROM para a primeira origem, ou SAMEORIGIN.
func frameOptions(origins []string) string {
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" && !strings.Contains(o, "*") {
			return "ALLOW-FROM " + o
		}
	}
	return "SAMEORIGIN"
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
