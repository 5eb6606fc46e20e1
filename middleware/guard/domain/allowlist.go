package domain

import (
	"net/netip"
	"strings"
)

var loopbackIDs = map[string]struct{}{
	"127.0.0.1": {},
	"::1":       {},
	"localhost": {},
}

// IsLoopback é verdadeiro para os identificadores de localhost sempre liberados.
func IsLoopback(id string) bool {
	_, ok := loopbackIDs[id]
	return ok
}

// MatchTrustedNetwork testa id contra uma entrada de rede confiável.
//
//   - CIDR válido: contenção real de prefixo.
//   - entrada sem "/": prefixo de string (ex.: "10.1.").
//   - CIDR malformado ou entrada vazia: não casa.
func MatchTrustedNetwork(id, network string) bool {
	network = strings.TrimSpace(network)
	if network == "" || id == "" {
		return false
	}
	if !strings.Contains(network, "/") {
		return strings.HasPrefix(id, network)
	}
	prefix, err := netip.ParsePrefix(network)
	if err != nil {
		return false
	}
	addr, err := netip.ParseAddr(id)
	if err != nil {
		return false
	}
	return prefix.Contains(addr.Unmap())
}

// MatchAllowList aplica as três regras da allow-list: entrada exata, rede
// confiável e loopback.
func MatchAllowList(id string, whitelist map[string]struct{}, trusted map[string]struct{}) bool {
	if _, ok := whitelist[id]; ok {
		return true
	}
	for n := range trusted {
		if MatchTrustedNetwork(id, n) {
			return true
		}
	}
	return IsLoopback(id)
}
