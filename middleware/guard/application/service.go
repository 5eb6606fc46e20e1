package application

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"abuse-gateway/middleware/guard/domain"
)

// Service concentra as regras de admissão e bloqueio.
//
// Ele não sabe nada sobre HTTP (headers/body), apenas devolve decisões.
// Toda mutação durável (bloqueio, allow-list) pede uma gravação ao Saver
// depois que o lock do estado já foi liberado.
type Service struct {
	State  domain.ClientStateStore
	Policy Policy
	Saver  domain.Saver
	Logger *slog.Logger
}

func (s Service) log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s Service) persist() {
	if s.Saver != nil {
		s.Saver.Request()
	}
}

// IsAllowed diz se o cliente está na allow-list (entrada exata, rede confiável ou loopback).
func (s Service) IsAllowed(key domain.Key) bool {
	return s.State.IsAllowed(string(key))
}

// CheckRate é o rate limiter: admite e registra a requisição, ou rejeita com RetryAfter.
func (s Service) CheckRate(key domain.Key, now time.Time) domain.RateDecision {
	p := s.Policy.withDefaults()
	return s.State.Admit(key, now, p.Window, p.Limit)
}

// RecordOutcome alimenta o bloqueio automático com o status final de uma resposta.
// Apenas uma regra dispara por chamada.
func (s Service) RecordOutcome(key domain.Key, status int, now time.Time) {
	if status < http.StatusBadRequest {
		return
	}
	if s.IsAllowed(key) {
		return
	}
	p := s.Policy.withDefaults()

	if status == http.StatusNotFound {
		n := s.State.RecordError(key, domain.NotFoundError, now, p.Window)
		if n >= p.NotFoundThreshold {
			s.autoBlock(key, fmt.Sprintf("Consecutive 404 errors (%d)", n), p.NotFoundBlockDuration, now)
			return
		}
		if !p.CountNotFoundAsErrors {
			return
		}
	}

	n := s.State.RecordError(key, domain.GeneralError, now, p.Window)
	if n >= p.ErrorThreshold {
		reason := fmt.Sprintf("Excessive errors (%d in %ds)", n, int(p.Window/time.Second))
		s.autoBlock(key, reason, p.ErrorBlockDuration, now)
	}
}

func (s Service) autoBlock(key domain.Key, reason string, d time.Duration, now time.Time) {
	res := s.State.Block(key, domain.NewBlockRecord(reason, now, d), domain.BlockIfInactive)
	if res != domain.BlockInserted {
		return
	}
	s.log().Warn("client_blocked", "client_ip", string(key), "reason", reason, "duration_s", int(d/time.Second))
	s.persist()
}

// Block é a ação manual do operador: sobrescreve qualquer bloqueio existente.
// Continua sem efeito para clientes na allow-list.
func (s Service) Block(key domain.Key, reason string, d time.Duration, now time.Time) bool {
	if d <= 0 {
		d = s.Policy.withDefaults().NotFoundBlockDuration
	}
	if reason == "" {
		reason = "Manual block"
	}
	res := s.State.Block(key, domain.NewBlockRecord(reason, now, d), domain.BlockOverwrite)
	switch res {
	case domain.BlockInserted:
		s.log().Warn("client_blocked", "client_ip", string(key), "reason", reason, "duration_s", int(d/time.Second), "manual", true)
		s.persist()
		return true
	case domain.BlockSkippedAllowed:
		s.log().Info("block_skipped_allowlisted", "client_ip", string(key))
	}
	return false
}

// IsBlocked consulta o bloqueio e remove na hora um registro expirado.
func (s Service) IsBlocked(key domain.Key, now time.Time) domain.BlockStatus {
	rec, blocked, evicted := s.State.Status(key, now)
	if evicted {
		s.log().Info("block_expired", "client_ip", string(key))
		s.persist()
	}
	if !blocked {
		return domain.BlockStatus{}
	}
	return domain.BlockStatus{
		Blocked:      true,
		Reason:       rec.Reason,
		BlockedUntil: rec.BlockedUntil,
		Remaining:    rec.Remaining(now),
	}
}

// Unblock remove o bloqueio. Idempotente; retorna se havia registro.
func (s Service) Unblock(key domain.Key) bool {
	if !s.State.Unblock(key) {
		return false
	}
	s.log().Info("client_unblocked", "client_ip", string(key))
	s.persist()
	return true
}

func (s Service) AddToWhitelist(entry string) bool {
	return s.mutateList(s.State.AddToWhitelist, entry, "whitelist_added")
}

func (s Service) RemoveFromWhitelist(entry string) bool {
	return s.mutateList(s.State.RemoveFromWhitelist, entry, "whitelist_removed")
}

func (s Service) AddTrustedNetwork(network string) bool {
	return s.mutateList(s.State.AddTrustedNetwork, network, "trusted_network_added")
}

func (s Service) RemoveTrustedNetwork(network string) bool {
	return s.mutateList(s.State.RemoveTrustedNetwork, network, "trusted_network_removed")
}

// mutateList aplica fn e só persiste quando o conjunto mudou, o que mantém
// chamadas repetidas idempotentes.
func (s Service) mutateList(fn func(string) bool, v, msg string) bool {
	if !fn(v) {
		return false
	}
	s.log().Info(msg, "entry", v)
	s.persist()
	return true
}

// CountRequest e CountRejected alimentam os contadores informativos.
func (s Service) CountRequest()  { s.State.CountRequest() }
func (s Service) CountRejected() { s.State.CountRejected() }

// BlockedClient é um bloqueio ativo para listagem.
type BlockedClient struct {
	Key          domain.Key
	Reason       string
	BlockedAt    time.Time
	BlockedUntil time.Time
	Duration     time.Duration
	Remaining    time.Duration
}

// BlockedClients lista apenas bloqueios ativos em now.
func (s Service) BlockedClients(now time.Time) []BlockedClient {
	blocked := s.State.Blocked(now)
	out := make([]BlockedClient, 0, len(blocked))
	for k, rec := range blocked {
		out = append(out, BlockedClient{
			Key:          k,
			Reason:       rec.Reason,
			BlockedAt:    rec.BlockedAt,
			BlockedUntil: rec.BlockedUntil,
			Duration:     rec.Duration,
			Remaining:    rec.Remaining(now),
		})
	}
	return out
}

// Report é a visão consolidada para operadores.
type Report struct {
	domain.Counters
	CurrentlyBlocked int
	KnownClients     int
	WhitelistSize    int
	TrustedNetworks  int
	Policy           Policy
}

func (s Service) Report(now time.Time) Report {
	return Report{
		Counters:         s.State.Counters(),
		CurrentlyBlocked: len(s.State.Blocked(now)),
		KnownClients:     s.State.KnownClients(),
		WhitelistSize:    len(s.State.Whitelist()),
		TrustedNetworks:  len(s.State.TrustedNetworks()),
		Policy:           s.Policy.withDefaults(),
	}
}
