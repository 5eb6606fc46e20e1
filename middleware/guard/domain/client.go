package domain

import (
	"math"
	"time"
)

// Key identifica um cliente (normalmente o IP resolvido).
type Key string

// ErrorKind separa as duas janelas de erro mantidas por cliente.
type ErrorKind int

const (
	// NotFoundError conta apenas respostas 404.
	NotFoundError ErrorKind = iota
	// GeneralError conta respostas >= 400.
	GeneralError
)

// BlockRecord é um bloqueio temporário de um cliente.
//
// Invariante: BlockedUntil == BlockedAt + Duration.
type BlockRecord struct {
	Reason       string
	BlockedAt    time.Time
	BlockedUntil time.Time
	Duration     time.Duration
}

func NewBlockRecord(reason string, at time.Time, d time.Duration) BlockRecord {
	return BlockRecord{
		Reason:       reason,
		BlockedAt:    at,
		BlockedUntil: at.Add(d),
		Duration:     d,
	}
}

// Active é verdadeiro enquanto now < BlockedUntil.
func (b BlockRecord) Active(now time.Time) bool {
	return now.Before(b.BlockedUntil)
}

func (b BlockRecord) Remaining(now time.Time) time.Duration {
	if !b.Active(now) {
		return 0
	}
	return b.BlockedUntil.Sub(now)
}

// BlockStatus é o resultado da consulta de bloqueio.
type BlockStatus struct {
	Blocked      bool
	Reason       string
	BlockedUntil time.Time
	Remaining    time.Duration
}

// BlockMode controla o que acontece quando já existe um bloqueio ativo.
type BlockMode int

const (
	// BlockOverwrite substitui qualquer registro existente (ação manual).
	BlockOverwrite BlockMode = iota
	// BlockIfInactive não estende nem duplica um bloqueio ativo (bloqueio automático).
	BlockIfInactive
)

type BlockResult int

const (
	BlockInserted BlockResult = iota
	BlockSkippedAllowed
	BlockSkippedActive
)

// RateDecision é a decisão da janela deslizante de requisições.
type RateDecision struct {
	Allowed bool
	// Count é o número de requisições na janela (incluindo a atual quando admitida).
	Count int
	Limit int
	// Remaining só faz sentido quando Allowed.
	Remaining int
	Window    time.Duration
	// RetryAfter é o tempo até a entrada mais antiga sair da janela, quando rejeitada.
	RetryAfter time.Duration
}

// Seconds arredonda uma duração para cima em segundos inteiros (Retry-After, JSON).
func Seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
