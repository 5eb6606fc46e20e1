package application

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"abuse-gateway/middleware/guard/domain"
)

// Janitor remove bloqueios expirados e janelas antigas para limitar a memória.
//
// Pode rodar inline (MaybeSweep, chamado a cada requisição e protegido por um
// "tempo desde a última varredura") ou num ticker (Start).
type Janitor struct {
	State    domain.ClientStateStore
	Saver    domain.Saver
	Logger   *slog.Logger
	Interval time.Duration
	// Retention é quanto histórico de janela manter; padrão 10 janelas.
	Retention time.Duration

	last atomic.Int64 // unix nano da última varredura
}

func NewJanitor(state domain.ClientStateStore, saver domain.Saver, policy Policy, interval time.Duration, logger *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		State:     state,
		Saver:     saver,
		Logger:    logger,
		Interval:  interval,
		Retention: 10 * policy.withDefaults().Window,
	}
}

// MaybeSweep varre se já passou Interval desde a última varredura.
// Só uma requisição concorrente ganha a vez.
func (j *Janitor) MaybeSweep(now time.Time) bool {
	last := j.last.Load()
	if last == 0 {
		// primeira chamada só arma o relógio
		j.last.CompareAndSwap(0, now.UnixNano())
		return false
	}
	if now.Sub(time.Unix(0, last)) <= j.Interval {
		return false
	}
	if !j.last.CompareAndSwap(last, now.UnixNano()) {
		return false
	}
	j.Sweep(now)
	return true
}

// Sweep persiste apenas se algum bloqueio foi removido.
func (j *Janitor) Sweep(now time.Time) domain.SweepResult {
	res := j.State.Sweep(now, j.Retention)
	if res.ExpiredBlocks > 0 {
		j.Logger.Info("cleanup_expired_blocks", "expired", res.ExpiredBlocks, "dropped_clients", res.DroppedClients)
		if j.Saver != nil {
			j.Saver.Request()
		}
	} else if res.DroppedClients > 0 {
		j.Logger.Debug("cleanup_stale_clients", "dropped_clients", res.DroppedClients)
	}
	return res
}

// Start inicia uma goroutine que varre periodicamente.
// Pare cancelando o contexto.
func (j *Janitor) Start(ctx context.Context, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	t := time.NewTicker(j.Interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n := now()
				j.last.Store(n.UnixNano())
				j.Sweep(n)
			}
		}
	}()
}
