package infra

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"abuse-gateway/middleware/guard/domain"

	"golang.org/x/time/rate"
)

// Persister é o adaptador de persistência: restaura o snapshot na partida e
// grava cópias consistentes do estado fora do lock, em modo best-effort.
//
// Pedidos de gravação são coalescidos: no máximo uma gravação por intervalo de
// debounce (token bucket de x/time/rate com burst 1). Como o export acontece
// depois da espera, nenhuma mutação fica mais de um intervalo sem ir para disco.
type Persister struct {
	store   domain.SnapshotStore
	state   domain.ClientStateStore
	logger  *slog.Logger
	now     func() time.Time
	limiter *rate.Limiter
	timeout time.Duration

	pending chan struct{}
	saveMu  sync.Mutex
}

type PersisterOption func(*Persister)

// WithDebounce define o intervalo mínimo entre gravações. d <= 0 desliga o debounce.
func WithDebounce(d time.Duration) PersisterOption {
	return func(p *Persister) {
		if d <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		p.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

func WithSaveTimeout(d time.Duration) PersisterOption {
	return func(p *Persister) { p.timeout = d }
}

func WithPersisterClock(now func() time.Time) PersisterOption {
	return func(p *Persister) { p.now = now }
}

func NewPersister(store domain.SnapshotStore, state domain.ClientStateStore, logger *slog.Logger, opts ...PersisterOption) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Persister{
		store:   store,
		state:   state,
		logger:  logger,
		now:     time.Now,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		timeout: 5 * time.Second,
		pending: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Request implementa domain.Saver. Nunca bloqueia.
func (p *Persister) Request() {
	select {
	case p.pending <- struct{}{}:
	default:
	}
}

// Start inicia a goroutine de gravação. Pare cancelando o contexto e chame
// Flush para a gravação final.
func (p *Persister) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.pending:
				if err := p.limiter.Wait(ctx); err != nil {
					return
				}
				_ = p.Flush(context.Background())
			}
		}
	}()
}

// Flush exporta e grava imediatamente. Falhas são logadas e devolvidas, mas o
// estado em memória continua valendo e a próxima gravação tenta de novo.
func (p *Persister) Flush(ctx context.Context) error {
	if p.store == nil {
		return nil
	}

	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	snap := p.state.Export(p.now())

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.store.Save(ctx, snap); err != nil {
		p.logger.Error("snapshot_save_failed", "error", err)
		return err
	}
	p.logger.Debug("snapshot_saved", "blocked", len(snap.BlockedIPs), "whitelist", len(snap.Whitelist))
	return nil
}

// Restore carrega o snapshot e importa no estado, descartando bloqueios já
// expirados. Nunca falha: sem snapshot legível o estado começa frio.
// Retorna quantos bloqueios foram restaurados.
func (p *Persister) Restore(ctx context.Context) int {
	if p.store == nil {
		return 0
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	snap, err := p.store.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			p.logger.Info("snapshot_not_found", "cold_start", true)
		} else {
			p.logger.Warn("snapshot_load_failed", "error", err, "cold_start", true)
		}
		return 0
	}

	now := p.now()
	active := make(map[domain.Key]domain.BlockRecord, len(snap.BlockedIPs))
	for k, rec := range snap.BlockedIPs {
		if rec.Active(now) {
			active[k] = rec
		}
	}
	skipped := len(snap.BlockedIPs) - len(active)
	snap.BlockedIPs = active

	p.state.Import(snap)
	p.logger.Info("snapshot_restored",
		"blocked", len(active),
		"expired_skipped", skipped,
		"whitelist", len(snap.Whitelist),
		"trusted_networks", len(snap.TrustedNetworks),
	)
	return len(active)
}
