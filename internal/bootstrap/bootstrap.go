// Package bootstrap monta o guard a partir da configuração: estado, backend de
// snapshot, persister, janitor e stats. É compartilhado pelos binários em cmd/.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"abuse-gateway/internal/config"
	"abuse-gateway/middleware/guard"
	"abuse-gateway/middleware/guard/application"
	"abuse-gateway/middleware/guard/domain"
	"abuse-gateway/middleware/guard/infra"

	"github.com/redis/go-redis/v9"
)

type Runtime struct {
	Guard     *guard.Guard
	State     *infra.MemoryState
	Persister *infra.Persister
	Janitor   *application.Janitor

	cfg     *config.Config
	logger  *slog.Logger
	closers []io.Closer
}

// Build conecta as dependências. Restaura o snapshot e aplica a allow-list da
// configuração antes de devolver, então o Runtime já está pronto para servir.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{cfg: cfg, logger: logger}

	var rdb *redis.Client
	if cfg.Persistence.Backend == config.BackendRedis || (cfg.Stats.Enabled && cfg.Stats.Backend == config.BackendRedis) {
		c, err := newRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		rdb = c
		rt.closers = append(rt.closers, c)
	}

	store, err := rt.snapshotStore(rdb)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	rt.State = infra.NewMemoryState()
	rt.Persister = infra.NewPersister(store, rt.State, logger,
		infra.WithDebounce(cfg.Persistence.SaveDebounce),
		infra.WithSaveTimeout(cfg.Persistence.SaveTimeout),
	)
	restored := rt.Persister.Restore(ctx)

	policy := PolicyFrom(cfg.Policy)
	svc := application.Service{
		State:  rt.State,
		Policy: policy,
		Saver:  rt.Persister,
		Logger: logger,
	}
	seeded := seedAllowList(svc, cfg.AllowList)

	rt.Janitor = application.NewJanitor(rt.State, rt.Persister, policy, cfg.Cleanup.Interval, logger)

	var stats domain.StatsStore
	if cfg.Stats.Enabled {
		switch cfg.Stats.Backend {
		case config.BackendRedis:
			stats = infra.NewRedisStatsStore(rdb,
				infra.WithStatsPrefix(cfg.Stats.Prefix),
				infra.WithStatsTTL(cfg.Stats.TTL),
				infra.WithStatsBucket(cfg.Stats.Bucket),
				infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
			)
		default:
			stats = infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.Stats.TrackKeys))
		}
	}

	p := cfg.Pipeline
	rt.Guard = guard.New(guard.Options{
		Service:              svc,
		Janitor:              rt.Janitor,
		Stats:                stats,
		Logger:               logger,
		KeyHeader:            p.KeyHeader,
		TrustProxyHeaders:    p.TrustProxyHeaders,
		SkipPrefixes:         p.SkipPrefixes,
		LoopbackSkipPrefixes: p.LoopbackSkipPrefixes,
		AllowListSkipPaths:   p.AllowListSkipPaths,
		RestrictedPrefixes:   p.RestrictedPrefixes,
		PublicPaths:          p.PublicPaths,
		SilentBlocking:       p.SilentBlocking,
		SilentStatus:         p.SilentStatus,
		FrameAncestors:       p.FrameAncestors,
		SlowRequestThreshold: p.SlowRequestThreshold,
	})

	logger.Info("guard_ready",
		"persistence", cfg.Persistence.Backend,
		"restored_blocks", restored,
		"seeded_entries", seeded,
		"window_s", domain.Seconds(policy.Window),
		"limit", policy.Limit,
		"silent_blocking", p.SilentBlocking,
		"stats", cfg.Stats.Enabled,
	)
	return rt, nil
}

// Start liga a gravação assíncrona e, se configurado, a varredura por ticker.
func (rt *Runtime) Start(ctx context.Context) {
	rt.Persister.Start(ctx)
	if rt.cfg.Cleanup.Ticker {
		rt.Janitor.Start(ctx, nil)
	}
}

// Shutdown grava um snapshot final e fecha as conexões.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	err := rt.Persister.Flush(ctx)
	if cerr := rt.Close(); err == nil {
		err = cerr
	}
	return err
}

func (rt *Runtime) Close() error {
	var first error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	rt.closers = nil
	return first
}

func (rt *Runtime) snapshotStore(rdb *redis.Client) (domain.SnapshotStore, error) {
	pc := rt.cfg.Persistence
	switch pc.Backend {
	case config.BackendFile:
		return infra.NewFileSnapshotStore(rt.logger, rt.cfg.PersistencePaths()...), nil
	case config.BackendRedis:
		return infra.NewRedisSnapshotStore(rdb, infra.WithSnapshotKey(pc.RedisKey)), nil
	case config.BackendBadger:
		s, err := infra.OpenBadgerSnapshotStore(pc.BadgerDir)
		if err != nil {
			return nil, fmt.Errorf("open badger snapshot store: %w", err)
		}
		rt.closers = append(rt.closers, s)
		return s, nil
	case config.BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported persistence backend: %q", pc.Backend)
	}
}

func PolicyFrom(pc config.PolicyConfig) application.Policy {
	return application.Policy{
		Window:                pc.Window,
		Limit:                 pc.Limit,
		NotFoundThreshold:     pc.NotFoundThreshold,
		NotFoundBlockDuration: pc.NotFoundBlockDuration,
		ErrorThreshold:        pc.ErrorThreshold,
		ErrorBlockDuration:    pc.ErrorBlockDuration,
		CountNotFoundAsErrors: pc.CountNotFoundAsErrors,
	}
}

// seedAllowList soma as entradas configuradas ao estado restaurado.
func seedAllowList(svc application.Service, al config.AllowListConfig) int {
	n := 0
	for _, ip := range al.Whitelist {
		if svc.AddToWhitelist(ip) {
			n++
		}
	}
	for _, network := range al.TrustedNetworks {
		if svc.AddTrustedNetwork(network) {
			n++
		}
	}
	return n
}

func newRedisClient(ctx context.Context, rc config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
