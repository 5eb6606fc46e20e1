package infra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"abuse-gateway/middleware/guard/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore grava os contadores em hashes sob um prefixo:
//
//	<prefix>:total            desfecho -> contagem (cumulativo)
//	<prefix>:status           status >= 400 -> contagem
//	<prefix>:route            "<rota>|<desfecho>" -> contagem
//	<prefix>:minute:<yyyymmddhhmm> desfecho -> contagem (expira em ttl)
//	<prefix>:key:<cliente>    desfecho -> contagem (expira em ttl)
type RedisStatsStore struct {
	rdb *redis.Client

	prefix    string
	ttl       time.Duration
	bucket    string // "minute" (padrão) ou "none"
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "guard:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

// expiring incrementa um hash com TTL renovado a cada escrita.
func (s *RedisStatsStore) expiring(ctx context.Context, pipe redis.Pipeliner, key, field string) {
	pipe.HIncrBy(ctx, key, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	outcome := string(ev.Outcome)
	if outcome == "" {
		outcome = "unknown"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.key("total"), outcome, 1)
	if ev.Status >= 400 {
		pipe.HIncrBy(ctx, s.key("status"), strconv.Itoa(ev.Status), 1)
	}
	if route := domain.RouteLabel(ev); route != "" {
		pipe.HIncrBy(ctx, s.key("route"), route+"|"+outcome, 1)
	}
	if s.bucket == "minute" {
		s.expiring(ctx, pipe, s.key("minute", at.UTC().Format("200601021504")), outcome)
	}
	if k := strings.TrimSpace(string(ev.Key)); s.trackKeys && k != "" {
		s.expiring(ctx, pipe, s.key("key", k), outcome)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStatsStore) Summary(ctx context.Context) (domain.StatsSummary, error) {
	sum := domain.StatsSummary{
		Outcomes: map[domain.Outcome]int64{},
		Statuses: map[int]int64{},
		Routes:   map[string]map[domain.Outcome]int64{},
	}
	if s == nil || s.rdb == nil {
		return sum, nil
	}

	pipe := s.rdb.Pipeline()
	total := pipe.HGetAll(ctx, s.key("total"))
	status := pipe.HGetAll(ctx, s.key("status"))
	route := pipe.HGetAll(ctx, s.key("route"))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return sum, fmt.Errorf("read stats: %w", err)
	}

	for field, v := range total.Val() {
		sum.Outcomes[domain.Outcome(field)] = parseCount(v)
	}
	for field, v := range status.Val() {
		if code, err := strconv.Atoi(field); err == nil {
			sum.Statuses[code] = parseCount(v)
		}
	}
	for field, v := range route.Val() {
		i := strings.LastIndex(field, "|")
		if i < 0 {
			continue
		}
		name, outcome := field[:i], domain.Outcome(field[i+1:])
		if sum.Routes[name] == nil {
			sum.Routes[name] = map[domain.Outcome]int64{}
		}
		sum.Routes[name][outcome] = parseCount(v)
	}
	return sum, nil
}

func parseCount(v string) int64 {
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}
