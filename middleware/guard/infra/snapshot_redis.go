package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"abuse-gateway/middleware/guard/domain"

	"github.com/redis/go-redis/v9"
)

// RedisSnapshotStore guarda o snapshot JSON inteiro numa única chave.
//
// Não é coordenação entre nós: cada processo continua com seu estado próprio,
// o Redis só serve de disco.
type RedisSnapshotStore struct {
	rdb *redis.Client
	key string
}

type RedisSnapshotOption func(*RedisSnapshotStore)

func WithSnapshotKey(key string) RedisSnapshotOption {
	return func(s *RedisSnapshotStore) {
		if k := strings.TrimSpace(key); k != "" {
			s.key = k
		}
	}
}

func NewRedisSnapshotStore(rdb *redis.Client, opts ...RedisSnapshotOption) *RedisSnapshotStore {
	s := &RedisSnapshotStore{
		rdb: rdb,
		key: "guard:snapshot",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisSnapshotStore) Load(ctx context.Context) (domain.Snapshot, error) {
	if s == nil || s.rdb == nil {
		return domain.Snapshot{}, domain.ErrSnapshotNotFound
	}
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Snapshot{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	return decodeSnapshot(data)
}

func (s *RedisSnapshotStore) Save(ctx context.Context, snap domain.Snapshot) error {
	if s == nil || s.rdb == nil {
		return errors.New("redis snapshot store not configured")
	}
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}
