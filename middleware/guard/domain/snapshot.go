package domain

import (
	"context"
	"errors"
	"time"
)

// ErrSnapshotNotFound indica que nenhum snapshot foi encontrado no backend.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot é o export/import pontual do estado durável (bloqueios + allow-list).
type Snapshot struct {
	BlockedIPs      map[Key]BlockRecord
	Whitelist       []string
	TrustedNetworks []string
	SavedAt         time.Time
}

// SnapshotStore é a estratégia de persistência do snapshot (arquivo, Redis, Badger...).
type SnapshotStore interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, s Snapshot) error
}

// Saver agenda uma escrita assíncrona do snapshot.
// Implementações não podem bloquear quem chama.
type Saver interface {
	Request()
}

// Counters são contadores monotônicos, apenas informativos.
type Counters struct {
	TotalRequests   int64
	BlockedRequests int64
	ClientsBlocked  int64
	BlocksTriggered int64
	RateLimited     int64
}
