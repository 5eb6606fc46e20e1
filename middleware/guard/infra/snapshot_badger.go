package infra

import (
	"context"
	"errors"
	"fmt"

	"abuse-gateway/middleware/guard/domain"

	"github.com/dgraph-io/badger/v4"
)

var badgerSnapshotKey = []byte("guard/snapshot")

// BadgerSnapshotStore guarda o snapshot num badger embutido.
type BadgerSnapshotStore struct {
	db *badger.DB
}

// OpenBadgerSnapshotStore abre (ou cria) o banco em dir. dir vazio abre em memória.
func OpenBadgerSnapshotStore(dir string) (*BadgerSnapshotStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerSnapshotStore{db: db}, nil
}

func (s *BadgerSnapshotStore) Load(_ context.Context) (domain.Snapshot, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerSnapshotKey)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Snapshot{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("badger get: %w", err)
	}
	return decodeSnapshot(data)
}

func (s *BadgerSnapshotStore) Save(_ context.Context, snap domain.Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerSnapshotKey, data)
	})
}

func (s *BadgerSnapshotStore) Close() error {
	return s.db.Close()
}
