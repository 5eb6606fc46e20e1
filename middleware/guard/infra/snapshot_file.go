package infra

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"abuse-gateway/middleware/guard/domain"
)

// FileSnapshotStore grava o snapshot em JSON tentando os caminhos em ordem
// (primário e depois fallback, ex.: um diretório tmp).
type FileSnapshotStore struct {
	paths  []string
	logger *slog.Logger
}

func NewFileSnapshotStore(logger *slog.Logger, paths ...string) *FileSnapshotStore {
	if logger == nil {
		logger = slog.Default()
	}
	clean := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" {
			clean = append(clean, p)
		}
	}
	return &FileSnapshotStore{paths: clean, logger: logger}
}

func (s *FileSnapshotStore) Paths() []string {
	return append([]string(nil), s.paths...)
}

// Load para no primeiro arquivo lido e decodificado com sucesso.
func (s *FileSnapshotStore) Load(_ context.Context) (domain.Snapshot, error) {
	var lastErr error
	for _, p := range s.paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.logger.Debug("snapshot_read_failed", "path", p, "error", err)
				lastErr = err
			}
			continue
		}
		snap, err := decodeSnapshot(data)
		if err != nil {
			s.logger.Debug("snapshot_parse_failed", "path", p, "error", err)
			lastErr = err
			continue
		}
		s.logger.Info("snapshot_loaded", "path", p, "blocked", len(snap.BlockedIPs), "whitelist", len(snap.Whitelist))
		return snap, nil
	}
	if lastErr != nil {
		return domain.Snapshot{}, fmt.Errorf("load snapshot: %w", lastErr)
	}
	return domain.Snapshot{}, domain.ErrSnapshotNotFound
}

// Save tenta cada caminho em ordem, criando diretórios intermediários.
func (s *FileSnapshotStore) Save(_ context.Context, snap domain.Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	var lastErr error
	for i, p := range s.paths {
		if err := writeFileAtomic(p, data); err != nil {
			lastErr = err
			if i < len(s.paths)-1 {
				s.logger.Debug("snapshot_save_fallback", "path", p, "error", err)
			}
			continue
		}
		return nil
	}
	if lastErr == nil {
		return errors.New("save snapshot: no paths configured")
	}
	return fmt.Errorf("save snapshot: %w", lastErr)
}

// writeFileAtomic escreve num arquivo temporário no mesmo diretório e renomeia,
// para que um crash no meio da escrita não deixe JSON truncado.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
