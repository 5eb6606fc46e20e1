package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Server associa um http.Server a um listener opcional. Sem Listener, usa
// ListenAndServe no Addr do servidor.
type Server struct {
	Name     string
	Server   *http.Server
	Listener net.Listener
}

func (s Server) serve() error {
	if s.Listener != nil {
		return s.Server.Serve(s.Listener)
	}
	return s.Server.ListenAndServe()
}

// Serve roda os servidores até ctx ser cancelado ou um deles falhar. O
// snapshot final só é gravado depois que todos os Shutdown retornaram, ou seja,
// depois que as requisições em andamento terminaram (ou o prazo estourou).
func (rt *Runtime) Serve(ctx context.Context, servers ...Server) error {
	errc := make(chan error, len(servers))
	for _, s := range servers {
		s := s
		go func() {
			if err := s.serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("%s: %w", s.Name, err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
		rt.logger.Error("http_listen_failed", "error", serveErr)
	}
	rt.logger.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.shutdownTimeout())
	defer cancel()
	for _, s := range servers {
		if err := s.Server.Shutdown(shutdownCtx); err != nil {
			rt.logger.Error("http_shutdown_failed", "server", s.Name, "error", err)
		}
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), rt.flushTimeout())
	defer flushCancel()
	if err := rt.Shutdown(flushCtx); err != nil {
		rt.logger.Error("final_flush_failed", "error", err)
		return errors.Join(serveErr, err)
	}
	return serveErr
}

func (rt *Runtime) shutdownTimeout() time.Duration {
	if d := rt.cfg.Server.ShutdownTimeout; d > 0 {
		return d
	}
	return 10 * time.Second
}

func (rt *Runtime) flushTimeout() time.Duration {
	if d := rt.cfg.Persistence.SaveTimeout; d > 0 {
		return d
	}
	return 5 * time.Second
}
