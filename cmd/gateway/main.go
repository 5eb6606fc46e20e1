package main

import (
	"context"
	"flag"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"abuse-gateway/internal/bootstrap"
	"abuse-gateway/internal/config"
	"abuse-gateway/internal/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("GUARD_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	if cfg.Server.UpstreamURL == "" {
		logger.Error("config_invalid", "error", "GUARD_UPSTREAM_URL is required")
		os.Exit(1)
	}
	target, err := url.Parse(cfg.Server.UpstreamURL)
	if err != nil {
		logger.Error("config_invalid", "error", err, "upstream_url", cfg.Server.UpstreamURL)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("guard_init_failed", "error", err)
		os.Exit(1)
	}
	rt.Start(ctx)

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ModifyResponse = rt.Guard.ModifyResponse
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy_error", "error", err, "path", r.URL.Path)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           rt.Guard.Handler(proxy),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	servers := []bootstrap.Server{{Name: "gateway", Server: srv}}
	if cfg.Server.AdminAddr != "" {
		servers = append(servers, bootstrap.Server{
			Name: "admin",
			Server: &http.Server{
				Addr:              cfg.Server.AdminAddr,
				Handler:           rt.Guard.Admin().Routes(),
				ReadHeaderTimeout: 5 * time.Second,
			},
		})
	}

	logger.Info("gateway_started",
		"addr", cfg.Server.ListenAddr,
		"upstream", target.String(),
		"admin_addr", cfg.Server.AdminAddr,
		"redis_password", logging.MaskSecret(cfg.Redis.Password),
	)

	// Serve só grava o snapshot final depois que os servidores pararam
	if err := rt.Serve(ctx, servers...); err != nil {
		logger.Error("gateway_failed", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway_stopped")
}
