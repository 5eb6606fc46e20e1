package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"abuse-gateway/internal/bootstrap"
	"abuse-gateway/internal/config"
	"abuse-gateway/internal/logging"
	"abuse-gateway/middleware/guard/domain"

	"github.com/gin-gonic/gin"
)

func main() {
	// Exemplo: injetando o guard diretamente num servidor gin (sem proxy)
	cfg, err := config.Load(os.Getenv("GUARD_CONFIG"))
	if err != nil {
		panic(err)
	}
	if os.Getenv("GUARD_LISTEN_ADDR") == "" {
		cfg.Server.ListenAddr = ":8081"
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("guard_init_failed", "error", err)
		os.Exit(1)
	}
	rt.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), rt.Guard.Gin())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/showTela", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte("<h1>Tela do Sistema</h1><p>Requisição recebida com sucesso!</p>"))
	})
	r.POST("/api/v1/webhooks/elementor/:form", func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"form": c.Param("form")})
	})

	// operação no mesmo processo, sob /security
	admin := rt.Guard.Admin().Routes()
	r.Any("/security/*path", func(c *gin.Context) {
		if !isLoopbackRequest(c) {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		admin.ServeHTTP(c.Writer, c.Request)
	})

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	logger.Info("example_server_started", "addr", cfg.Server.ListenAddr)
	if err := rt.Serve(ctx, bootstrap.Server{Name: "example", Server: srv}); err != nil {
		logger.Error("example_server_failed", "error", err)
		os.Exit(1)
	}
}

func isLoopbackRequest(c *gin.Context) bool {
	return domain.IsLoopback(c.RemoteIP())
}
