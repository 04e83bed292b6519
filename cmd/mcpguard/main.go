// Command mcpguard runs a protected MCP resource server: a stateless tool
// server whose protected namespace answers uncredentialed requests with an
// OAuth discovery challenge pointing at its protected resource metadata
// document.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcpguard/mcpguard/config"
	"github.com/mcpguard/mcpguard/gate"
	"github.com/mcpguard/mcpguard/mcp"
	"github.com/mcpguard/mcpguard/service"
	"github.com/mcpguard/mcpguard/statelesshttp"
	"github.com/mcpguard/mcpguard/transportsec"
	"github.com/mcpguard/mcpguard/wellknown"
)

const version = "0.1.0"

type pingArgs struct{}

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("config.load.fail", slog.String("err", err.Error()))
		os.Exit(1)
	}

	doc := wellknown.ProtectedResourceMetadata{
		Resource:               cfg.PublicEndpoint,
		AuthorizationServers:   cfg.AuthorizationServers(),
		ScopesSupported:        cfg.ScopesSupported(),
		BearerMethodsSupported: []string{"header"},
		ResourceName:           cfg.ServerName,
	}

	ping := service.NewTool[pingArgs](
		"auth_ping",
		func(ctx context.Context, _ pingArgs) (*mcp.CallToolResult, error) {
			return service.TextResult("Authenticated call succeeded."), nil
		},
		service.WithToolTitle("Auth ping"),
		service.WithToolDescription("Returns a confirmation message once authenticated."),
		service.WithToolAnnotations(mcp.ToolAnnotations{ReadOnlyHint: true}),
	)

	svc := service.NewServer(
		service.WithServerInfo(mcp.ImplementationInfo{Name: cfg.ServerName, Version: version}),
		service.WithTools(service.NewToolSet(ping)),
		service.WithLogger(log),
	)

	opts := []statelesshttp.Option{
		statelesshttp.WithLogger(log),
		statelesshttp.WithTransportSecurity(transportsec.Settings{
			AllowedHosts:   cfg.AllowedHostList(),
			AllowedOrigins: cfg.AllowedOriginList(),
		}),
	}
	if cfg.MetricsEnabled {
		opts = append(opts, statelesshttp.WithMetrics())
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, statelesshttp.WithRateLimit(cfg.RateLimit, cfg.RateBurst))
	}

	h, err := statelesshttp.New(
		cfg.PublicEndpoint,
		cfg.MetadataPath,
		doc,
		gate.DefaultChallenge(cfg.ResolvedMetadataURL()),
		svc,
		opts...,
	)
	if err != nil {
		log.Error("handler.new.fail", slog.String("err", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server.shutdown.fail", slog.String("err", err.Error()))
		}
	}()

	log.Info("server.start",
		slog.String("addr", cfg.ListenAddr),
		slog.String("endpoint", cfg.PublicEndpoint),
		slog.String("metadata_path", cfg.MetadataPath),
		slog.Bool("transport_security", len(cfg.AllowedHostList()) > 0 || len(cfg.AllowedOriginList()) > 0),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server.fail", slog.String("err", err.Error()))
		os.Exit(1)
	}
	log.Info("server.stop")
}
