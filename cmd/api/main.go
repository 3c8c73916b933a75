package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civium.org/internal/audit"
	"civium.org/internal/httpapi"
	"civium.org/internal/obs"
	"civium.org/internal/ratelimit"
	"civium.org/internal/store/pg"
	"civium.org/internal/token"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

// devFallbackSecret keeps local setups running without configuration. It
// must never reach production; startup logs a warning when it is in use.
const devFallbackSecret = "civium-dev-secret-do-not-use-in-production"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	production := os.Getenv("CIVIUM_ENV") == "production"

	secret := os.Getenv("CIVIUM_AUTH_SECRET")
	if secret == "" {
		if production {
			obs.Error("CIVIUM_AUTH_SECRET is required in production", nil)
			os.Exit(1)
		}
		secret = devFallbackSecret
		obs.Warn("CIVIUM_AUTH_SECRET not set, using insecure development fallback", nil)
	}

	tokenOpts := []token.Option{}
	if issuer := os.Getenv("CIVIUM_AUTH_ISSUER"); issuer != "" {
		tokenOpts = append(tokenOpts, token.WithIssuer(issuer))
	}
	if ttl := durationEnv("CIVIUM_ACCESS_TTL"); ttl > 0 {
		tokenOpts = append(tokenOpts, token.WithAccessTTL(ttl))
	}
	if ttl := durationEnv("CIVIUM_REFRESH_TTL"); ttl > 0 {
		tokenOpts = append(tokenOpts, token.WithRefreshTTL(ttl))
	}
	tokens, err := token.NewManager([]byte(secret), tokenOpts...)
	if err != nil {
		obs.Error("token manager init failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	var (
		store   *pg.Store
		sink    audit.Sink
		reader  httpapi.AuditReader
		readyDB httpapi.ReadyProbe
	)
	dsn := os.Getenv("CIVIUM_PG_DSN")
	if dsn == "" {
		obs.Error("CIVIUM_PG_DSN is required", nil)
		os.Exit(1)
	}
	store, err = pg.Open(dsn)
	if err != nil {
		obs.Error("open postgres failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer store.Close()
	sink = store
	reader = store
	readyDB = httpapi.ReadyProbe{DB: store.DB()}

	recorder := audit.NewRecorder(sink)

	limiter := ratelimit.New(time.Minute)
	defer limiter.Close()

	api := httpapi.New(httpapi.Config{
		Store:      store,
		Tokens:     tokens,
		Recorder:   recorder,
		AuditLog:   reader,
		Limiter:    limiter,
		ReadyProbe: readyDB,
		Version:    version,
		Production: production,
	})

	addr := os.Getenv("CIVIUM_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	obs.Info("starting civium-api", map[string]any{"version": version, "addr": addr})

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obs.Error("listen failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	obs.Info("shutting down", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	obs.Info("stopped", nil)
}

func durationEnv(name string) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		obs.Warn("invalid duration, ignoring", map[string]any{"var": name, "value": raw})
		return 0
	}
	return d
}
