// Command recaptcha-verify serves token verification over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	glog "github.com/goliatone/go-logger/glog"
	recaptcha "github.com/goliatone/go-recaptcha"
	"github.com/goliatone/go-recaptcha/adapters/gologger"
	recaptchaprom "github.com/goliatone/go-recaptcha/adapters/prometheus"
	rcommand "github.com/goliatone/go-recaptcha/command"
	"github.com/goliatone/go-recaptcha/core"
	"github.com/goliatone/go-recaptcha/security"
	"github.com/goliatone/go-recaptcha/store/cache"
	sqlstore "github.com/goliatone/go-recaptcha/store/sql"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := loadSettings(context.Background(), envSettingsLoader{})
	if err != nil {
		_, logger := gologger.ResolveOrZerolog("recaptcha-verify", nil, nil, gologger.ZerologConfig{})
		logger.Fatal("invalid settings", "error", err.Error())
		return
	}

	provider, logger := gologger.ResolveOrZerolog("recaptcha-verify", nil, nil, gologger.ZerologConfig{
		Level:   cfg.LogLevel,
		Service: "recaptcha-verify",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, provider, logger); err != nil {
		logger.Error("recaptcha-verify stopped", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg settings, provider glog.LoggerProvider, logger glog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []recaptcha.Option{
		recaptcha.WithConfigProvider(core.NewCfgxConfigProvider(core.EnvConfigLoader{})),
		recaptcha.WithLoggerProvider(provider),
		recaptcha.WithLogger(logger),
		recaptcha.WithMetricsRecorder(recaptchaprom.NewRecorder(registry)),
		recaptcha.WithSecretResolver(secretResolver(cfg, logger)),
	}

	var log *sqlstore.VerificationLogStore
	if cfg.DBDriver != "" {
		client, err := sqlstore.OpenPersistence(sqlstore.DBConfig{
			Driver: cfg.DBDriver,
			DSN:    cfg.DBDSN,
			Debug:  cfg.DBDebug,
		})
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.Migrate(ctx); err != nil {
			return err
		}
		log, err = sqlstore.NewVerificationLogStoreFromPersistence(client)
		if err != nil {
			return err
		}
		opts = append(opts, recaptcha.WithVerificationRecorder(log))
		logger.Info("verification audit log enabled", "driver", cfg.DBDriver)
	}

	if cfg.CacheTTL > 0 {
		resultCache, err := cache.NewMemoryResultCache(cfg.CacheTTL)
		if err != nil {
			return err
		}
		opts = append(opts, recaptcha.WithResultCache(resultCache))
	}

	verifier, err := recaptcha.New(recaptcha.Config{}, opts...)
	if err != nil {
		return err
	}
	facade, err := recaptcha.NewFacade(verifier)
	if err != nil {
		return err
	}

	if log != nil && cfg.RetainFor > 0 {
		go pruneLoop(ctx, facade.Commands().PruneVerifications, cfg, logger)
	}

	srv := &server{
		facade:          facade,
		logger:          logger,
		metrics:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		rateLimit:       cfg.RateLimit,
		rateWindow:      cfg.RateWindow,
		protectedAction: cfg.ProtectedAction,
	}
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "transport", verifier.Config().Transport)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}

// secretResolver handles env:, vault: and sealed secret references. Vault and
// sealed references are only available when their settings are present.
func secretResolver(cfg settings, logger glog.Logger) core.SecretResolver {
	chain := security.ChainSecretResolver{}
	if reader, err := security.NewVaultKVReaderFromEnv(); err == nil {
		chain.Vault = security.NewVaultKVResolver(reader)
	}
	if cfg.AppKey != "" {
		sealer, err := security.NewAppKeySealerFromString(cfg.AppKey)
		if err != nil {
			logger.Warn("ignoring invalid app key", "error", err.Error())
		} else {
			chain.Sealed = security.NewSealedSecretResolver(sealer)
		}
	}
	return chain
}

func pruneLoop(ctx context.Context, prune *rcommand.PruneVerificationsCommand, cfg settings, logger glog.Logger) {
	if prune == nil || cfg.PruneEvery <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.PruneEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := prune.Execute(ctx, rcommand.PruneVerificationsMessage{OlderThan: cfg.RetainFor}); err != nil {
				logger.Error("prune verifications failed", "error", err.Error())
			}
		}
	}
}
