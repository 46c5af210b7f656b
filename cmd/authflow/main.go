// Command authflow serves the registration, login and password recovery API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/balancebuddy/authflow"
	"github.com/balancebuddy/authflow/internal/config"
	"github.com/balancebuddy/authflow/internal/httpapi"
	"github.com/balancebuddy/authflow/internal/mailer"
	"github.com/balancebuddy/authflow/internal/userstore/memory"
	"github.com/balancebuddy/authflow/internal/userstore/postgres"
	otelexport "github.com/balancebuddy/authflow/metrics/export/otel"
	promexport "github.com/balancebuddy/authflow/metrics/export/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet.
		_, _ = os.Stderr.WriteString("authflow: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		_, _ = os.Stderr.WriteString("authflow: logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg config.Config, logger *zap.Logger) error {
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	if !cfg.DotEnvLoaded {
		logger.Debug("no .env file found, relying on environment")
	}
	for _, w := range cfg.Engine.Lint() {
		logger.Warn("config lint", zap.String("code", w.Code), zap.String("message", w.Message))
	}

	var (
		users authflow.UserStore
		ready func(context.Context) error
	)
	if cfg.DatabaseURL != "" {
		pg, err := postgres.NewStore(rootCtx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(rootCtx); err != nil {
			return err
		}
		users = pg
		ready = pg.Ping
		logger.Info("using postgres user store")
	} else {
		users = memory.NewStore()
		logger.Warn("DATABASE_URL not set, using in-memory user store")
	}

	var notifier authflow.Notifier
	if cfg.SMTPEnabled() {
		smtp, err := mailer.NewSMTPNotifier(cfg.SMTP)
		if err != nil {
			return err
		}
		notifier = smtp
		logger.Info("using smtp notifier", zap.String("host", cfg.SMTP.Host), zap.Int("port", cfg.SMTP.Port))
	} else {
		notifier = mailer.NewLogNotifier(logger)
		logger.Warn("EMAIL_HOST not set, emails are logged instead of sent")
	}

	var auditSink authflow.AuditSink = authflow.NewZapSink(logger)
	if cfg.AuditLogPath != "" {
		f, err := os.OpenFile(cfg.AuditLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		auditSink = authflow.MultiSink{auditSink, authflow.NewJSONWriterSink(f)}
		logger.Info("writing audit events", zap.String("path", cfg.AuditLogPath))
	}

	builder := authflow.New().
		WithConfig(cfg.Engine).
		WithUserStore(users).
		WithNotifier(notifier).
		WithAuditSink(auditSink)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return err
		}
		builder = builder.WithRedis(rdb)
		logger.Info("using redis for codes and rate limits", zap.String("addr", cfg.RedisAddr))
	} else {
		logger.Warn("REDIS_ADDR not set, codes are held in memory and rate limits are off")
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	otelExporter, err := otelexport.NewExporter(otel.GetMeterProvider().Meter("github.com/balancebuddy/authflow"), engine)
	if err != nil {
		return err
	}
	defer func() { _ = otelExporter.Close() }()

	go runResetSweep(rootCtx, engine, logger)

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Options{
			Service:           engine,
			Logger:            logger,
			CORSOrigins:       cfg.CORSOrigins,
			Metrics:           promexport.NewExporter(engine).Handler(),
			Ready:             ready,
			TrustProxyHeaders: cfg.TrustProxyHeaders,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("authflow listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.Env))
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-stop:
		logger.Info("shutdown requested", zap.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	cancelRoot()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	return serveErr
}

// runResetSweep clears expired reset tokens on the configured interval until
// ctx is done. A zero interval disables it.
func runResetSweep(ctx context.Context, engine *authflow.Engine, logger *zap.Logger) {
	interval := engine.ResetSweepInterval()
	if interval <= 0 {
		logger.Info("reset token sweep disabled")
		return
	}

	runOnce := func() {
		ctxPurge, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		n, err := engine.PurgeExpiredResetTokens(ctxPurge)
		if err != nil {
			logger.Error("reset token sweep failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("reset token sweep", zap.Int("purged", n))
		}
	}

	runOnce()

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			runOnce()
		}
	}
}
