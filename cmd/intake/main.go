package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/evoronina/konspekt/internal/global"
	"github.com/evoronina/konspekt/internal/router"
	"github.com/evoronina/konspekt/internal/storage"
	"github.com/evoronina/konspekt/internal/workers/publishers"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
)

func main() {
	var envFile string
	pflag.StringVarP(&envFile, "env", "e", ".env", "path to the dotenv configuration file")
	pflag.Parse()

	global.Logger = global.InitBaseLogger()
	logger := global.Logger.With().Str("binary", "intake").Logger()

	if err := global.ReadDotEnvFile(envFile, "env", []string{"."}); err != nil {
		logger.Warn().
			Err(err).
			Msg("No dotenv file found, relying on environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := global.InitTraceProvider(ctx, global.LoadOtelConfig("konspekt-intake"))
	if err != nil {
		logger.Warn().Err(err).Msg("Tracing disabled")
	} else {
		defer shutdown(context.Background())
	}
	tracer := otel.Tracer("intake")

	pgCfg := global.LoadPostgresConfig()
	if err := pgCfg.ReadPasswordFile(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to read Postgres password file")
	}
	if err := pgCfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid Postgres configuration")
	}
	pool, err := pgCfg.Pool(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}
	defer pool.Close()

	s3Cfg := global.LoadS3Config()
	if err := s3Cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid S3 configuration")
	}
	s3Cli, err := s3Cfg.Client(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build S3 client")
	}
	store := storage.New(pool, s3Cli, s3Cfg.Bucket)

	natsCfg := global.LoadNATSConfig()
	if err := natsCfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid NATS configuration")
	}
	nc, err := natsCfg.Connect()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer nc.Drain()

	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create JetStream context")
	}
	if err := global.EnsureTaskStream(js); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ensure task stream")
	}

	cfg := global.LoadIntakeConfig()
	repo := router.NewRepo(store,
		publishers.NewPublisher("intake", nc, logger, tracer),
		logger, tracer, global.Validator)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: router.New(repo, cfg.StaticDir),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Starting intake server...")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Intake server stopped with error")
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown of intake server")
		}
	}
	logger.Info().Msg("Intake server shut down gracefully")
}
