package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/evoronina/konspekt/internal/global"
	"github.com/evoronina/konspekt/internal/storage"
	"github.com/evoronina/konspekt/internal/stt"
	"github.com/evoronina/konspekt/internal/workers"
	"github.com/evoronina/konspekt/internal/workers/subscribers"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
)

func main() {
	var envFile string
	pflag.StringVarP(&envFile, "env", "e", ".env", "path to the dotenv configuration file")
	pflag.Parse()

	global.Logger = global.InitBaseLogger()
	logger := global.Logger.With().Str("binary", "recognize-worker").Logger()

	if err := global.ReadDotEnvFile(envFile, "env", []string{"."}); err != nil {
		logger.Warn().
			Err(err).
			Msg("No dotenv file found, relying on environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := global.InitTraceProvider(ctx, global.LoadOtelConfig("konspekt-recognize-worker"))
	if err != nil {
		logger.Warn().Err(err).Msg("Tracing disabled")
	} else {
		defer shutdown(context.Background())
	}
	tracer := otel.Tracer("workers/recognize")

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

	sttCfg := global.LoadSpeechKitConfig()
	if err := sttCfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid SpeechKit configuration")
	}
	sttCli, err := stt.New(
		stt.WithAPIKey(sttCfg.APIKey),
		stt.WithFolderID(sttCfg.FolderID),
		stt.WithBaseURL(sttCfg.BaseURL),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create speech recognition client")
	}

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

	worker, err := subscribers.NewRecognizeWorker(nc, logger, tracer,
		&store, sttCli, s3Cfg.PublicObjectURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create recognize worker")
	}

	workerCfg := global.LoadWorkerConfig()
	runner, err := workers.NewRunner(nc, logger, tracer, worker, store.Task(),
		workers.WithTimeout(workerCfg.Timeout),
		workers.WithHealthCheckPort(workerCfg.HealthCheckPort),
		workers.WithHealthCheckHost(workerCfg.HealthCheckHost),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create worker runner")
	}

	logger.Info().Msg("Starting recognize worker...")
	if err := runner.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Recognize worker stopped with error")
	}
	logger.Info().Msg("Recognize worker shut down gracefully")
}
