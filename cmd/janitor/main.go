package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/evoronina/konspekt/internal/global"
	"github.com/evoronina/konspekt/internal/janitor"
	"github.com/evoronina/konspekt/internal/storage"
	"github.com/spf13/pflag"
)

// One-shot sweep of expired intermediate artifacts. Runs from cron or a
// scheduled container; finished documents are never touched.
func main() {
	var envFile string
	pflag.StringVarP(&envFile, "env", "e", ".env", "path to the dotenv configuration file")
	pflag.Parse()

	global.Logger = global.InitBaseLogger()
	logger := global.Logger.With().Str("binary", "janitor").Logger()

	if err := global.ReadDotEnvFile(envFile, "env", []string{"."}); err != nil {
		logger.Warn().
			Err(err).
			Msg("No dotenv file found, relying on environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s3Cfg := global.LoadS3Config()
	if err := s3Cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid S3 configuration")
	}
	s3Cli, err := s3Cfg.Client(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build S3 client")
	}
	store := storage.New(nil, s3Cli, s3Cfg.Bucket)

	cfg := global.LoadJanitorConfig()
	j := janitor.New(&store, logger, janitor.WithRetention(cfg.Retention))

	removed, err := j.Sweep(ctx)
	if err != nil {
		logger.Error().
			Err(err).
			Int("removed", removed).
			Msg("Sweep finished with errors")
		os.Exit(1)
	}
	logger.Info().Int("removed", removed).Msg("Sweep finished")
}
