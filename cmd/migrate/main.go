package main

import (
	"errors"
	"os"

	"github.com/evoronina/konspekt/internal/global"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	var step int
	pflag.IntVarP(&step, "step", "s", 0, "steps looks at the currently active migration version. It will migrate up if n > 0, and down if n < 0.")
	pflag.Parse()

	global.Logger = global.InitBaseLogger()

	if err := global.ReadDotEnvFile(".env", "env", []string{"."}); err != nil {
		global.Logger.Warn().
			Err(err).
			Msg("No dotenv file found, relying on environment variables")
	}

	config := global.LoadPostgresConfig()
	if err := config.ReadPasswordFile(); err != nil {
		global.Logger.
			Err(err).
			Msg("Failed to read password file")
		os.Exit(1)
	}

	viper.SetDefault("MIGRATIONS_PATH", "./migrations")
	srcURL := "file://" + viper.GetString("MIGRATIONS_PATH")
	global.Logger.Debug().
		Str("src_url", srcURL).
		Str("dst_url", config.URLString()).
		Msg("Migration paths loaded")

	m, err := global.Migrate(srcURL, config.URL())
	if err != nil {
		global.Logger.
			Err(err).
			Msg("Failed to create migration instance")
		os.Exit(1)
	}

	if step == 0 {
		global.Logger.Info().
			Msg("No step specified, running migrations up to latest version")
		err = m.Up()
	} else {
		global.Logger.Info().
			Int("step", step).
			Msgf("Running migrations %d steps", step)
		err = m.Steps(step)
	}

	if err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			global.Logger.
				Err(err).
				Msg("Failed to apply migrations")
			os.Exit(1)
		}
		global.Logger.Debug().Msg("No new migrations to apply")
		return
	}
	global.Logger.Debug().Msg("Migrations applied successfully")
}
