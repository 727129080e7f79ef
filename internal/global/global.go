// Package global provides centralized initialization and configuration for core services.
package global

import (
	"os"

	"github.com/evoronina/konspekt/pkgs/utils"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Logger is the base zerolog logger. Binaries call InitBaseLogger in main
// and pass (sub-)loggers into the components they construct; no component
// reaches for this variable at request time.
var Logger zerolog.Logger

// Validator validates config structs and incoming form requests.
var Validator = validator.New()

// mode indicates the current running mode (e.g., "dev", "prod").
var mode string

// SetMode sets the current running mode (e.g., "dev", "prod").
func SetMode(m string) {
	mode = m
}

// Mode returns the current running mode (e.g., "dev", "prod").
func Mode() string {
	return utils.DefaultIfZero(mode, "dev")
}

// ReadDotEnvFile reads a dotfile configuration using Viper.
func ReadDotEnvFile(fname, ftype string, fpath []string) error {
	viper.SetConfigName(fname)
	viper.SetConfigType(ftype)
	for _, p := range fpath {
		viper.AddConfigPath(p)
	}
	viper.AutomaticEnv()
	return viper.ReadInConfig()
}

// InitBaseLogger initializes the base logger for the application.
func InitBaseLogger() zerolog.Logger {
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	logger = logger.Level(utils.IfElse(
		Mode() == "dev",
		zerolog.DebugLevel,
		zerolog.InfoLevel))

	logger.Info().
		Str("mode", Mode()).
		Str("log_level", logger.GetLevel().String()).
		Msg("Base Logger Initialized")
	return logger
}
