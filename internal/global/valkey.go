package global

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// ValkeyConfig describes the transcript cache. The cache is a best-effort
// fast path; every consumer falls back to object storage on a miss.
type ValkeyConfig struct {
	Host     string `json:"host" validate:"required" mapstructure:"host"`
	Port     int    `json:"port" validate:"required" mapstructure:"port"`
	Password string `json:"password"                 mapstructure:"password"`
	DB       int    `json:"db"                       mapstructure:"db"`
}

func LoadValkeyConfig() *ValkeyConfig {
	viper.SetDefault("VALKEY_HOST", "localhost")
	viper.SetDefault("VALKEY_PORT", 6379)
	viper.SetDefault("VALKEY_DB", 0)

	return &ValkeyConfig{
		Host:     viper.GetString("VALKEY_HOST"),
		Port:     viper.GetInt("VALKEY_PORT"),
		Password: viper.GetString("VALKEY_PASSWORD"),
		DB:       viper.GetInt("VALKEY_DB"),
	}
}

func (c *ValkeyConfig) Validate() error {
	if err := Validator.Struct(c); err != nil {
		return fmt.Errorf("invalid Valkey configuration: %w", err)
	}
	return nil
}

// Client builds a go-redis client for the configured Valkey instance.
func (c *ValkeyConfig) Client() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Password: c.Password,
		DB:       c.DB,
	})
}
