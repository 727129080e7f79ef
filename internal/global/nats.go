package global

import (
	"fmt"

	"github.com/evoronina/konspekt/internal/tasks"
	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"
)

// StreamName is the JetStream stream carrying all stage messages.
const StreamName = "TASK"

type NATSConfig struct {
	Host     string `json:"host"     validate:"required" mapstructure:"host"`
	Port     int    `json:"port"     validate:"required" mapstructure:"port"`
	Username string `json:"username"                     mapstructure:"username"`
	Password string `json:"password"                     mapstructure:"password"`
}

func LoadNATSConfig() *NATSConfig {
	viper.SetDefault("NATS_HOST", "localhost")
	viper.SetDefault("NATS_PORT", 4222)

	return &NATSConfig{
		Host:     viper.GetString("NATS_HOST"),
		Port:     viper.GetInt("NATS_PORT"),
		Username: viper.GetString("NATS_USER"),
		Password: viper.GetString("NATS_PASSWORD"),
	}
}

func (c *NATSConfig) URL() string {
	return fmt.Sprintf("nats://%s:%d", c.Host, c.Port)
}

func (c *NATSConfig) Validate() error {
	if err := Validator.Struct(c); err != nil {
		return fmt.Errorf("invalid NATS configuration: %w", err)
	}
	return nil
}

// Connect establishes the NATS connection described by the config.
func (c *NATSConfig) Connect() (*nats.Conn, error) {
	opts := []nats.Option{nats.Name("konspekt")}
	if c.Username != "" {
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}

	nc, err := nats.Connect(c.URL(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS server at %s: %w", c.URL(), err)
	}
	return nc, nil
}

// EnsureTaskStream creates the TASK stream if it does not exist yet. Stage
// messages survive worker restarts; consumers pull with explicit acks.
func EnsureTaskStream(js nats.JetStreamContext) error {
	_, err := js.StreamInfo(StreamName)
	if err == nil {
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return fmt.Errorf("failed to look up stream %s: %w", StreamName, err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{tasks.StreamSubjects},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", StreamName, err)
	}
	return nil
}
