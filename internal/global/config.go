package global

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type OtelConfig struct {
	ServiceName       string `json:"service_name"`
	CollectorEndpoint string `json:"collector_endpoint"`
	Insecure          bool   `json:"insecure"`
}

func LoadOtelConfig(serviceName string) *OtelConfig {
	return &OtelConfig{
		ServiceName:       serviceName,
		CollectorEndpoint: viper.GetString("OTEL_COLLECTOR_ENDPOINT"),
		Insecure:          true,
	}
}

type WorkerConfig struct {
	Timeout         time.Duration `json:"timeout"`
	HealthCheckPort int           `json:"health_check_port"`
	HealthCheckHost string        `json:"health_check_host"`
}

func LoadWorkerConfig() *WorkerConfig {
	viper.SetDefault("WORKER_TIMEOUT", 120*time.Second)
	viper.SetDefault("WORKER_HEALTH_CHECK_PORT", 8081)

	return &WorkerConfig{
		Timeout:         viper.GetDuration("WORKER_TIMEOUT"),
		HealthCheckPort: viper.GetInt("WORKER_HEALTH_CHECK_PORT"),
		HealthCheckHost: viper.GetString("WORKER_HEALTH_CHECK_HOST"),
	}
}

// SpeechKitConfig describes the asynchronous speech recognition service.
type SpeechKitConfig struct {
	APIKey   string `json:"api_key"   validate:"required" mapstructure:"api_key"`
	FolderID string `json:"folder_id" validate:"required" mapstructure:"folder_id"`
	BaseURL  string `json:"base_url"  validate:"required,url" mapstructure:"base_url"`
}

func LoadSpeechKitConfig() *SpeechKitConfig {
	viper.SetDefault("STT_BASE_URL", "https://stt.api.cloud.yandex.net")

	return &SpeechKitConfig{
		APIKey:   viper.GetString("YA_API_KEY"),
		FolderID: viper.GetString("FOLDER_ID"),
		BaseURL:  viper.GetString("STT_BASE_URL"),
	}
}

func (c *SpeechKitConfig) Validate() error {
	if err := Validator.Struct(c); err != nil {
		return fmt.Errorf("invalid SpeechKit configuration: %w", err)
	}
	return nil
}

// DiskConfig describes the public link resolution API.
type DiskConfig struct {
	BaseURL string        `json:"base_url" validate:"required,url" mapstructure:"base_url"`
	Timeout time.Duration `json:"timeout"`
}

func LoadDiskConfig() *DiskConfig {
	viper.SetDefault("DISK_API_BASE_URL", "https://cloud-api.yandex.net")
	viper.SetDefault("DISK_API_TIMEOUT", 10*time.Second)

	return &DiskConfig{
		BaseURL: viper.GetString("DISK_API_BASE_URL"),
		Timeout: viper.GetDuration("DISK_API_TIMEOUT"),
	}
}

type OpenAIConfig struct {
	APIKey  string        `json:"api_key"`
	BaseURL string        `json:"base_url"`
	Model   string        `json:"model"`
	Timeout time.Duration `json:"timeout"`
}

type GeminiConfig struct {
	APIKey  string        `json:"api_key"`
	Model   string        `json:"model"`
	Timeout time.Duration `json:"timeout"`
}

type LLMConfig struct {
	Provider string       `json:"provider" validate:"oneof=openai gemini"`
	OpenAI   OpenAIConfig `json:"openai"`
	Gemini   GeminiConfig `json:"gemini"`
}

func LoadLLMConfig() *LLMConfig {
	viper.SetDefault("LLM_PROVIDER", "openai")
	viper.SetDefault("LLM_TIMEOUT", 90*time.Second)

	return &LLMConfig{
		Provider: viper.GetString("LLM_PROVIDER"),
		OpenAI: OpenAIConfig{
			APIKey:  viper.GetString("OPENAI_API_KEY"),
			BaseURL: viper.GetString("OPENAI_BASE_URL"),
			Model:   viper.GetString("OPENAI_MODEL"),
			Timeout: viper.GetDuration("LLM_TIMEOUT"),
		},
		Gemini: GeminiConfig{
			APIKey:  viper.GetString("GEMINI_API_KEY"),
			Model:   viper.GetString("GEMINI_MODEL"),
			Timeout: viper.GetDuration("LLM_TIMEOUT"),
		},
	}
}

func (c *LLMConfig) Validate() error {
	if err := Validator.Struct(c); err != nil {
		return fmt.Errorf("invalid LLM configuration: %w", err)
	}
	switch c.Provider {
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case "gemini":
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
	}
	return nil
}

// PollerConfig drives the recognition poller schedule.
type PollerConfig struct {
	Interval time.Duration `json:"interval"`
	PageSize int32         `json:"page_size"`
}

func LoadPollerConfig() *PollerConfig {
	viper.SetDefault("POLLER_INTERVAL", time.Minute)
	viper.SetDefault("POLLER_PAGE_SIZE", 100)

	return &PollerConfig{
		Interval: viper.GetDuration("POLLER_INTERVAL"),
		PageSize: viper.GetInt32("POLLER_PAGE_SIZE"),
	}
}

// JanitorConfig drives intermediate-artifact cleanup.
type JanitorConfig struct {
	Retention time.Duration `json:"retention"`
}

func LoadJanitorConfig() *JanitorConfig {
	viper.SetDefault("JANITOR_RETENTION", 7*24*time.Hour)

	return &JanitorConfig{
		Retention: viper.GetDuration("JANITOR_RETENTION"),
	}
}

// IntakeConfig configures the public intake HTTP server.
type IntakeConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	StaticDir       string        `json:"static_dir"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

func LoadIntakeConfig() *IntakeConfig {
	viper.SetDefault("INTAKE_PORT", 8080)
	viper.SetDefault("INTAKE_STATIC_DIR", "./static")
	viper.SetDefault("INTAKE_SHUTDOWN_TIMEOUT", 10*time.Second)

	return &IntakeConfig{
		Host:            viper.GetString("INTAKE_HOST"),
		Port:            viper.GetInt("INTAKE_PORT"),
		StaticDir:       viper.GetString("INTAKE_STATIC_DIR"),
		ShutdownTimeout: viper.GetDuration("INTAKE_SHUTDOWN_TIMEOUT"),
	}
}
