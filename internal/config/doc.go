// Package config handles configuration loading, saving, and schema definition.
package config

import "github.com/go-playground/validator/v10"

// Config is the top-level relaydesk configuration.
// Uses json tags in camelCase to match the JSON config file format.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Memory     MemoryConfig     `json:"memory"`
	Redis      RedisConfig      `json:"redis"`
	Durable    DurableConfig    `json:"durable"`
	Recall     RecallConfig     `json:"recall"`
	Pipeline   PipelineConfig   `json:"pipeline"`
	Transcribe TranscribeConfig `json:"transcribe"`
	Channel    ChannelConfig    `json:"channel"`
}

// ServerConfig holds the widget websocket server settings.
type ServerConfig struct {
	Host             string `json:"host"`
	Port             int    `json:"port" validate:"gte=0,lte=65535"`
	SweepIntervalSec int    `json:"sweepIntervalSec" validate:"gte=0"`
}

// MemoryConfig holds the context manager settings.
type MemoryConfig struct {
	// Window is the maximum number of recent turns kept per session.
	Window int `json:"window" validate:"gte=0"`
	// TTLHours is the fast-cache entry lifetime from last write.
	TTLHours int `json:"ttlHours" validate:"gte=0"`
	// CacheDriver selects the fast cache backend.
	CacheDriver string `json:"cacheDriver" validate:"omitempty,oneof=memory redis"`
}

// RedisConfig holds Redis connection settings for the redis cache driver.
type RedisConfig struct {
	URL      string `json:"url"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// DurableConfig holds the memory-engine service settings.
type DurableConfig struct {
	BaseURL    string `json:"baseUrl" validate:"omitempty,url"`
	APIKey     string `json:"apiKey,omitempty"`
	TimeoutSec int    `json:"timeoutSec" validate:"gte=0"`
}

// RecallConfig holds long-term semantic recall settings.
type RecallConfig struct {
	Enabled          bool    `json:"enabled"`
	QdrantURL        string  `json:"qdrantUrl,omitempty"`
	QdrantAPIKey     string  `json:"qdrantApiKey,omitempty"`
	Collection       string  `json:"collection,omitempty"`
	Dimensions       int     `json:"dimensions,omitempty" validate:"gte=0"`
	MinScore         float32 `json:"minScore,omitempty"`
	EmbeddingAPIKey  string  `json:"embeddingApiKey,omitempty"`
	EmbeddingAPIBase string  `json:"embeddingApiBase,omitempty"`
	EmbeddingModel   string  `json:"embeddingModel,omitempty"`
}

// PipelineConfig holds the processing pipeline endpoint settings.
type PipelineConfig struct {
	Endpoint   string `json:"endpoint" validate:"omitempty,url"`
	APIKey     string `json:"apiKey,omitempty"`
	TimeoutSec int    `json:"timeoutSec" validate:"gte=0"`
}

// TranscribeConfig holds the transcription endpoint settings.
type TranscribeConfig struct {
	Endpoint   string `json:"endpoint" validate:"omitempty,url"`
	APIKey     string `json:"apiKey,omitempty"`
	TimeoutSec int    `json:"timeoutSec" validate:"gte=0"`
}

// ChannelConfig holds per-channel settings. A nil entry disables the channel.
type ChannelConfig struct {
	Widget    *WidgetConfig    `json:"widget,omitempty"`
	Messaging *MessagingConfig `json:"messaging,omitempty"`
	Email     *EmailConfig     `json:"email,omitempty"`
}

// WidgetConfig holds web chat widget settings.
type WidgetConfig struct {
	Enabled bool `json:"enabled"`
}

// MessagingConfig holds messaging-app channel settings.
type MessagingConfig struct {
	Endpoint  string   `json:"endpoint" validate:"omitempty,url"`
	Token     string   `json:"token,omitempty"`
	AllowFrom []string `json:"allowFrom,omitempty"`
}

// EmailConfig holds email channel settings.
type EmailConfig struct {
	SMTPEndpoint string   `json:"smtpEndpoint,omitempty"`
	FromAddress  string   `json:"fromAddress,omitempty"`
	AllowFrom    []string `json:"allowFrom,omitempty"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             18800,
			SweepIntervalSec: 60,
		},
		Memory: MemoryConfig{
			Window:      10,
			TTLHours:    24,
			CacheDriver: "memory",
		},
		Durable:    DurableConfig{TimeoutSec: 3},
		Pipeline:   PipelineConfig{TimeoutSec: 30},
		Transcribe: TranscribeConfig{TimeoutSec: 60},
		Channel: ChannelConfig{
			Widget: &WidgetConfig{Enabled: true},
		},
	}
}

var validate = validator.New()

// Validate checks the loaded configuration against its schema constraints.
func (c *Config) Validate() error {
	return validate.Struct(c)
}
