package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath       = "config.toml"
	DefaultHTTPAddr         = ":8080"
	DefaultJWTExpiresIn     = "24h"
	DefaultPGHost           = "127.0.0.1"
	DefaultPGPort           = 5432
	DefaultPGUser           = "postgres"
	DefaultPGDatabase       = "deskbridge"
	DefaultPGSSLMode        = "disable"
	DefaultTrustTTLSeconds  = 60
	DefaultTrustRefreshSpec = "@every 5m"
	DefaultWebhookTimeout   = 10
	DefaultAssistantTimeout = 120
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Trust     TrustConfig     `toml:"trust"`
	Webhook   WebhookConfig   `toml:"webhook"`
	Assistant AssistantConfig `toml:"assistant"`
	WhatsApp  WhatsAppConfig  `toml:"whatsapp"`
	Jira      JiraConfig      `toml:"jira"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host" validate:"required"`
	Port     int    `toml:"port" validate:"gt=0,lte=65535"`
	User     string `toml:"user" validate:"required"`
	Password string `toml:"password"`
	Database string `toml:"database" validate:"required"`
	SSLMode  string `toml:"sslmode"`
}

// TrustConfig drives the trusted-origin cache. BaseOrigins are always
// allowed regardless of what tenants have approved in storage.
type TrustConfig struct {
	BaseOrigins           []string `toml:"base_origins"`
	TTLSeconds            int      `toml:"ttl_seconds" validate:"gte=0"`
	RefreshTimeoutSeconds int      `toml:"refresh_timeout_seconds" validate:"gte=0"`
	RefreshSpec           string   `toml:"refresh_spec"`
}

type WebhookConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds" validate:"gt=0"`
}

type AssistantConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"gt=0"`

	// GenericAssistantID answers conversations not yet bound to a service.
	GenericAssistantID string `toml:"generic_assistant_id"`
}

type WhatsAppConfig struct {
	VerifyToken string `toml:"verify_token"`
	APIBaseURL  string `toml:"api_base_url"`
	AccessToken string `toml:"access_token"`
	PhoneID     string `toml:"phone_id"`
}

type JiraConfig struct {
	BaseURL  string `toml:"base_url"`
	Email    string `toml:"email"`
	APIToken string `toml:"api_token"`

	// BotAccount is the integration's own account name; its comments are
	// ignored by the comment webhook.
	BotAccount string `toml:"bot_account"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Trust: TrustConfig{
			TTLSeconds:  DefaultTrustTTLSeconds,
			RefreshSpec: DefaultTrustRefreshSpec,
		},
		Webhook: WebhookConfig{
			TimeoutSeconds: DefaultWebhookTimeout,
		},
		Assistant: AssistantConfig{
			TimeoutSeconds: DefaultAssistantTimeout,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks structural constraints on loaded values.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
