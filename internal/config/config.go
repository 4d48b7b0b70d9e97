// Package config loads the bridge configuration from a TOML file with
// environment-independent defaults.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8080"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "postgres"
	DefaultPGDatabase   = "chatbridge"
	DefaultPGSSLMode    = "disable"
	DefaultEdnaBaseURL  = "https://app.edna.ru"
	DefaultAmojoBaseURL = "https://amojo.amocrm.ru"
	DefaultSourceName   = "TeMa Edna"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Storage  StorageConfig  `toml:"storage"`
	Postgres PostgresConfig `toml:"postgres"`
	Edna     EdnaConfig     `toml:"edna"`
	AmoCRM   AmoCRMConfig   `toml:"amocrm"`
	Route    RouteConfig    `toml:"route"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `toml:"format" validate:"omitempty,oneof=text json"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// StorageConfig selects where identity links are persisted.
type StorageConfig struct {
	Driver string `toml:"driver" validate:"oneof=memory postgres"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port" validate:"gte=0,lte=65535"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// EdnaConfig holds the edna gateway credentials and callback registration.
type EdnaConfig struct {
	APIKey               string `toml:"api_key"`
	BaseURL              string `toml:"base_url" validate:"omitempty,url"`
	IMType               string `toml:"im_type"`
	SendPath             string `toml:"send_path"`
	CallbackPath         string `toml:"callback_path"`
	SubjectID            int64  `toml:"subject_id"`
	StatusCallbackURL    string `toml:"status_callback_url" validate:"omitempty,url"`
	InMessageCallbackURL string `toml:"in_message_callback_url" validate:"omitempty,url"`
	MatcherCallbackURL   string `toml:"matcher_callback_url" validate:"omitempty,url"`
	WebhookToken         string `toml:"webhook_token"`
}

// AmoCRMConfig holds both the amojo chat-channel credentials and the REST v4
// access token.
type AmoCRMConfig struct {
	BaseURL          string `toml:"base_url" validate:"omitempty,url"`
	Token            string `toml:"token"`
	AmojoBaseURL     string `toml:"amojo_base_url" validate:"omitempty,url"`
	ScopeID          string `toml:"scope_id"`
	ChannelID        string `toml:"channel_id"`
	AccountID        string `toml:"account_id"`
	ChannelSecret    string `toml:"channel_secret"`
	ConnectTitle     string `toml:"connect_title"`
	HookAPIVersion   string `toml:"hook_api_version"`
	SourceName       string `toml:"source_name"`
	SourcePipelineID int64  `toml:"source_pipeline_id"`
	SourceExternalID string `toml:"source_external_id"`
	AutoCreateChats  bool   `toml:"auto_create_chats"`
}

// RouteConfig tunes the routing core.
type RouteConfig struct {
	EnrichDelaySeconds int `toml:"enrich_delay_seconds" validate:"gte=0"`
}

// Load reads the TOML config at path, falling back to defaults when the file
// does not exist, and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Storage: StorageConfig{
			Driver: "memory",
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Edna: EdnaConfig{
			BaseURL:      DefaultEdnaBaseURL,
			IMType:       "whatsapp",
			SendPath:     "/api/messages/send",
			CallbackPath: "/api/callback/set",
		},
		AmoCRM: AmoCRMConfig{
			AmojoBaseURL:    DefaultAmojoBaseURL,
			ConnectTitle:    "Integration Channel",
			HookAPIVersion:  "v2",
			SourceName:      DefaultSourceName,
			AutoCreateChats: true,
		},
		Route: RouteConfig{
			EnrichDelaySeconds: 5,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, validate(cfg)
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, validate(cfg)
}

func validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
