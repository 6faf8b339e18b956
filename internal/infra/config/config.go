// Package config loads runtime configuration through viper.
//
// Precedence, highest first: cobra flags bound with BindFlags, UNROLL_*
// environment variables, the optional unroll.yaml file, then Defaults.
// Every field has a default so the binary runs locally without setup,
// except auth.jwt_secret which serve requires.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable: server.port is read from
// UNROLL_SERVER_PORT.
const EnvPrefix = "UNROLL"

// FileName is the config file searched for in the working directory.
const FileName = "unroll"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	LLM      LLM      `mapstructure:"llm"`
	Agent    Agent    `mapstructure:"agent"`
	Auth     Auth     `mapstructure:"auth"`
	Log      Log      `mapstructure:"log"`
}

type Server struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr is the listen address.
func (s Server) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

type Database struct {
	Driver string `mapstructure:"driver"` // sqlite | postgres
	DSN    string `mapstructure:"dsn"`
}

type LLM struct {
	Provider    string  `mapstructure:"provider"` // ollama | openai | anthropic
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// Agent overrides the agent profile. Zero values keep the profile's.
type Agent struct {
	Profile       string `mapstructure:"profile"`
	MaxToolRounds int    `mapstructure:"max_tool_rounds"`
	HistoryLimit  int    `mapstructure:"history_limit"`
	ParallelTools bool   `mapstructure:"parallel_tools"`
}

type Auth struct {
	JWTSecret      string `mapstructure:"jwt_secret"`
	JWTExpiryHours int    `mapstructure:"jwt_expiry_hours"`
}

// Expiry is the token lifetime.
func (a Auth) Expiry() time.Duration { return time.Duration(a.JWTExpiryHours) * time.Hour }

type Log struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Server:   Server{Host: "127.0.0.1", Port: 8080},
		Database: Database{Driver: "sqlite", DSN: "unroll.db"},
		LLM: LLM{
			Provider:    "ollama",
			BaseURL:     "http://localhost:11434",
			Model:       "llama3.1:8b",
			Temperature: 0.3,
			MaxTokens:   1024,
		},
		Auth: Auth{JWTExpiryHours: 24},
		Log:  Log{Level: "info"},
	}
}

// InitViper returns a viper instance with defaults, the config file and
// environment binding applied. An empty path searches the working
// directory for unroll.yaml and tolerates its absence; an explicit path
// must exist.
func InitViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if path != "" || !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations. Secrets are checked by their
// consumers.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be sqlite or postgres", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	switch c.LLM.Provider {
	case "ollama", "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q must be ollama, openai or anthropic", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %v must be within [0, 2]", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens < 0 || c.Agent.MaxToolRounds < 0 || c.Agent.HistoryLimit < 0 {
		errs = append(errs, errors.New("llm.max_tokens, agent.max_tool_rounds and agent.history_limit must not be negative"))
	}
	if c.Auth.JWTExpiryHours <= 0 {
		errs = append(errs, errors.New("auth.jwt_expiry_hours must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := Defaults()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)

	v.SetDefault("agent.profile", d.Agent.Profile)
	v.SetDefault("agent.max_tool_rounds", d.Agent.MaxToolRounds)
	v.SetDefault("agent.history_limit", d.Agent.HistoryLimit)
	v.SetDefault("agent.parallel_tools", d.Agent.ParallelTools)

	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.jwt_expiry_hours", d.Auth.JWTExpiryHours)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)
}
