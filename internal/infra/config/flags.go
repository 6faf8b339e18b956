package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag describes a CLI flag bound to a config key. Commands refer to flags
// by registry key so the same flag cannot drift between commands.
type Flag struct {
	Name        string
	Shorthand   string
	ViperKey    string
	Description string
}

// Flag registry keys.
const (
	FlagHost     = "host"
	FlagPort     = "port"
	FlagDriver   = "db-driver"
	FlagDSN      = "dsn"
	FlagProvider = "provider"
	FlagModel    = "model"
	FlagBaseURL  = "base-url"
	FlagProfile  = "profile"
	FlagLogLevel = "log-level"
	FlagLogJSON  = "log-json"
)

// Flags is the registry of every flag bound to a config key.
var Flags = map[string]Flag{
	FlagHost:     {Name: "host", ViperKey: "server.host", Description: "Address to listen on"},
	FlagPort:     {Name: "port", Shorthand: "p", ViperKey: "server.port", Description: "Port to listen on"},
	FlagDriver:   {Name: "db-driver", ViperKey: "database.driver", Description: "Database driver (sqlite or postgres)"},
	FlagDSN:      {Name: "dsn", ViperKey: "database.dsn", Description: "SQLite path or PostgreSQL connection string"},
	FlagProvider: {Name: "provider", ViperKey: "llm.provider", Description: "Model provider (ollama, openai or anthropic)"},
	FlagModel:    {Name: "model", Shorthand: "m", ViperKey: "llm.model", Description: "Model name"},
	FlagBaseURL:  {Name: "base-url", ViperKey: "llm.base_url", Description: "Model provider base URL"},
	FlagProfile:  {Name: "profile", ViperKey: "agent.profile", Description: "Path to an agent profile YAML file"},
	FlagLogLevel: {Name: "log-level", ViperKey: "log.level", Description: "Log level (debug, info, warn, error)"},
	FlagLogJSON:  {Name: "log-json", ViperKey: "log.json", Description: "Emit JSON logs"},
}

// AddFlags registers the named flags on cmd with their defaults. Unknown
// keys are skipped.
func AddFlags(cmd *cobra.Command, keys ...string) {
	d := viper.New()
	setDefaults(d)

	for _, key := range keys {
		f, ok := Flags[key]
		if !ok {
			continue
		}
		switch d.Get(f.ViperKey).(type) {
		case int:
			cmd.Flags().IntP(f.Name, f.Shorthand, d.GetInt(f.ViperKey), f.Description)
		case bool:
			cmd.Flags().BoolP(f.Name, f.Shorthand, d.GetBool(f.ViperKey), f.Description)
		default:
			cmd.Flags().StringP(f.Name, f.Shorthand, d.GetString(f.ViperKey), f.Description)
		}
	}
}

// BindFlags connects the flags registered on cmd to v, so a flag the user
// set wins over env, file and default. Call it after InitViper.
func BindFlags(v *viper.Viper, cmd *cobra.Command) {
	for _, f := range Flags {
		pf := cmd.Flags().Lookup(f.Name)
		if pf == nil {
			continue
		}
		_ = v.BindPFlag(f.ViperKey, pf)
	}
}
