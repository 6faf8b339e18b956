package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/unroll-ai/unroll/internal/domain/agent"
	"github.com/unroll-ai/unroll/internal/domain/chat"
	"github.com/unroll-ai/unroll/internal/domain/conversation"
	"github.com/unroll-ai/unroll/internal/domain/scope"
	"github.com/unroll-ai/unroll/internal/domain/tool"
	"github.com/unroll-ai/unroll/internal/infra/config"
	"github.com/unroll-ai/unroll/internal/infra/eventbus"
	"github.com/unroll-ai/unroll/internal/infra/llm"
	"github.com/unroll-ai/unroll/internal/infra/logging"
	"github.com/unroll-ai/unroll/internal/infra/postgres"
	"github.com/unroll-ai/unroll/internal/infra/sqldb"
	"github.com/unroll-ai/unroll/internal/infra/sqlite"
)

const flagConfig = "config"

// storageFlags are registered on every command that opens the database.
var storageFlags = []string{config.FlagDriver, config.FlagDSN, config.FlagLogLevel, config.FlagLogJSON}

// modelFlags are registered on every command that talks to a model.
var modelFlags = []string{config.FlagProvider, config.FlagModel, config.FlagBaseURL, config.FlagProfile}

// loadConfig layers defaults, the config file, UNROLL_* variables and the
// flags set on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString(flagConfig)
	v, err := config.InitViper(path)
	if err != nil {
		return nil, err
	}
	config.BindFlags(v, cmd)
	return config.Load(v)
}

// newLogger writes to the command's stderr: JSON when configured, the
// pretty terminal handler otherwise.
func newLogger(cmd *cobra.Command, cfg config.Log) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(
		logging.WithLevel(level),
		logging.WithWriter(cmd.ErrOrStderr()),
		logging.WithJSON(cfg.JSON),
		logging.WithPretty(!cfg.JSON),
	), nil
}

// openDB opens the configured database and applies pending migrations.
func openDB(ctx context.Context, cfg config.Database) (*sqldb.DB, error) {
	var (
		db      *sqldb.DB
		migrate func(context.Context, *sqldb.DB) error
		err     error
	)
	switch cfg.Driver {
	case "postgres":
		db, err = postgres.NewDB(ctx, cfg.DSN)
		migrate = postgres.MigrateUp
	default:
		db, err = sqlite.NewDB(cfg.DSN)
		migrate = sqlite.MigrateUp
	}
	if err != nil {
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", cfg.Driver, err)
	}
	return db, nil
}

// loadProfile reads the agent profile and applies the non-zero config
// overrides on top of it.
func loadProfile(cfg config.Agent) (agent.Profile, error) {
	p, err := agent.LoadProfile(cfg.Profile)
	if err != nil {
		return agent.Profile{}, err
	}
	if cfg.MaxToolRounds > 0 {
		p.MaxToolRounds = cfg.MaxToolRounds
	}
	if cfg.HistoryLimit > 0 {
		p.HistoryLimit = cfg.HistoryLimit
	}
	if cfg.ParallelTools {
		p.ParallelTools = true
	}
	return p, nil
}

func newModel(cfg config.LLM) (llm.ChatModel, error) {
	return llm.NewRouterFromOptions(llm.Options{
		Provider:    cfg.Provider,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		Temperature: &cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
}

// assistant bundles what serve and chat share.
type assistant struct {
	registry *tool.Registry
	service  *chat.Service
}

func newAssistant(db *sqldb.DB, model llm.ChatModel, profile agent.Profile, bus eventbus.EventBus, logger *slog.Logger) (*assistant, error) {
	registry := tool.NewRegistry()
	if err := tool.RegisterBuiltins(registry); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	orch := agent.NewOrchestrator(model, registry, profile.Config(), logger)
	svc := chat.NewService(
		scope.FromDB(db),
		conversation.NewStore(),
		orch,
		chat.Config{SystemPrompt: profile.SystemPrompt, HistoryLimit: profile.Limit()},
		bus,
		logger,
	)
	return &assistant{registry: registry, service: svc}, nil
}
