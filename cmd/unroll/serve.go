package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unroll-ai/unroll/internal/api"
	apimcp "github.com/unroll-ai/unroll/internal/api/mcp"
	domainauth "github.com/unroll-ai/unroll/internal/domain/auth"
	"github.com/unroll-ai/unroll/internal/domain/scope"
	"github.com/unroll-ai/unroll/internal/infra/config"
	"github.com/unroll-ai/unroll/internal/infra/eventbus"
	"github.com/unroll-ai/unroll/internal/server"
	"github.com/unroll-ai/unroll/internal/version"
	pkgauth "github.com/unroll-ai/unroll/pkg/auth"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	config.AddFlags(cmd, config.FlagHost, config.FlagPort)
	config.AddFlags(cmd, storageFlags...)
	config.AddFlags(cmd, modelFlags...)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg.Log)
	if err != nil {
		return err
	}

	tokens, err := pkgauth.NewManager(cfg.Auth.JWTSecret, pkgauth.WithExpiry(cfg.Auth.Expiry()))
	if errors.Is(err, pkgauth.ErrWeakSecret) {
		return fmt.Errorf("set auth.jwt_secret (or %s_AUTH_JWT_SECRET): %w", config.EnvPrefix, err)
	}
	if err != nil {
		return err
	}

	profile, err := loadProfile(cfg.Agent)
	if err != nil {
		return err
	}
	model, err := newModel(cfg.LLM)
	if err != nil {
		return err
	}

	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	bus := eventbus.New()
	asst, err := newAssistant(db, model, profile, bus, logger)
	if err != nil {
		return err
	}

	mcpServer, err := apimcp.NewServer(apimcp.Config{
		Registry: asst.registry,
		Beginner: scope.FromDB(db),
		Version:  version.Version,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	router := api.NewRouter(api.Deps{
		DB:     db,
		Tokens: tokens,
		Auth:   domainauth.NewService(db, tokens, domainauth.WithLogger(logger)),
		Chat:   asst.service,
		Tools:  asst.registry,
		Model:  model,
		MCP:    mcpServer.Handler(),
		Logger: logger,
	})

	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Server.Host
	srvCfg.Port = cfg.Server.Port

	logger.Info("starting unroll",
		"version", version.Version,
		"db_driver", cfg.Database.Driver,
		"provider", model.ModelInfo().Provider,
		"model", model.ModelInfo().ID,
		"profile", profile.Name,
	)
	return server.New(router, bus, srvCfg, logger).Run(ctx)
}
