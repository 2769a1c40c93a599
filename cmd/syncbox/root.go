package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/syncbox/internal/credential"
	"github.com/nhle/syncbox/internal/engine"
	"github.com/nhle/syncbox/internal/index"
	"github.com/nhle/syncbox/internal/logging"
	"github.com/nhle/syncbox/internal/model"
	"github.com/nhle/syncbox/internal/store"
)

var configPath string

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "syncbox",
		Short:         "Background sync engine for mail, calendars, and tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(
		&configPath, "config", model.DefaultConfigPath(), "path to config file",
	)

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(onceCmd())

	return cmd
}

// app bundles the wired process-level collaborators.
type app struct {
	cfg    *model.AppConfig
	logger *zap.Logger
	store  *store.Store
	engine *engine.Engine
}

// buildApp loads config and wires store, index, and engine.
func buildApp() (*app, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := logging.New(cfg.Log)

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	// A broken index degrades search to database scans; it never stops
	// the engine.
	if cfg.Search.IndexDir != "" {
		if idx, err := index.Open(cfg.Search.IndexDir); err != nil {
			logger.Warn("mail index unavailable", zap.Error(err))
		} else {
			st.AttachMailIndex(idx)
		}
	}

	eng := engine.New(
		st,
		engine.NewRegistry(logger),
		credential.Store{},
		logger,
		cfg.Sync,
	)

	return &app{cfg: cfg, logger: logger, store: st, engine: eng}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", zap.Error(err))
	}
	_ = a.logger.Sync()
}
