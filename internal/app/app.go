// Package app provides application initialization and dependency wiring.
//
// App is the container that connects configuration to the concrete
// backends: the Redis cache, the OAuth token manager, the monitoring
// client, the model client, the session store and the orchestrator on
// top of them all.
package app

import (
	"context"
	"fmt"

	"github.com/opschat/opschat/internal/auth"
	"github.com/opschat/opschat/internal/cache"
	"github.com/opschat/opschat/internal/config"
	"github.com/opschat/opschat/internal/log"
	"github.com/opschat/opschat/internal/model"
	"github.com/opschat/opschat/internal/monitor"
	"github.com/opschat/opschat/internal/orchestrator"
	"github.com/opschat/opschat/internal/session"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Cache        *cache.Store
	Tokens       *auth.Manager // nil when the monitor backend is not configured
	Monitor      *monitor.Client
	Model        *model.Client
	Sessions     *session.Store
	Orchestrator *orchestrator.Orchestrator
}

// Setup wires all components from configuration. A failed Redis
// connection does not fail setup; the cache degrades to pass-through and
// recovers on its own.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	a := &App{Config: cfg, Logger: logger}

	a.Cache = cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	a.Sessions = session.NewStore(a.Cache, cfg.SessionTTL, logger)

	mdl, err := model.NewClient(cfg.ModelHost, cfg.ModelName, cfg.QueryTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("creating model client: %w", err)
	}
	a.Model = mdl

	if cfg.MonitorEnabled() {
		a.Tokens = auth.NewManager(cfg.OAuthTokenURL, cfg.OAuthClientID, cfg.OAuthClientSecret,
			cfg.OAuthScopes, cfg.TokenSafetyMargin, logger)

		mon, err := monitor.NewClient(cfg.MonitorURL, a.Tokens, cfg.QueryTimeout, logger)
		if err != nil {
			return nil, fmt.Errorf("creating monitor client: %w", err)
		}
		a.Monitor = mon
		a.Orchestrator = orchestrator.New(a.Cache, a.Sessions, mon, mdl, cfg.ResultTTL, logger)
	} else {
		logger.Info("monitor backend not configured, live queries fall back to model")
		a.Orchestrator = orchestrator.New(a.Cache, a.Sessions, nil, mdl, cfg.ResultTTL, logger)
	}

	return a, nil
}

// Close releases held resources.
func (a *App) Close() error {
	if a.Cache != nil {
		return a.Cache.Close()
	}
	return nil
}
