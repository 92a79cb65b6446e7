package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskboard-hq/taskboard/internal/application"
	"github.com/taskboard-hq/taskboard/internal/auth"
	"github.com/taskboard-hq/taskboard/internal/events"
	"github.com/taskboard-hq/taskboard/internal/organization"
	"github.com/taskboard-hq/taskboard/internal/platform/config"
	"github.com/taskboard-hq/taskboard/internal/platform/database"
	"github.com/taskboard-hq/taskboard/internal/platform/server"
	"github.com/taskboard-hq/taskboard/internal/platform/telemetry"
	"github.com/taskboard-hq/taskboard/internal/rbac"
	"github.com/taskboard-hq/taskboard/internal/task"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// stores groups the persistence backends picked at startup.
type stores struct {
	roles         rbac.RoleWriter
	roleLoader    rbac.RoleLoader
	permissions   rbac.PermissionRepository
	tasks         task.Store
	applications  application.Store
	organizations organization.Repository
	history       *events.Store
}

func memoryStores() stores {
	roles := rbac.NewMemoryRoleStore()
	tasks := task.NewMemoryStore()
	return stores{
		roles:         roles,
		roleLoader:    roles,
		permissions:   rbac.NewMemoryPermissionStore(roles),
		tasks:         tasks,
		applications:  application.NewMemoryStore(),
		organizations: organization.NewMemoryStore(),
	}
}

func postgresStores(pool *database.Pool) stores {
	roles := rbac.NewRoleStore(pool)
	return stores{
		roles:         roles,
		roleLoader:    roles,
		permissions:   rbac.NewPermissionStore(pool),
		tasks:         task.NewPGStore(pool),
		applications:  application.NewPGStore(pool),
		organizations: organization.NewStore(pool),
		history:       events.NewStore(pool),
	}
}

func run() error {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	telemetry.SetDefault(logger)

	slog.Info("taskboard starting", "port", cfg.Server.Port)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics := telemetry.NewMetrics()

	var pool *database.Pool
	st := memoryStores()
	if cfg.Database.URL != "" {
		slog.Info("connecting to database")
		pool, err = database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()

		migrationsURL := fmt.Sprintf("file://%s", cfg.Database.MigrationsPath)
		if err := database.RunMigrations(cfg.Database.URL, migrationsURL); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		slog.Info("migrations complete")
		st = postgresStores(pool)
	} else {
		slog.Warn("no database configured, state is kept in memory")
	}

	if cfg.Auth.JWT.SigningKey == "" && !cfg.Auth.DevMode {
		return errors.New("auth.jwt.signingkey is required outside dev mode")
	}
	tokenSvc := auth.NewTokenService(
		cfg.Auth.JWT.SigningKey,
		cfg.Auth.JWT.Issuer,
		cfg.Auth.JWT.ExpiryHours,
		cfg.Auth.JWT.RefreshExpiryHours,
	)

	catalog := rbac.NewCatalog(rbac.WithRoleLoader(st.roleLoader))
	if err := catalog.ReloadRoles(ctx); err != nil {
		return fmt.Errorf("loading roles: %w", err)
	}

	var hubOpts []events.HubOption
	if len(cfg.CORS.AllowedOrigins) > 0 {
		hubOpts = append(hubOpts, events.WithOriginPatterns(cfg.CORS.AllowedOrigins...))
	}
	hub := events.NewHub(tokenSvc, catalog, hubOpts...)

	publisher := events.Fanout{hub}
	var eventHandler *events.Handler
	if st.history != nil {
		publisher = append(publisher, events.NewAsyncPublisher(st.history, events.Config{
			BufferSize:    cfg.Events.BufferSize,
			BatchSize:     cfg.Events.BatchSize,
			FlushInterval: time.Duration(cfg.Events.FlushIntervalMS) * time.Millisecond,
		}, events.WithDropObserver(metrics)))
		eventHandler = events.NewHandler(st.history)
	}

	taskSvc := task.NewService(st.tasks,
		task.WithPublisher(publisher),
		task.WithObserver(metrics),
	)
	appSvc := application.NewService(st.applications, st.tasks,
		application.WithPublisher(publisher),
		application.WithObserver(metrics),
	)

	var devIdentity *auth.Identity
	if cfg.Auth.DevMode {
		slog.Warn("running in dev mode, authentication bypassed with 'Bearer dev'")
		devIdentity = &auth.Identity{
			UserID: "dev-user",
			Roles:  []string{rbac.RoleGlobalAdmin},
		}
	}

	deps := server.Dependencies{
		Auth:                tokenSvc,
		AuthHandler:         auth.NewHandler(tokenSvc),
		Catalog:             catalog,
		RBACHandler:         rbac.NewHandler(catalog, st.roles, st.permissions, catalog),
		TaskHandler:         task.NewHandler(taskSvc),
		ApplicationHandler:  application.NewHandler(appSvc),
		OrganizationHandler: organization.NewHandler(st.organizations),
		EventHandler:        eventHandler,
		EventHub:            hub,
		Metrics:             metrics,
		DevMode:             cfg.Auth.DevMode,
		DevIdentity:         devIdentity,
		Logger:              logger,
		CORSAllowedOrigins:  cfg.CORS.AllowedOrigins,
	}
	if pool != nil {
		deps.DB = pool
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		interval := time.Duration(cfg.RBAC.ReloadIntervalSecs) * time.Second
		return catalog.Run(gctx, interval)
	})

	slog.Info("server ready", "addr", addr, "dev_mode", cfg.Auth.DevMode)
	err = g.Wait()

	// Flush buffered events once no request can publish anymore.
	if closeErr := publisher.Close(); closeErr != nil {
		slog.Error("closing event publishers", "error", closeErr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
