package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"modular-auth/internal/auth"
	"modular-auth/internal/domain"
	apphttp "modular-auth/internal/http"
	"modular-auth/internal/metrics"
	"modular-auth/internal/notify"
	"modular-auth/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := openBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.close()
		if err := store.users.Init(ctx); err != nil {
			return fmt.Errorf("init user repository: %w", err)
		}
		if err := ensureGroups(ctx, store, domain.AdminGroup); err != nil {
			return err
		}
		logger.WithField("backend", cfg.Storage.Backend).Infof("users stored in %s", store.location)

		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m, err := metrics.New(registry)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}

		cookies, closeCookies, err := buildCookies(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeCookies()

		dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
			Workers: cfg.Mail.Workers,
			Logger:  logger,
			Metrics: m,
		}, buildMessenger(cfg, logger))
		if err := dispatcher.Start(ctx); err != nil {
			return fmt.Errorf("start mail dispatcher: %w", err)
		}

		hasher := auth.NewArgon2Hasher()
		checker := auth.NewCredentialChecker(store.users, store.groups, hasher, logger)
		userService := service.NewUserService(service.UserServiceConfig{
			AppName:           cfg.App.Name,
			MinPasswordLength: cfg.Auth.MinPasswordLength,
		}, store.users, checker, hasher, dispatcher, m, logger)

		var adminService service.AdminService
		if cfg.AdminEnabled() && store.registry {
			adminService = service.NewAdminService(store.users, store.groups, hasher, logger)
		}

		gin.SetMode(gin.ReleaseMode)
		router := gin.New()
		router.Use(gin.Recovery())
		handler := apphttp.NewHandler(
			apphttp.Config{
				AppName:           cfg.App.Name,
				LoginLabel:        cfg.App.LoginLabel,
				AllowRegistration: cfg.App.AllowRegistration,
				Gatherer:          registry,
			},
			userService,
			adminService,
			auth.NewSessionManager(cookies, store.groups, logger),
			buildStateStore(cfg),
			m,
			logger,
		)
		handler.RegisterRoutes(router)

		srv := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: router,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Infof("listening on %s", cfg.Server.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warnf("http shutdown: %v", err)
			}
			dispatcher.Shutdown()
			return nil
		})

		err = g.Wait()
		logger.Info("bye")
		return err
	},
}
