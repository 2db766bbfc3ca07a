package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solatis/policyrouter/internal/core/api"
	"github.com/solatis/policyrouter/internal/core/auth"
	"github.com/solatis/policyrouter/internal/core/config"
	"github.com/solatis/policyrouter/internal/core/db"
	"github.com/solatis/policyrouter/internal/core/metrics"
	"github.com/solatis/policyrouter/internal/core/policy"
	"github.com/solatis/policyrouter/internal/core/server"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC and HTTP evaluation API",
	Long: `Loads the configured policy set and serves evaluations over gRPC and HTTP.

The process refuses to start when the initial policy load fails. Afterwards a
failed reload (file watcher or SIGHUP) keeps the previous policy set active.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "listen host")
	serveCmd.Flags().Int("port", 50051, "gRPC port")
	serveCmd.Flags().Int("http-port", 8080, "HTTP port")
	serveCmd.Flags().String("policies", "", "policy file or directory (overrides policies.path)")
	serveCmd.Flags().Bool("watch", false, "reload the policy file on change (overrides policies.watch)")
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("host") {
		cfg.RouterAPI.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.RouterAPI.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("http-port") {
		cfg.RouterAPI.HTTPPort, _ = cmd.Flags().GetInt("http-port")
	}
	if cmd.Flags().Changed("policies") {
		cfg.Policies.Source = config.SourceFile
		cfg.Policies.Path, _ = cmd.Flags().GetString("policies")
	}
	if cmd.Flags().Changed("watch") {
		cfg.Policies.Watch, _ = cmd.Flags().GetBool("watch")
	}
	return config.Validate(cfg)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}

	// The database backs both the database policy source and API key
	// authentication; open it only when one of them needs it.
	var (
		database *sqlx.DB
		queries  *db.Queries
	)
	if cfg.Policies.Source == config.SourceDatabase || len(secrets) > 0 {
		database, queries, err = openQueries()
		if err != nil {
			return err
		}
		defer database.Close()
	}

	m := metrics.New(metrics.DefaultNamespace)

	source, err := policySource(cfg, queries)
	if err != nil {
		return err
	}
	registry := policy.NewRegistry(source, logger, m)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := registry.Reload(ctx); err != nil {
		return fmt.Errorf("initial policy load failed: %w", err)
	}

	var authenticator *auth.Authenticator
	if len(secrets) > 0 {
		authenticator = auth.NewAuthenticator(secrets, queries, logger.Named("auth"))
		logger.Info("API key authentication enabled", zap.Int("secrets", len(secrets)))
	} else {
		logger.Warn("no HMAC secrets configured, API key authentication disabled (set PR_HMAC_SECRET)")
	}

	service, err := api.NewPolicyRouterService(registry, logger.Named("api"), m)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	limiter := server.NewRateLimiter(cfg.RouterAPI.RateLimitRPS, cfg.RouterAPI.RateLimitBurst, logger, m)

	grpcServer, err := server.NewGRPCServer(&cfg.RouterAPI, service, authenticator, limiter, logger.Named("grpc"))
	if err != nil {
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}
	httpServer, err := newHTTPServer(cfg, service, registry, authenticator, limiter, m, logger.Named("http"))
	if err != nil {
		return err
	}

	errChan := make(chan error, 3)
	go func() { errChan <- grpcServer.Start(ctx) }()
	if httpServer != nil {
		go func() { errChan <- httpServer.Start() }()
	} else {
		logger.Info("HTTP listener disabled (router_api.http_port=0)")
	}

	if cfg.Policies.Watch {
		watcher, err := policy.NewWatcher(registry, cfg.Policies.Path, cfg.Policies.Debounce, logger.Named("watcher"))
		if err != nil {
			return err
		}
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errChan <- fmt.Errorf("policy watcher: %w", err)
			}
		}()
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	logger.Info("policyrouter started",
		zap.String("host", cfg.RouterAPI.Host),
		zap.Int("grpc_port", cfg.RouterAPI.Port),
		zap.Int("http_port", cfg.RouterAPI.HTTPPort),
		zap.String("policy_source", source.Describe()),
		zap.Bool("watch", cfg.Policies.Watch),
	)

	var runErr error
loop:
	for {
		select {
		case <-hup:
			logger.Info("SIGHUP received, reloading policies")
			_, _ = registry.Reload(ctx)
		case runErr = <-errChan:
			if runErr != nil {
				logger.Error("server stopped", zap.Error(runErr))
			}
			break loop
		case <-ctx.Done():
			logger.Info("shutting down gracefully")
			break loop
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown", zap.Error(err))
		}
	}
	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gRPC shutdown", zap.Error(err))
	}
	return runErr
}

// newHTTPServer returns nil when router_api.http_port is 0 (HTTP disabled).
func newHTTPServer(cfg *config.Config, service *api.PolicyRouterService, registry *policy.Registry, authenticator *auth.Authenticator, limiter *server.RateLimiter, m *metrics.Metrics, logger *zap.Logger) (*server.HTTPServer, error) {
	if cfg.RouterAPI.HTTPPort == 0 {
		return nil, nil
	}
	srv, err := server.NewHTTPServer(&cfg.RouterAPI, service, registry, authenticator, limiter, m, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP server: %w", err)
	}
	return srv, nil
}
