package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cityinfo.org/internal/auth"
	"cityinfo.org/internal/cityinfo"
	"cityinfo.org/internal/config"
	"cityinfo.org/internal/httpapi"
	"cityinfo.org/internal/notify"
	"cityinfo.org/internal/obs"
	"cityinfo.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := config.New()
	cmd := &cobra.Command{
		Use:           "cityinfo-api",
		Short:         "Serve the CityInfo HTTP API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config %s: %w", path, err)
				}
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	if err := config.BindFlags(cmd, v); err != nil {
		panic(err)
	}
	cmd.AddCommand(newHashCommand())
	return cmd
}

// newHashCommand prints a bcrypt hash for a static user entry.
func newHashCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password PASSWORD",
		Short: "Print the bcrypt hash for auth.users[].password-hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func identitySource(cfg config.Config) (auth.IdentitySource, error) {
	if len(cfg.Auth.Users) == 0 {
		return auth.DemoIdentitySource{Tenant: cfg.Auth.RequiredTenant}, nil
	}
	users := make([]auth.StaticUser, 0, len(cfg.Auth.Users))
	for _, u := range cfg.Auth.Users {
		users = append(users, auth.StaticUser{
			Identity: auth.Identity{
				UserID:    u.ID,
				UserName:  u.UserName,
				FirstName: u.FirstName,
				LastName:  u.LastName,
				Tenant:    u.City,
			},
			PasswordHash: u.PasswordHash,
		})
	}
	return auth.NewStaticIdentitySource(users)
}

func serve(ctx context.Context, cfg config.Config) error {
	obs.Init()
	obs.InitBuildInfo(version, commit)
	logger := obs.Logger()
	defer func() { _ = logger.Sync() }()

	identities, err := identitySource(cfg)
	if err != nil {
		return err
	}
	tokens := auth.TokenConfig{
		Secret:   []byte(cfg.Auth.Secret),
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		TTL:      cfg.Auth.TokenTTL,
	}
	issuer, err := auth.NewIssuer(identities, tokens)
	if err != nil {
		return err
	}
	verifier, err := auth.NewVerifier(tokens)
	if err != nil {
		return err
	}
	policies, err := auth.NewEvaluator(auth.TenantPolicy(auth.PolicyMustBeFromCity, cfg.Auth.RequiredTenant))
	if err != nil {
		return err
	}

	deps := httpapi.Deps{
		Issuer:   issuer,
		Verifier: verifier,
		Policies: policies,
		Version:  version,
	}
	if cfg.PostgresDSN != "" {
		db, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
		deps.Store = db
		deps.Ready = db
		logger.Info("store_selected", zap.String("store", "postgres"))
	} else {
		deps.Store = cityinfo.NewInMemory(cityinfo.SeedCities()...)
		logger.Info("store_selected", zap.String("store", "memory"))
	}

	sink := notify.NewMailSink(cfg.Mail.To, cfg.Mail.From, logger)
	dispatcher := notify.NewDispatcher(sink, notify.Config{
		QueueSize:      cfg.Notify.QueueSize,
		MaxRetries:     uint64(cfg.Notify.MaxRetries),
		AttemptTimeout: cfg.Notify.AttemptTimeout,
	}, logger)
	deps.Notifier = dispatcher

	api := httpapi.New(deps,
		httpapi.WithPageSizes(cfg.API.DefaultPageSize, cfg.API.MaxPageSize),
		httpapi.WithMaxBodyBytes(cfg.API.MaxBodyBytes),
		httpapi.WithRateLimit(cfg.API.RateBurst, cfg.API.RatePerSecond),
		httpapi.WithLogger(logger),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_starting", zap.String("version", version), zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("server_stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown_failed", zap.Error(err))
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("notifications_abandoned", zap.Error(err))
	}
	logger.Info("server_stopped")
	return nil
}
