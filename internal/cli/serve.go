package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/hermod-chat/hermod/credstore/filestore"
	"github.com/hermod-chat/hermod/httpapi"
	"github.com/hermod-chat/hermod/internal/config"
	"github.com/hermod-chat/hermod/internal/logctx"
	"github.com/hermod-chat/hermod/retrycache"
	"github.com/hermod-chat/hermod/retrycache/memorycache"
	"github.com/hermod-chat/hermod/retrycache/rediscache"
	"github.com/hermod-chat/hermod/sessions"
	"github.com/hermod-chat/hermod/transport"
	"github.com/hermod-chat/hermod/webhook"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(logctx.Handler{
		Handler: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	})

	dialer, err := transport.Open(cfg.TransportDriver)
	if err != nil {
		return err
	}

	creds, err := filestore.New(cfg.CredsDir)
	if err != nil {
		return err
	}

	var retries retrycache.Cache
	if cfg.RedisAddr != "" {
		retries, err = rediscache.New(rediscache.Config{
			Client: redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}),
		})
		if err != nil {
			return err
		}
	} else {
		retries = memorycache.New()
	}
	if consumer, ok := dialer.(transport.RetryCacheConsumer); ok {
		consumer.UseRetryCache(retries)
	}

	hooks := webhook.New(webhook.WithLogger(log), webhook.WithTimeout(cfg.Webhook.Timeout))
	hooks.SetEndpoint(cfg.Webhook.URL, cfg.Webhook.Secret)

	reg := sessions.NewRegistry(dialer, creds, hooks,
		sessions.WithLogger(log),
		sessions.WithReconnectDelay(cfg.ReconnectDelay),
	)

	if *cfg.DefaultSession {
		if _, err := reg.Create(ctx, sessions.DefaultSessionID); err != nil {
			return fmt.Errorf("create default session: %w", err)
		}
	}

	apiOpts := []httpapi.Option{httpapi.WithLogger(log)}
	if cfg.Auth.JWKSURL != "" {
		authn, err := httpapi.NewAuthenticator(ctx, httpapi.AuthConfig{
			JWKSURL:  cfg.Auth.JWKSURL,
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
		})
		if err != nil {
			return err
		}
		apiOpts = append(apiOpts, httpapi.WithAuthenticator(authn))
	}

	handler, err := httpapi.New(reg, hooks, apiOpts...)
	if err != nil {
		return err
	}

	// Webhook settings follow the config file without a restart; everything
	// else requires one.
	if configPath != "" {
		if err := config.Watch(ctx, configPath, log, func(next *config.Config) {
			hooks.SetEndpoint(next.Webhook.URL, next.Webhook.Secret)
		}); err != nil {
			return err
		}
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: handler}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http.listen", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutdown.start")
	graceCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(graceCtx); err != nil {
		log.Warn("shutdown.http.fail", slog.String("err", err.Error()))
	}
	if err := reg.Close(graceCtx); err != nil {
		log.Warn("shutdown.sessions.fail", slog.String("err", err.Error()))
	}
	log.Info("shutdown.done")
	return nil
}
