// Copyright 2026 The Identra Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/identra/identra/internal/audit"
	"github.com/identra/identra/internal/config"
	"github.com/identra/identra/internal/identity"
	"github.com/identra/identra/internal/oauth2"
	"github.com/identra/identra/internal/observability/logger"
	"github.com/identra/identra/internal/observability/metrics"
	"github.com/identra/identra/internal/observability/tracing"
	"github.com/identra/identra/internal/store/postgres"
	"github.com/identra/identra/internal/store/redis"
	transportHTTP "github.com/identra/identra/internal/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the authorization server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg)
	},
}

func runServe(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting identra authorization server")

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	if _, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName); err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	slog.Info("connected to database")

	tokenCache, err := redis.New(ctx, cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer tokenCache.Close()
	slog.Info("connected to redis")

	signer, err := oauth2.NewSigner(
		cfg.JWT.PrivateKeyPEM(),
		cfg.JWT.PublicKeyPEM(),
		cfg.JWT.Issuer,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize token signer: %w", err)
	}

	userRepo := postgres.NewUserRepository(db)
	clientRepo := postgres.NewClientRepository(db)
	tokenRepo := postgres.NewTokenRepository(db)
	codeRepo := postgres.NewAuthorizationCodeRepository(db)

	auditLogger := audit.NewSlogLogger()
	passwordHasher := newPasswordHasher(cfg)

	identityService := identity.NewService(userRepo, passwordHasher, auditLogger)
	oauth2Service := oauth2.NewService(
		clientRepo,
		tokenRepo,
		codeRepo,
		identityService,
		signer,
		tokenCache,
		passwordHasher,
		auditLogger,
		cfg.JWT.AuthCodeExpiry,
	)
	clientService := oauth2.NewClientService(clientRepo, passwordHasher, auditLogger)

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	handler := transportHTTP.NewHandler(
		identityService,
		oauth2Service,
		clientService,
		signer,
		auditLogger,
	)
	router := transportHTTP.NewRouter(handler, rateLimiter, transportHTTP.RouterConfig{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowCredentials: cfg.CORS.AllowCredentials,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Periodic removal of expired tokens and authorization codes
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			tokens, codes, err := oauth2Service.CleanupExpired(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "failed to cleanup expired grants", logger.Error(err))
				continue
			}
			slog.InfoContext(ctx, "cleaned up expired grants",
				logger.RowsAffected(tokens+codes),
			)
		}
	}()

	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
	return nil
}
