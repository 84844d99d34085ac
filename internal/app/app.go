// Package app wires configuration, storage and transport into a running
// server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/coffee-store/internal/domain/auth"
	"github.com/xenking/coffee-store/internal/domain/catalog"
	"github.com/xenking/coffee-store/internal/domain/order"
	"github.com/xenking/coffee-store/internal/domain/pricing"
	"github.com/xenking/coffee-store/internal/handler"
	"github.com/xenking/coffee-store/internal/repository"
	"github.com/xenking/coffee-store/pkg/health"
	"github.com/xenking/coffee-store/pkg/httpmiddleware"
)

const serviceName = "coffee-store"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// Discount rules are validated before touching the database.
	ruleCfgs, err := cfg.Discount.RuleConfigs()
	if err != nil {
		return errors.Wrap(err, "discount config")
	}
	rules, err := pricing.BuildRules(ruleCfgs)
	if err != nil {
		return errors.Wrap(err, "build discount rules")
	}
	for _, r := range rules {
		lg.Info("Discount rule enabled", zap.String("rule", r.Name()))
	}

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New(health.Config{})
	healthSvc.Register(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.Register(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(cfg.Health.GoroutineLimit))
	healthSvc.Start(ctx, cfg.Health.Interval)

	// Repositories.
	catalogRepo := repository.NewCatalogRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	// Domain services.
	catalogSvc := catalog.NewService(catalogRepo)
	orderSvc, err := order.NewService(catalogSvc, pricing.NewSelector(rules...), orderRepo,
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	// HTTP handlers.
	authn := newAuthenticator(ctx, cfg, apikeyRepo)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(catalogSvc, orderSvc).Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			middlewares(ctx, cfg, authn, m.TracerProvider(), m.MeterProvider())...,
		),
	}

	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// middlewares returns the server middleware chain, outermost first.
// Authentication must precede rate limiting: buckets belong to verified
// identities or client IPs, never to raw keys.
func middlewares(
	ctx context.Context,
	cfg *Config,
	authn *handler.Authenticator,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) []httpmiddleware.Middleware {
	return []httpmiddleware.Middleware{
		httpmiddleware.Recovery(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.RequestID(),
		httpmiddleware.Instrument(serviceName, tp, mp),
		httpmiddleware.LogRequests(),
		authn.Middleware(),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:     cfg.RateLimit.Max,
			Window:  cfg.RateLimit.Window,
			KeyFunc: callerKey(clientIP(cfg)),
		}),
	}
}

// newAuthenticator builds the API key authenticator with a per-IP limit on
// rejected keys.
func newAuthenticator(ctx context.Context, cfg *Config, keys auth.Repository) *handler.Authenticator {
	failures := httpmiddleware.NewLimiter(httpmiddleware.RateLimitConfig{
		Max:     cfg.RateLimit.AuthFailures,
		Window:  cfg.RateLimit.Window,
		KeyFunc: clientIP(cfg),
	})
	go failures.RunSweeper(ctx)
	return handler.NewAuthenticator(keys, cfg.APIKeyPepper, handler.WithFailureLimiter(failures))
}

func clientIP(cfg *Config) func(*http.Request) string {
	if cfg.RateLimit.TrustProxy {
		return httpmiddleware.ForwardedClientIP
	}
	return httpmiddleware.ClientIP
}

// callerKey limits authenticated callers per user and anonymous callers per
// client IP. It reads the identity set by the authenticator.
func callerKey(ip func(*http.Request) string) func(*http.Request) string {
	return func(r *http.Request) string {
		if id, ok := auth.FromContext(r.Context()); ok {
			return "user:" + id.UserID
		}
		return "ip:" + ip(r)
	}
}
