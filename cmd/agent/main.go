package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/neobile/smarttutor-iap/internal/domain/entity"
	"github.com/neobile/smarttutor-iap/internal/domain/service"
	"github.com/neobile/smarttutor-iap/internal/infrastructure/config"
	"github.com/neobile/smarttutor-iap/internal/infrastructure/external/backend"
	"github.com/neobile/smarttutor-iap/internal/infrastructure/external/identity"
	"github.com/neobile/smarttutor-iap/internal/infrastructure/external/store"
	"github.com/neobile/smarttutor-iap/internal/infrastructure/external/validator"
	"github.com/neobile/smarttutor-iap/internal/infrastructure/logging"
	"github.com/neobile/smarttutor-iap/internal/infrastructure/metrics"
)

// identityProvider is what the agent needs from an identity implementation:
// the current uid for reconciliation and the bearer token for backend calls.
type identityProvider interface {
	service.Identity
	backend.TokenSource
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logging.Init(&cfg.Sentry); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logging.Sync()

	logging.Logger.Info("Starting subscription agent",
		zap.String("environment", cfg.Environment),
		zap.String("platform", cfg.Store.Platform),
		zap.Strings("skus", cfg.Catalog.SKUs()),
	)

	metrics.Register()
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.Metrics.Addr, nil); err != nil && err != http.ErrServerClosed {
			logging.Logger.Warn("metrics listener stopped", zap.Error(err))
		}
	}()

	ctx := context.Background()

	var ident identityProvider
	if cfg.Identity.FirebaseCredentialsFile != "" {
		fb, err := identity.NewFirebase(ctx, cfg.Identity.FirebaseCredentialsFile)
		if err != nil {
			logging.Logger.Fatal("Failed to initialize Firebase identity", zap.Error(err))
		}
		ident = fb
	} else {
		ident = identity.NewStatic(cfg.Identity.StaticUserID)
	}

	backendClient := backend.NewClient(backend.Config{
		BaseURL:    cfg.Backend.BaseURL,
		Timeout:    cfg.Backend.Timeout,
		MaxRetries: cfg.Backend.MaxRetries,
	}, ident, logging.WithComponent("backend"))

	var fallback service.ReceiptChecker
	switch {
	case cfg.Store.Platform == "ios" && cfg.IAP.AppleSharedSecret != "":
		fallback = validator.NewApple(cfg.IAP.AppleSharedSecret, cfg.IAP.Production)
	case cfg.Store.Platform == "android" && cfg.IAP.GoogleServiceAccountJSON != "":
		fallback = validator.NewGoogle(cfg.IAP.GoogleServiceAccountJSON)
	}

	// The sandbox store stands in for the host app's commerce bridge; it
	// satisfies the same contract the production bridge does.
	commerceStore := store.NewSandbox(sandboxCatalog(cfg.Catalog))
	commerceStore.SettleDelay = cfg.Store.SettleDelay

	reconciler := service.NewReconciler(
		commerceStore,
		backendClient,
		ident,
		fallback,
		cfg.Catalog.SKUs(),
		cfg.Store.Platform,
		logging.WithComponent("reconciler"),
	)
	listener := service.NewListener(commerceStore, reconciler, logging.WithComponent("listener"))
	gateway := service.NewGateway(
		commerceStore,
		listener,
		cfg.Catalog.SKUs(),
		cfg.Store.SettleDelay,
		cfg.Store.CatalogAttempts,
		logging.WithComponent("gateway"),
	)

	if err := gateway.Initialize(ctx); err != nil {
		logging.Logger.Fatal("Failed to initialize commerce gateway", zap.Error(err))
	}
	defer gateway.Close()

	// Startup counts as a foreground transition.
	if _, err := reconciler.VerifySubscriptionStatus(ctx); err != nil {
		logging.Logger.Warn("initial status verification failed", zap.Error(err))
	}

	// SIGHUP is the host bridge's foreground/auth-change hook; SIGINT and
	// SIGTERM shut the agent down.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	for sig := range signals {
		if sig == syscall.SIGHUP {
			logging.Logger.Info("reconcile trigger received")
			if _, err := reconciler.VerifySubscriptionStatus(ctx); err != nil {
				logging.Logger.Warn("status verification failed", zap.Error(err))
			}
			continue
		}
		break
	}

	logging.Logger.Info("Shutting down agent")
}

func sandboxCatalog(cfg config.CatalogConfig) []entity.Product {
	products := make([]entity.Product, 0, len(cfg.Options))
	for _, opt := range cfg.Options {
		p := entity.Product{
			SKU:            opt.SKU,
			Title:          "Smart Tutor Premium",
			Description:    "Unlimited quizzes and explanations",
			LocalizedPrice: "$9.99",
			Period:         opt.Period,
		}
		if opt.Period == entity.PeriodYear {
			p.LocalizedPrice = "$39.99"
		}
		products = append(products, p)
	}
	return products
}
