// cmd/server/main.go
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

	"coloring-pages/config"
	"coloring-pages/internal/billing"
	"coloring-pages/internal/db"
	"coloring-pages/internal/gpt"
	"coloring-pages/internal/imagegen"
	"coloring-pages/internal/payment"
	"coloring-pages/internal/server"
	"coloring-pages/internal/storage"
	"coloring-pages/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").Fatalw("Failed to load config", "error", err)
	}

	l := logger.New(cfg.Log.Level)
	if cfg.Log.Development {
		l = logger.NewDevelopment()
	}
	defer l.Sync()

	l.Info("Starting coloring page service...")

	if err := cfg.Validate(); err != nil {
		l.Fatalw("Invalid configuration", "error", err)
	}

	ctx := context.Background()

	profiles, err := openStore(ctx, cfg, l)
	if err != nil {
		l.Fatalw("Failed to open profile store", "driver", cfg.Store.Driver, "error", err)
	}
	defer profiles.Close()

	gptClient := gpt.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout).WithModel(cfg.OpenAI.Model)

	files, err := storage.NewFileStore(cfg.Images.OutputDir, cfg.Images.PublicPath)
	if err != nil {
		l.Fatalw("Failed to resolve image directory", "dir", cfg.Images.OutputDir, "error", err)
	}
	stores := map[storage.Mode]storage.Store{storage.ModeFile: files}
	if cfg.S3.Bucket != "" {
		s3Store, err := storage.NewS3Store(storage.S3Config{
			Endpoint:      cfg.S3.Endpoint,
			Region:        cfg.S3.Region,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			Bucket:        cfg.S3.Bucket,
			PublicBaseURL: cfg.S3.PublicBaseURL,
			UsePathStyle:  cfg.S3.UsePathStyle,
			Prefix:        cfg.S3.Prefix,
		})
		if err != nil {
			l.Fatalw("Failed to configure object storage", "error", err)
		}
		stores[storage.ModeS3] = s3Store
	}

	images, err := imagegen.NewService(imagegen.Options{
		Generator:       gptClient,
		Stores:          stores,
		StorageMode:     cfg.Images.StorageMode,
		PlatformManaged: cfg.Images.PlatformManaged,
		AppPassword:     cfg.Images.AppPassword,
		Logger:          l.With("component", "images"),
	})
	if err != nil {
		l.Fatalw("Failed to create image service", "error", err)
	}
	l.Infow("Image storage resolved",
		"mode", storage.ResolveMode(cfg.Images.StorageMode, cfg.Images.PlatformManaged),
		"dir", files.Dir(),
		"model", gptClient.Model(),
	)

	stripeClient := payment.NewStripeClient(payment.Config{
		SecretKey:  cfg.Stripe.SecretKey,
		PublicKey:  cfg.Stripe.PublicKey,
		WebhookKey: cfg.Stripe.WebhookKey,
		Currency:   cfg.Stripe.Currency,
	})

	billingLog := l.With("component", "billing")
	httpServer := server.NewServer(cfg.Server.Port, server.Deps{
		Images:                  images,
		Files:                   files,
		Profiles:                profiles,
		Checkout:                billing.NewCheckoutBuilder(stripeClient, profiles, billingLog),
		Reconciler:              billing.NewReconciler(profiles, stripeClient, billingLog),
		Canceller:               billing.NewCanceller(stripeClient, profiles, billingLog),
		Webhooks:                stripeClient,
		PublicURL:               cfg.Server.PublicURL,
		GrooveSellSecret:        cfg.GrooveSell.WebhookSecret,
		GrooveSellAllowUnsigned: cfg.GrooveSell.AllowUnsigned,
	}, l)

	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatalw("Failed to start HTTP server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		l.Errorw("Error during HTTP server shutdown", "error", err)
	}

	l.Info("Server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, l *logger.Logger) (db.ProfileStore, error) {
	switch cfg.Store.Driver {
	case "postgres":
		var (
			database *db.PostgresDB
			err      error
		)
		const maxRetries = 5
		for i := range maxRetries {
			database, err = db.NewPostgresDB(ctx, db.PostgresConfig(cfg.DB))
			if err == nil {
				break
			}
			l.Errorw("Failed to connect to database, retrying...", "attempt", i+1, "error", err)
			time.Sleep(time.Duration(i+1) * time.Second)
		}
		if database == nil {
			return nil, fmt.Errorf("connect after %d attempts: %w", maxRetries, err)
		}
		if err := database.EnsureSchema(ctx); err != nil {
			database.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return database, nil

	case "firestore":
		client, err := db.NewFirestoreClient(ctx, cfg.Firestore.ProjectID, cfg.Firestore.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return db.NewFirestoreStore(client,
			db.WithProfilesCollection(cfg.Firestore.Collection),
			db.WithLedgerCollection(cfg.Firestore.LedgerCollection),
		), nil

	case "memory":
		l.Warn("Using in-memory profile store, balances are lost on restart")
		return db.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
}
