package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/pharmakart/api/internal/di"
	"github.com/pharmakart/api/internal/handlers"
	"github.com/pharmakart/api/internal/platform/auth"
	"github.com/pharmakart/api/internal/platform/config"
	pfirestore "github.com/pharmakart/api/internal/platform/firestore"
	"github.com/pharmakart/api/internal/platform/observability"
	"github.com/pharmakart/api/internal/platform/push"
	"github.com/pharmakart/api/internal/reactors"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	var authenticator *auth.Authenticator
	var pushSender reactors.PushSender
	if strings.TrimSpace(cfg.Firebase.ProjectID) != "" {
		app, err := newFirebaseApp(ctx, cfg.Firebase)
		if err != nil {
			logger.Fatal("failed to initialise firebase app", zap.Error(err))
		}

		authClient, err := app.Auth(ctx)
		if err != nil {
			logger.Fatal("failed to initialise firebase auth client", zap.Error(err))
		}
		authenticator = auth.NewAuthenticator(authClient)

		if cfg.Notifications.Enabled {
			messagingClient, err := app.Messaging(ctx)
			if err != nil {
				logger.Fatal("failed to initialise messaging client", zap.Error(err))
			}
			sender, err := push.NewSender(messagingClient)
			if err != nil {
				logger.Fatal("failed to initialise push sender", zap.Error(err))
			}
			pushSender = sender
		}
	} else {
		logger.Warn("firebase project not configured; auth and push disabled")
	}

	var eventTopic *pubsub.Topic
	if cfg.PubSub.Enabled {
		projectID := cfg.PubSub.ProjectID
		if projectID == "" {
			projectID = cfg.Firebase.ProjectID
		}
		pubsubClient, err := pubsub.NewClient(ctx, projectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		eventTopic = pubsubClient.Topic(cfg.PubSub.EventTopic)
		defer eventTopic.Stop()
	}

	container, err := di.NewContainer(di.ContainerDeps{
		Config:     cfg,
		Firestore:  firestoreProvider,
		Logger:     logger,
		Push:       pushSender,
		EventTopic: eventTopic,
	})
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}

	handlers.ExposeInternalErrors(cfg.Security.IsDevelopment())

	orderHandlers := handlers.NewOrderHandlers(container.Services.Orders)
	productHandlers := handlers.NewProductHandlers(container.Services.Catalog)
	pharmacyHandlers := handlers.NewPharmacyHandlers(container.Services.Pharmacies)
	financialHandlers := handlers.NewFinancialHandlers(container.Services.Financial)
	adminHandlers := handlers.NewAdminHandlers(
		container.Services.Orders,
		container.Services.Catalog,
		container.Services.Pharmacies,
		container.Services.Reporting,
	)
	internalHandlers := handlers.NewInternalEventHandlers(container.Dispatcher)

	health := handlers.NewHealthHandlers(
		handlers.WithReadinessCheck("firestore", func(ctx context.Context) error {
			_, err := firestoreProvider.Client(ctx)
			return err
		}),
	)

	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
			observability.MetricsMiddleware(),
		),
		handlers.WithHealthHandlers(health),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithPharmacyRoutes(pharmacyHandlers.Routes),
	}
	if authenticator != nil {
		adminOnly := authenticator.Require(auth.AdminRoles...)
		opts = append(opts,
			handlers.WithFinancialRoutes(financialHandlers.Routes, adminOnly),
			handlers.WithAdminRoutes(adminHandlers.Routes, adminOnly),
			// Push deliveries must authenticate like any other admin caller;
			// the endpoint replays events and cannot stay open.
			handlers.WithInternalRoutes(internalHandlers.Routes, adminOnly),
		)
	} else {
		opts = append(opts,
			handlers.WithFinancialRoutes(financialHandlers.Routes),
			handlers.WithAdminRoutes(adminHandlers.Routes),
			handlers.WithInternalRoutes(internalHandlers.Routes),
		)
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("pharmakart api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newFirebaseApp(ctx context.Context, cfg config.FirebaseConfig) (*firebase.App, error) {
	var opts []option.ClientOption
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}
	return firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
}
