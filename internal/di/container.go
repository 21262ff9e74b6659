// Package di assembles repositories, the event bus, reactors and services
// into a runtime container. Production wiring provides real Firestore-backed
// repositories; tests can assemble services directly with stubs.
package di

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/events"
	"github.com/pharmakart/api/internal/platform/cache"
	"github.com/pharmakart/api/internal/platform/config"
	pfirestore "github.com/pharmakart/api/internal/platform/firestore"
	"github.com/pharmakart/api/internal/platform/observability"
	"github.com/pharmakart/api/internal/reactors"
	"github.com/pharmakart/api/internal/repositories"
	firestorerepo "github.com/pharmakart/api/internal/repositories/firestore"
	"github.com/pharmakart/api/internal/services"
)

type eventLogFunc = func(ctx context.Context, event string, fields map[string]any)

// Repositories bundles the Firestore-backed persistence layer.
type Repositories struct {
	Orders     repositories.OrderRepository
	Products   repositories.ProductRepository
	Pharmacies repositories.PharmacyRepository
	Coupons    repositories.CouponRepository
	Refunds    repositories.RefundRepository
	EventLogs  repositories.EventLogRepository
	AuditLogs  repositories.AuditLogRepository
	Users      repositories.UserRepository
	Engagement repositories.EngagementRepository
	Mail       repositories.MailRepository
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders     services.OrderService
	Catalog    services.CatalogService
	Pharmacies services.PharmacyService
	Financial  services.FinancialService
	Reporting  services.ReportingService
	Recorder   services.Recorder
}

// Container wires the whole runtime dependency graph.
type Container struct {
	Config       config.Config
	Repositories Repositories
	Services     Services
	Dispatcher   *events.Dispatcher
}

// ContainerDeps carries the externally-constructed dependencies.
type ContainerDeps struct {
	Config    config.Config
	Firestore *pfirestore.Provider
	Logger    *zap.Logger
	// Push delivers FCM notifications. Optional: reactors skip notification
	// fan-out when nil.
	Push reactors.PushSender
	// EventTopic mirrors every bus event onto Pub/Sub. Optional.
	EventTopic *pubsub.Topic
}

// NewContainer constructs the runtime dependencies.
func NewContainer(deps ContainerDeps) (*Container, error) {
	if deps.Firestore == nil {
		return nil, errors.New("di: firestore provider is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	repos, err := buildRepositories(deps.Firestore)
	if err != nil {
		return nil, err
	}

	eventLogger := observability.EventLoggerFunc(logger.Named("events"))
	recorder, err := services.NewRecorder(services.RecorderDeps{
		EventLogs: repos.EventLogs,
		AuditLogs: repos.AuditLogs,
		Logger:    eventLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("build recorder: %w", err)
	}

	dispatcher, err := events.NewDispatcher(events.DispatcherDeps{
		Logger:   eventLogger,
		Record:   observability.RecordReaction,
		Failures: reactionFailureSink(recorder),
	})
	if err != nil {
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}

	if err := registerReactors(dispatcher, repos, recorder, deps, eventLogger); err != nil {
		return nil, err
	}
	if deps.EventTopic != nil {
		mirror, err := events.NewPubSubMirror(deps.EventTopic)
		if err != nil {
			return nil, fmt.Errorf("build pubsub mirror: %w", err)
		}
		dispatcher.SubscribeAll("pubsub_mirror", mirror.Handle)
	}

	svc, err := buildServices(repos, dispatcher, recorder, deps.Config, eventLogger)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       deps.Config,
		Repositories: repos,
		Services:     svc,
		Dispatcher:   dispatcher,
	}, nil
}

// reactionFailureSink records every recovered reaction panic as a
// SYSTEM_ERROR event-log entry, mirroring the trail reactors leave for their
// own handled failures.
func reactionFailureSink(recorder services.Recorder) func(ctx context.Context, event events.Event, err error) {
	return func(ctx context.Context, event events.Event, err error) {
		recorder.RecordEvent(ctx, domain.EventLogEntry{
			Type:       "SYSTEM_ERROR",
			Severity:   domain.EventSeverityError,
			EntityType: event.EntityType(),
			EntityID:   event.EntityID(),
			Message:    err.Error(),
			Metadata:   map[string]any{"event": event.EventName()},
		})
	}
}

func buildRepositories(provider *pfirestore.Provider) (Repositories, error) {
	var repos Repositories
	var err error

	if repos.Orders, err = firestorerepo.NewOrderRepository(provider); err != nil {
		return repos, fmt.Errorf("build order repository: %w", err)
	}
	if repos.Products, err = firestorerepo.NewProductRepository(provider); err != nil {
		return repos, fmt.Errorf("build product repository: %w", err)
	}
	if repos.Pharmacies, err = firestorerepo.NewPharmacyRepository(provider); err != nil {
		return repos, fmt.Errorf("build pharmacy repository: %w", err)
	}
	if repos.Coupons, err = firestorerepo.NewCouponRepository(provider); err != nil {
		return repos, fmt.Errorf("build coupon repository: %w", err)
	}
	if repos.Refunds, err = firestorerepo.NewRefundRepository(provider); err != nil {
		return repos, fmt.Errorf("build refund repository: %w", err)
	}
	if repos.EventLogs, err = firestorerepo.NewEventLogRepository(provider); err != nil {
		return repos, fmt.Errorf("build event log repository: %w", err)
	}
	if repos.AuditLogs, err = firestorerepo.NewAuditLogRepository(provider); err != nil {
		return repos, fmt.Errorf("build audit log repository: %w", err)
	}
	if repos.Users, err = firestorerepo.NewUserRepository(provider); err != nil {
		return repos, fmt.Errorf("build user repository: %w", err)
	}
	if repos.Engagement, err = firestorerepo.NewEngagementRepository(provider); err != nil {
		return repos, fmt.Errorf("build engagement repository: %w", err)
	}
	if repos.Mail, err = firestorerepo.NewMailRepository(provider); err != nil {
		return repos, fmt.Errorf("build mail repository: %w", err)
	}
	return repos, nil
}

func registerReactors(dispatcher *events.Dispatcher, repos Repositories, recorder services.Recorder, deps ContainerDeps, eventLogger eventLogFunc) error {
	orderReactor, err := reactors.NewOrderReactor(reactors.OrderReactorDeps{
		Recorder:   recorder,
		Pharmacies: repos.Pharmacies,
		Users:      repos.Users,
		Push:       deps.Push,
		Logger:     eventLogger,
	})
	if err != nil {
		return fmt.Errorf("build order reactor: %w", err)
	}

	pharmacyReactor, err := reactors.NewPharmacyReactor(reactors.PharmacyReactorDeps{
		Recorder:   recorder,
		Pharmacies: repos.Pharmacies,
		Products:   repos.Products,
		Orders:     repos.Orders,
		Users:      repos.Users,
		Mail:       repos.Mail,
		Push:       deps.Push,
		Bus:        dispatcher,
		Logger:     eventLogger,
	})
	if err != nil {
		return fmt.Errorf("build pharmacy reactor: %w", err)
	}

	productReactor, err := reactors.NewProductReactor(reactors.ProductReactorDeps{
		Recorder:         recorder,
		Pharmacies:       repos.Pharmacies,
		Users:            repos.Users,
		Engagement:       repos.Engagement,
		Push:             deps.Push,
		PriceDropPercent: int64(deps.Config.Pricing.PriceDropPercent),
		StockAlertFanOut: deps.Config.Notifications.StockAlertFanOut,
		Logger:           eventLogger,
	})
	if err != nil {
		return fmt.Errorf("build product reactor: %w", err)
	}

	reactors.Register(dispatcher, orderReactor, pharmacyReactor, productReactor)
	return nil
}

func buildServices(repos Repositories, dispatcher *events.Dispatcher, recorder services.Recorder, cfg config.Config, eventLogger eventLogFunc) (Services, error) {
	var svc Services
	svc.Recorder = recorder

	var err error
	if svc.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Orders:          repos.Orders,
		Products:        repos.Products,
		Pharmacies:      repos.Pharmacies,
		Coupons:         repos.Coupons,
		Refunds:         repos.Refunds,
		Events:          dispatcher,
		DefaultShipping: cfg.Pricing.DefaultShippingCost,
		Logger:          eventLogger,
	}); err != nil {
		return svc, fmt.Errorf("build order service: %w", err)
	}

	if svc.Catalog, err = services.NewCatalogService(services.CatalogServiceDeps{
		Products:   repos.Products,
		Pharmacies: repos.Pharmacies,
		Events:     dispatcher,
	}); err != nil {
		return svc, fmt.Errorf("build catalog service: %w", err)
	}

	if svc.Pharmacies, err = services.NewPharmacyService(services.PharmacyServiceDeps{
		Pharmacies: repos.Pharmacies,
		Events:     dispatcher,
	}); err != nil {
		return svc, fmt.Errorf("build pharmacy service: %w", err)
	}

	if svc.Financial, err = services.NewFinancialService(services.FinancialServiceDeps{
		Refunds: repos.Refunds,
		Orders:  repos.Orders,
		Events:  dispatcher,
		Logger:  eventLogger,
	}); err != nil {
		return svc, fmt.Errorf("build financial service: %w", err)
	}

	if svc.Reporting, err = services.NewReportingService(services.ReportingServiceDeps{
		Orders:     repos.Orders,
		Products:   repos.Products,
		Audit:      repos.AuditLogs,
		StatsCache: cache.New[services.MarketplaceStats](cfg.Cache.TTL, cfg.Cache.MaxSize, nil),
	}); err != nil {
		return svc, fmt.Errorf("build reporting service: %w", err)
	}

	return svc, nil
}
