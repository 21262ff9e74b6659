package reactors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/events"
	"github.com/pharmakart/api/internal/platform/push"
	"github.com/pharmakart/api/internal/repositories"
	"github.com/pharmakart/api/internal/services"
)

// defaultStockAlertFanOut bounds a single back-in-stock fan-out when no
// limit is configured.
const defaultStockAlertFanOut = 500

// ProductReactorDeps bundles collaborators required to construct the product reactor.
type ProductReactorDeps struct {
	Recorder   services.Recorder
	Pharmacies repositories.PharmacyRepository
	Users      repositories.UserRepository
	Engagement repositories.EngagementRepository
	Push       PushSender
	// PriceDropPercent is the relative price drop that triggers the wishlist
	// fan-out, as a whole percentage.
	PriceDropPercent int64
	// StockAlertFanOut caps the device tokens notified per back-in-stock
	// event. Zero means the default of 500.
	StockAlertFanOut int
	Logger           func(ctx context.Context, event string, fields map[string]any)
}

// ProductReactor keeps catalog counters current and fans out price-drop,
// out-of-stock and back-in-stock notifications.
type ProductReactor struct {
	recorder      services.Recorder
	pharmacies    repositories.PharmacyRepository
	users         repositories.UserRepository
	engagement    repositories.EngagementRepository
	push          PushSender
	dropThreshold decimal.Decimal
	alertFanOut   int
	logger        func(context.Context, string, map[string]any)
}

func NewProductReactor(deps ProductReactorDeps) (*ProductReactor, error) {
	if deps.Recorder == nil {
		return nil, errors.New("product reactor: recorder is required")
	}
	if deps.Pharmacies == nil {
		return nil, errors.New("product reactor: pharmacy repository is required")
	}
	threshold := deps.PriceDropPercent
	if threshold <= 0 {
		threshold = 10
	}
	fanOut := deps.StockAlertFanOut
	if fanOut <= 0 {
		fanOut = defaultStockAlertFanOut
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &ProductReactor{
		recorder:      deps.Recorder,
		pharmacies:    deps.Pharmacies,
		users:         deps.Users,
		engagement:    deps.Engagement,
		push:          deps.Push,
		dropThreshold: decimal.NewFromInt(threshold),
		alertFanOut:   fanOut,
		logger:        logger,
	}, nil
}

func (r *ProductReactor) HandleProductCreated(ctx context.Context, event events.Event) events.ReactionResult {
	created, ok := event.(events.ProductCreated)
	if !ok {
		return failure(ctx, r.recorder, event, fmt.Errorf("unexpected payload %T", event))
	}
	product := created.Product

	r.recordProductEvent(ctx, events.NameProductCreated, product, created.At,
		fmt.Sprintf("product %s created", product.Name))
	r.recorder.RecordAudit(ctx, domain.AuditLogEntry{
		Action:     domain.AuditActionProductCreated,
		Actor:      product.PharmacyID,
		ActorType:  "pharmacy",
		EntityType: "product",
		EntityID:   product.ID,
		Severity:   domain.EventSeverityInfo,
		CreatedAt:  created.At,
	})

	delta := repositories.StatsDelta{TotalProducts: 1}
	if product.Active {
		delta.ActiveProducts = 1
	}
	if err := r.pharmacies.ApplyStatsDelta(ctx, product.PharmacyID, delta); err != nil {
		return failure(ctx, r.recorder, event, fmt.Errorf("update pharmacy stats: %w", err))
	}
	return success(event, domain.AuditActionProductCreated)
}

func (r *ProductReactor) HandleProductDeleted(ctx context.Context, event events.Event) events.ReactionResult {
	deleted, ok := event.(events.ProductDeleted)
	if !ok {
		return failure(ctx, r.recorder, event, fmt.Errorf("unexpected payload %T", event))
	}
	product := deleted.Product

	r.recordProductEvent(ctx, events.NameProductDeleted, product, deleted.At,
		fmt.Sprintf("product %s deleted", product.Name))
	r.recorder.RecordAudit(ctx, domain.AuditLogEntry{
		Action:     domain.AuditActionProductDeleted,
		Actor:      product.PharmacyID,
		ActorType:  "pharmacy",
		EntityType: "product",
		EntityID:   product.ID,
		Severity:   domain.EventSeverityInfo,
		CreatedAt:  deleted.At,
	})

	delta := repositories.StatsDelta{TotalProducts: -1}
	if product.Active {
		delta.ActiveProducts = -1
	}
	if err := r.pharmacies.ApplyStatsDelta(ctx, product.PharmacyID, delta); err != nil {
		return failure(ctx, r.recorder, event, fmt.Errorf("update pharmacy stats: %w", err))
	}
	return success(event, domain.AuditActionProductDeleted)
}

func (r *ProductReactor) HandleProductUpdated(ctx context.Context, event events.Event) events.ReactionResult {
	updated, ok := event.(events.ProductUpdated)
	if !ok {
		return failure(ctx, r.recorder, event, fmt.Errorf("unexpected payload %T", event))
	}
	product := updated.Product
	previous := updated.Previous

	r.recordProductEvent(ctx, events.NameProductUpdated, product, updated.At,
		fmt.Sprintf("product %s updated", product.Name))
	r.recorder.RecordAudit(ctx, domain.AuditLogEntry{
		Action:     domain.AuditActionProductUpdated,
		Actor:      product.PharmacyID,
		ActorType:  "pharmacy",
		EntityType: "product",
		EntityID:   product.ID,
		Severity:   domain.EventSeverityInfo,
		CreatedAt:  updated.At,
	})

	if r.isPriceDrop(previous.Price, product.Price) {
		r.notifyWishlists(ctx, product, previous.Price)
	}
	if previous.Stock > 0 && product.Stock == 0 {
		r.notifyOutOfStock(ctx, product)
	}
	if previous.Stock == 0 && product.Stock > 0 {
		r.notifyBackInStock(ctx, product)
	}

	if previous.Active != product.Active {
		delta := repositories.StatsDelta{ActiveProducts: 1}
		if !product.Active {
			delta.ActiveProducts = -1
		}
		if err := r.pharmacies.ApplyStatsDelta(ctx, product.PharmacyID, delta); err != nil {
			return failure(ctx, r.recorder, event, fmt.Errorf("update pharmacy stats: %w", err))
		}
	}

	return success(event, domain.AuditActionProductUpdated)
}

func (r *ProductReactor) isPriceDrop(before, after decimal.Decimal) bool {
	if !before.IsPositive() || after.GreaterThanOrEqual(before) {
		return false
	}
	dropPercent := before.Sub(after).Div(before).Mul(decimal.NewFromInt(100))
	return dropPercent.GreaterThan(r.dropThreshold)
}

func (r *ProductReactor) notifyWishlists(ctx context.Context, product domain.Product, oldPrice decimal.Decimal) {
	if r.push == nil || r.engagement == nil || r.users == nil {
		return
	}
	userIDs, err := r.engagement.WishlistUserIDs(ctx, product.ID)
	if err != nil {
		r.logger(ctx, "wishlist.lookup.failed", map[string]any{"product": product.ID, "error": err.Error()})
		return
	}
	if len(userIDs) == 0 {
		return
	}
	targets, err := r.users.ListByIDs(ctx, userIDs)
	if err != nil {
		r.logger(ctx, "wishlist.users.failed", map[string]any{"product": product.ID, "error": err.Error()})
		return
	}
	notifyUsers(ctx, r.push, r.users, targets, push.Notification{
		Title: "Price drop",
		Body:  fmt.Sprintf("%s dropped from %s to %s", product.Name, oldPrice.StringFixed(2), product.Price.StringFixed(2)),
		Data:  map[string]string{"productId": product.ID, "type": "price_drop"},
	}, 0, r.logger)
}

func (r *ProductReactor) notifyOutOfStock(ctx context.Context, product domain.Product) {
	if r.push == nil {
		return
	}
	pharmacy, err := r.pharmacies.FindByID(ctx, product.PharmacyID)
	if err != nil {
		r.logger(ctx, "pharmacy.lookup.failed", map[string]any{"product": product.ID, "error": err.Error()})
		return
	}
	notifyPharmacy(ctx, r.push, r.pharmacies, pharmacy, push.Notification{
		Title: "Product out of stock",
		Body:  fmt.Sprintf("%s is out of stock.", product.Name),
		Data:  map[string]string{"productId": product.ID, "type": "out_of_stock"},
	}, r.logger)
}

func (r *ProductReactor) notifyBackInStock(ctx context.Context, product domain.Product) {
	if r.push == nil || r.engagement == nil || r.users == nil {
		return
	}
	userIDs, err := r.engagement.StockAlertUserIDs(ctx, product.ID)
	if err != nil {
		r.logger(ctx, "stock_alert.lookup.failed", map[string]any{"product": product.ID, "error": err.Error()})
		return
	}
	if len(userIDs) == 0 {
		return
	}
	targets, err := r.users.ListByIDs(ctx, userIDs)
	if err != nil {
		r.logger(ctx, "stock_alert.users.failed", map[string]any{"product": product.ID, "error": err.Error()})
		return
	}
	notifyUsers(ctx, r.push, r.users, targets, push.Notification{
		Title: "Back in stock",
		Body:  fmt.Sprintf("%s is available again.", product.Name),
		Data:  map[string]string{"productId": product.ID, "type": "back_in_stock"},
	}, r.alertFanOut, r.logger)

	if err := r.engagement.ClearStockAlerts(ctx, product.ID); err != nil {
		r.logger(ctx, "stock_alert.clear.failed", map[string]any{"product": product.ID, "error": err.Error()})
	}
}

func (r *ProductReactor) recordProductEvent(ctx context.Context, eventType string, product domain.Product, at time.Time, message string) {
	r.recorder.RecordEvent(ctx, domain.EventLogEntry{
		Type:       eventType,
		Severity:   domain.EventSeverityInfo,
		EntityType: "product",
		EntityID:   product.ID,
		Message:    message,
		Metadata: map[string]any{
			"pharmacy_id": product.PharmacyID,
			"price":       product.Price.String(),
			"stock":       product.Stock,
			"active":      product.Active,
		},
		CreatedAt: at,
	})
}
