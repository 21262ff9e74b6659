package reactors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/events"
	"github.com/pharmakart/api/internal/platform/push"
	"github.com/pharmakart/api/internal/repositories"
	"github.com/pharmakart/api/internal/services"
)

var orderStatusAuditActions = map[domain.OrderStatus]domain.AuditAction{
	domain.OrderStatusConfirmed:  domain.AuditActionOrderConfirmed,
	domain.OrderStatusProcessing: domain.AuditActionOrderProcessing,
	domain.OrderStatusShipped:    domain.AuditActionOrderShipped,
	domain.OrderStatusDelivered:  domain.AuditActionOrderDelivered,
	domain.OrderStatusCancelled:  domain.AuditActionOrderCancelled,
	domain.OrderStatusRefunded:   domain.AuditActionOrderRefunded,
}

var orderStatusCustomerMessages = map[domain.OrderStatus]string{
	domain.OrderStatusConfirmed:  "Your order has been confirmed by the pharmacy.",
	domain.OrderStatusProcessing: "Your order is being prepared.",
	domain.OrderStatusShipped:    "Your order is on its way.",
	domain.OrderStatusDelivered:  "Your order has been delivered.",
	domain.OrderStatusCancelled:  "Your order has been cancelled.",
	domain.OrderStatusRefunded:   "Your order has been refunded.",
}

// OrderReactorDeps bundles collaborators required to construct the order reactor.
type OrderReactorDeps struct {
	Recorder   services.Recorder
	Pharmacies repositories.PharmacyRepository
	Users      repositories.UserRepository
	Push       PushSender
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// OrderReactor maintains logs, notifications and pharmacy counters for order
// lifecycle events.
type OrderReactor struct {
	recorder   services.Recorder
	pharmacies repositories.PharmacyRepository
	users      repositories.UserRepository
	push       PushSender
	logger     func(context.Context, string, map[string]any)
}

func NewOrderReactor(deps OrderReactorDeps) (*OrderReactor, error) {
	if deps.Recorder == nil {
		return nil, errors.New("order reactor: recorder is required")
	}
	if deps.Pharmacies == nil {
		return nil, errors.New("order reactor: pharmacy repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &OrderReactor{
		recorder:   deps.Recorder,
		pharmacies: deps.Pharmacies,
		users:      deps.Users,
		push:       deps.Push,
		logger:     logger,
	}, nil
}

func (r *OrderReactor) HandleOrderCreated(ctx context.Context, event events.Event) events.ReactionResult {
	created, ok := event.(events.OrderCreated)
	if !ok {
		return failure(ctx, r.recorder, event, fmt.Errorf("unexpected payload %T", event))
	}
	order := created.Order
	if strings.TrimSpace(order.CustomerID) == "" || strings.TrimSpace(order.PharmacyID) == "" {
		return failure(ctx, r.recorder, event, errors.New("order event missing customer or pharmacy id"))
	}

	r.recorder.RecordEvent(ctx, domain.EventLogEntry{
		Type:       events.NameOrderCreated,
		Severity:   domain.EventSeverityInfo,
		EntityType: "order",
		EntityID:   order.ID,
		Message:    fmt.Sprintf("order %s created for pharmacy %s", order.ID, order.PharmacyID),
		Metadata: map[string]any{
			"customer_id": order.CustomerID,
			"pharmacy_id": order.PharmacyID,
			"total":       order.Total.String(),
			"items":       len(order.Items),
		},
		CreatedAt: created.At,
	})
	r.recorder.RecordAudit(ctx, domain.AuditLogEntry{
		Action:     domain.AuditActionOrderCreated,
		Actor:      order.CustomerID,
		ActorType:  "customer",
		EntityType: "order",
		EntityID:   order.ID,
		Severity:   domain.EventSeverityInfo,
		Details:    map[string]any{"total": order.Total.String()},
		CreatedAt:  created.At,
	})

	pharmacy, err := r.pharmacies.FindByID(ctx, order.PharmacyID)
	if err != nil {
		return failure(ctx, r.recorder, event, fmt.Errorf("load pharmacy %s: %w", order.PharmacyID, err))
	}

	notifyPharmacy(ctx, r.push, r.pharmacies, pharmacy, push.Notification{
		Title: "New order received",
		Body:  fmt.Sprintf("Order %s: %d item(s), total %s", order.ID, len(order.Items), order.Total.StringFixed(2)),
		Data:  map[string]string{"orderId": order.ID, "type": events.NameOrderCreated},
	}, r.logger)

	if err := r.pharmacies.ApplyStatsDelta(ctx, order.PharmacyID, repositories.StatsDelta{
		TotalOrders:   1,
		PendingOrders: 1,
		TotalRevenue:  order.Total,
	}); err != nil {
		return failure(ctx, r.recorder, event, fmt.Errorf("update pharmacy stats: %w", err))
	}

	return success(event, domain.AuditActionOrderCreated)
}

func (r *OrderReactor) HandleOrderStatusChanged(ctx context.Context, event events.Event) events.ReactionResult {
	changed, ok := event.(events.OrderStatusChanged)
	if !ok {
		return failure(ctx, r.recorder, event, fmt.Errorf("unexpected payload %T", event))
	}
	if changed.Previous == changed.Order.Status {
		// Redelivered or no-op transition.
		return success(event, "")
	}
	order := changed.Order

	severity := domain.EventSeverityInfo
	if order.Status == domain.OrderStatusCancelled {
		severity = domain.EventSeverityWarning
	}
	r.recorder.RecordEvent(ctx, domain.EventLogEntry{
		Type:       events.NameOrderStatusChanged,
		Severity:   severity,
		EntityType: "order",
		EntityID:   order.ID,
		Message:    fmt.Sprintf("order %s moved %s to %s", order.ID, changed.Previous, order.Status),
		Metadata: map[string]any{
			"previous": string(changed.Previous),
			"current":  string(order.Status),
			"actor":    changed.Actor,
		},
		CreatedAt: changed.At,
	})

	action, audited := orderStatusAuditActions[order.Status]
	if audited {
		r.recorder.RecordAudit(ctx, domain.AuditLogEntry{
			Action:     action,
			Actor:      changed.Actor,
			ActorType:  "user",
			EntityType: "order",
			EntityID:   order.ID,
			Severity:   severity,
			Details: map[string]any{
				"previous": string(changed.Previous),
				"current":  string(order.Status),
			},
			CreatedAt: changed.At,
		})
	}

	r.notifyCustomer(ctx, order)

	delta := statsDeltaForTransition(order.Status)
	if !delta.IsZero() {
		if err := r.pharmacies.ApplyStatsDelta(ctx, order.PharmacyID, delta); err != nil {
			return failure(ctx, r.recorder, event, fmt.Errorf("update pharmacy stats: %w", err))
		}
	}

	return success(event, action)
}

// HandleRefundRequested records the refund request in the event and audit
// logs and alerts the pharmacy.
func (r *OrderReactor) HandleRefundRequested(ctx context.Context, event events.Event) events.ReactionResult {
	requested, ok := event.(events.RefundRequested)
	if !ok {
		return failure(ctx, r.recorder, event, fmt.Errorf("unexpected payload %T", event))
	}
	refund := requested.Refund

	r.recorder.RecordEvent(ctx, domain.EventLogEntry{
		Type:       events.NameRefundRequested,
		Severity:   domain.EventSeverityWarning,
		EntityType: "refund",
		EntityID:   refund.ID,
		Message:    fmt.Sprintf("refund of %s requested for order %s", refund.Amount.StringFixed(2), refund.OrderID),
		Metadata: map[string]any{
			"order_id": refund.OrderID,
			"amount":   refund.Amount.String(),
			"partial":  refund.IsPartialRefund,
		},
		CreatedAt: requested.At,
	})
	r.recorder.RecordAudit(ctx, domain.AuditLogEntry{
		Action:     domain.AuditActionRefundRequested,
		Actor:      refund.RequestedBy,
		ActorType:  "customer",
		EntityType: "refund",
		EntityID:   refund.ID,
		Severity:   domain.EventSeverityWarning,
		Details:    map[string]any{"order_id": refund.OrderID, "amount": refund.Amount.String()},
		CreatedAt:  requested.At,
	})

	pharmacy, err := r.pharmacies.FindByID(ctx, refund.PharmacyID)
	if err != nil {
		return failure(ctx, r.recorder, event, fmt.Errorf("load pharmacy %s: %w", refund.PharmacyID, err))
	}
	notifyPharmacy(ctx, r.push, r.pharmacies, pharmacy, push.Notification{
		Title: "Refund requested",
		Body:  fmt.Sprintf("Refund of %s requested for order %s", refund.Amount.StringFixed(2), refund.OrderID),
		Data:  map[string]string{"refundId": refund.ID, "orderId": refund.OrderID, "type": events.NameRefundRequested},
	}, r.logger)

	return success(event, domain.AuditActionRefundRequested)
}

func (r *OrderReactor) notifyCustomer(ctx context.Context, order domain.Order) {
	if r.push == nil || r.users == nil {
		return
	}
	message, ok := orderStatusCustomerMessages[order.Status]
	if !ok {
		return
	}
	customer, err := r.users.FindByID(ctx, order.CustomerID)
	if err != nil {
		r.logger(ctx, "push.customer.lookup.failed", map[string]any{
			"order": order.ID,
			"user":  order.CustomerID,
			"error": err.Error(),
		})
		return
	}
	notifyUsers(ctx, r.push, r.users, []domain.User{customer}, push.Notification{
		Title: "Order update",
		Body:  message,
		Data: map[string]string{
			"orderId": order.ID,
			"status":  string(order.Status),
			"type":    events.NameOrderStatusChanged,
		},
	}, 0, r.logger)
}

func statsDeltaForTransition(status domain.OrderStatus) repositories.StatsDelta {
	switch status {
	case domain.OrderStatusDelivered:
		return repositories.StatsDelta{CompletedOrders: 1, PendingOrders: -1}
	case domain.OrderStatusCancelled:
		return repositories.StatsDelta{CancelledOrders: 1, PendingOrders: -1}
	default:
		return repositories.StatsDelta{}
	}
}
