// Package reactors holds the event bus subscribers that replace the legacy
// database trigger layer: notification fan-out, event/audit logging and
// denormalised counter maintenance. Reactions are best-effort and tolerate
// redelivery; every failure is recorded as a SYSTEM_ERROR event log entry and
// a failed ReactionResult, never propagated.
package reactors

import (
	"context"

	"github.com/samber/lo"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/events"
	"github.com/pharmakart/api/internal/platform/push"
	"github.com/pharmakart/api/internal/services"
)

const systemErrorEventType = "SYSTEM_ERROR"

// PushSender sends a multicast notification and reports per-token failures.
type PushSender interface {
	Send(ctx context.Context, tokens []string, n push.Notification) (push.Report, error)
}

// Register subscribes every reactor to the dispatcher.
func Register(dispatcher *events.Dispatcher, orders *OrderReactor, pharmacies *PharmacyReactor, products *ProductReactor) {
	if orders != nil {
		dispatcher.Subscribe(events.NameOrderCreated, "order_created", orders.HandleOrderCreated)
		dispatcher.Subscribe(events.NameOrderStatusChanged, "order_status_changed", orders.HandleOrderStatusChanged)
		dispatcher.Subscribe(events.NameRefundRequested, "refund_requested", orders.HandleRefundRequested)
	}
	if pharmacies != nil {
		dispatcher.Subscribe(events.NamePharmacyCreated, "pharmacy_created", pharmacies.HandlePharmacyCreated)
		dispatcher.Subscribe(events.NamePharmacyStatusChanged, "pharmacy_status_changed", pharmacies.HandlePharmacyStatusChanged)
	}
	if products != nil {
		dispatcher.Subscribe(events.NameProductCreated, "product_created", products.HandleProductCreated)
		dispatcher.Subscribe(events.NameProductUpdated, "product_updated", products.HandleProductUpdated)
		dispatcher.Subscribe(events.NameProductDeleted, "product_deleted", products.HandleProductDeleted)
	}
}

// failure records a SYSTEM_ERROR event log entry and returns a failed result.
func failure(ctx context.Context, recorder services.Recorder, event events.Event, err error) events.ReactionResult {
	if recorder != nil {
		recorder.RecordEvent(ctx, domain.EventLogEntry{
			Type:       systemErrorEventType,
			Severity:   domain.EventSeverityError,
			EntityType: event.EntityType(),
			EntityID:   event.EntityID(),
			Message:    err.Error(),
			Metadata:   map[string]any{"event": event.EventName()},
		})
	}
	return events.ReactionResult{
		Event:    event.EventName(),
		EntityID: event.EntityID(),
		Success:  false,
		Err:      err,
	}
}

func success(event events.Event, action domain.AuditAction) events.ReactionResult {
	return events.ReactionResult{
		Event:    event.EventName(),
		EntityID: event.EntityID(),
		Action:   action,
		Success:  true,
	}
}

// notifyPharmacy pushes to the pharmacy's device tokens and prunes the tokens
// FCM reports as invalid. Send failures are swallowed: a push outage must not
// fail the reaction.
func notifyPharmacy(ctx context.Context, sender PushSender, pharmacies interface {
	RemoveDeviceTokens(ctx context.Context, pharmacyID string, tokens []string) error
}, pharmacy domain.Pharmacy, note push.Notification, logger func(context.Context, string, map[string]any)) {
	if sender == nil || len(pharmacy.DeviceTokens) == 0 {
		return
	}
	report, err := sender.Send(ctx, pharmacy.DeviceTokens, note)
	if err != nil {
		logger(ctx, "push.send.failed", map[string]any{
			"pharmacy": pharmacy.ID,
			"error":    err.Error(),
		})
		return
	}
	if len(report.InvalidTokens) > 0 && pharmacies != nil {
		if err := pharmacies.RemoveDeviceTokens(ctx, pharmacy.ID, report.InvalidTokens); err != nil {
			logger(ctx, "push.token.prune.failed", map[string]any{
				"pharmacy": pharmacy.ID,
				"error":    err.Error(),
			})
		}
	}
}

// notifyUsers pushes to a set of users and prunes invalid tokens per owner.
// maxTokens > 0 caps the total fan-out.
func notifyUsers(ctx context.Context, sender PushSender, users interface {
	RemoveDeviceTokens(ctx context.Context, userID string, tokens []string) error
}, targets []domain.User, note push.Notification, maxTokens int, logger func(context.Context, string, map[string]any)) {
	if sender == nil || len(targets) == 0 {
		return
	}

	tokenOwner := make(map[string]string)
	var tokens []string
	for _, user := range targets {
		for _, token := range user.DeviceTokens {
			if _, seen := tokenOwner[token]; seen {
				continue
			}
			tokenOwner[token] = user.ID
			tokens = append(tokens, token)
		}
	}
	if maxTokens > 0 && len(tokens) > maxTokens {
		tokens = tokens[:maxTokens]
	}
	if len(tokens) == 0 {
		return
	}

	report, err := sender.Send(ctx, tokens, note)
	if err != nil {
		logger(ctx, "push.send.failed", map[string]any{
			"recipients": len(tokens),
			"error":      err.Error(),
		})
		return
	}
	if len(report.InvalidTokens) == 0 || users == nil {
		return
	}
	byOwner := lo.GroupBy(report.InvalidTokens, func(token string) string {
		return tokenOwner[token]
	})
	for userID, stale := range byOwner {
		if userID == "" {
			continue
		}
		if err := users.RemoveDeviceTokens(ctx, userID, stale); err != nil {
			logger(ctx, "push.token.prune.failed", map[string]any{
				"user":  userID,
				"error": err.Error(),
			})
		}
	}
}
