package reactors

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/events"
	"github.com/pharmakart/api/internal/platform/push"
	"github.com/pharmakart/api/internal/repositories"
	"github.com/pharmakart/api/internal/services"
)

var pharmacyStatusAuditActions = map[domain.PharmacyStatus]domain.AuditAction{
	domain.PharmacyStatusApproved:  domain.AuditActionPharmacyApproved,
	domain.PharmacyStatusSuspended: domain.AuditActionPharmacySuspended,
	domain.PharmacyStatusRejected:  domain.AuditActionPharmacyRejected,
	domain.PharmacyStatusInactive:  domain.AuditActionPharmacyDisabled,
}

var pharmacyStatusMessages = map[domain.PharmacyStatus]string{
	domain.PharmacyStatusApproved:  "Your pharmacy has been approved. You can now receive orders.",
	domain.PharmacyStatusSuspended: "Your pharmacy has been suspended. Open orders were cancelled.",
	domain.PharmacyStatusRejected:  "Your pharmacy application has been rejected.",
	domain.PharmacyStatusInactive:  "Your pharmacy has been deactivated.",
}

// PharmacyReactorDeps bundles collaborators required to construct the pharmacy reactor.
type PharmacyReactorDeps struct {
	Recorder   services.Recorder
	Pharmacies repositories.PharmacyRepository
	Products   repositories.ProductRepository
	Orders     repositories.OrderRepository
	Users      repositories.UserRepository
	Mail       repositories.MailRepository
	Push       PushSender
	// Bus republishes an OrderStatusChanged event for every order a
	// suspension cancels, so bulk cancellations flow through the same
	// notifications, logs and counters as a single cancellation.
	Bus    events.Publisher
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// PharmacyReactor reacts to pharmacy registration and lifecycle transitions:
// admin notification, catalog (de)activation, bulk order cancellation and the
// rejection email.
type PharmacyReactor struct {
	recorder   services.Recorder
	pharmacies repositories.PharmacyRepository
	products   repositories.ProductRepository
	orders     repositories.OrderRepository
	users      repositories.UserRepository
	mailQueue  repositories.MailRepository
	push       PushSender
	bus        events.Publisher
	logger     func(context.Context, string, map[string]any)
}

func NewPharmacyReactor(deps PharmacyReactorDeps) (*PharmacyReactor, error) {
	if deps.Recorder == nil {
		return nil, errors.New("pharmacy reactor: recorder is required")
	}
	if deps.Pharmacies == nil {
		return nil, errors.New("pharmacy reactor: pharmacy repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("pharmacy reactor: product repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("pharmacy reactor: order repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PharmacyReactor{
		recorder:   deps.Recorder,
		pharmacies: deps.Pharmacies,
		products:   deps.Products,
		orders:     deps.Orders,
		users:      deps.Users,
		mailQueue:  deps.Mail,
		push:       deps.Push,
		bus:        deps.Bus,
		logger:     logger,
	}, nil
}

func (r *PharmacyReactor) HandlePharmacyCreated(ctx context.Context, event events.Event) events.ReactionResult {
	created, ok := event.(events.PharmacyCreated)
	if !ok {
		return failure(ctx, r.recorder, event, fmt.Errorf("unexpected payload %T", event))
	}
	pharmacy := created.Pharmacy
	if strings.TrimSpace(pharmacy.Name) == "" {
		return failure(ctx, r.recorder, event, errors.New("pharmacy event missing name"))
	}
	if _, err := mail.ParseAddress(pharmacy.Email); err != nil {
		return failure(ctx, r.recorder, event, fmt.Errorf("pharmacy event has invalid email: %w", err))
	}

	r.recorder.RecordEvent(ctx, domain.EventLogEntry{
		Type:       events.NamePharmacyCreated,
		Severity:   domain.EventSeverityInfo,
		EntityType: "pharmacy",
		EntityID:   pharmacy.ID,
		Message:    fmt.Sprintf("pharmacy %s registered", pharmacy.Name),
		Metadata:   map[string]any{"email": pharmacy.Email},
		CreatedAt:  created.At,
	})
	r.recorder.RecordAudit(ctx, domain.AuditLogEntry{
		Action:     domain.AuditActionPharmacyCreated,
		Actor:      pharmacy.Email,
		ActorType:  "pharmacy",
		EntityType: "pharmacy",
		EntityID:   pharmacy.ID,
		Severity:   domain.EventSeverityInfo,
		CreatedAt:  created.At,
	})

	r.notifyAdmins(ctx, push.Notification{
		Title: "New pharmacy registration",
		Body:  fmt.Sprintf("%s is awaiting review.", pharmacy.Name),
		Data:  map[string]string{"pharmacyId": pharmacy.ID, "type": events.NamePharmacyCreated},
	})

	return success(event, domain.AuditActionPharmacyCreated)
}

func (r *PharmacyReactor) HandlePharmacyStatusChanged(ctx context.Context, event events.Event) events.ReactionResult {
	changed, ok := event.(events.PharmacyStatusChanged)
	if !ok {
		return failure(ctx, r.recorder, event, fmt.Errorf("unexpected payload %T", event))
	}
	if changed.Previous == changed.Pharmacy.Status {
		return success(event, "")
	}
	pharmacy := changed.Pharmacy

	severity := domain.EventSeverityInfo
	switch pharmacy.Status {
	case domain.PharmacyStatusSuspended, domain.PharmacyStatusRejected:
		severity = domain.EventSeverityWarning
	}
	r.recorder.RecordEvent(ctx, domain.EventLogEntry{
		Type:       events.NamePharmacyStatusChanged,
		Severity:   severity,
		EntityType: "pharmacy",
		EntityID:   pharmacy.ID,
		Message:    fmt.Sprintf("pharmacy %s moved %s to %s", pharmacy.ID, changed.Previous, pharmacy.Status),
		Metadata: map[string]any{
			"previous": string(changed.Previous),
			"current":  string(pharmacy.Status),
			"actor":    changed.Actor,
		},
		CreatedAt: changed.At,
	})

	action, audited := pharmacyStatusAuditActions[pharmacy.Status]
	if audited {
		r.recorder.RecordAudit(ctx, domain.AuditLogEntry{
			Action:     action,
			Actor:      changed.Actor,
			ActorType:  "admin",
			EntityType: "pharmacy",
			EntityID:   pharmacy.ID,
			Severity:   severity,
			Details: map[string]any{
				"previous": string(changed.Previous),
				"current":  string(pharmacy.Status),
			},
			CreatedAt: changed.At,
		})
	}

	if message, ok := pharmacyStatusMessages[pharmacy.Status]; ok {
		notifyPharmacy(ctx, r.push, r.pharmacies, pharmacy, push.Notification{
			Title: "Pharmacy status update",
			Body:  message,
			Data:  map[string]string{"pharmacyId": pharmacy.ID, "status": string(pharmacy.Status)},
		}, r.logger)
	}

	switch pharmacy.Status {
	case domain.PharmacyStatusApproved:
		if err := r.activateCatalog(ctx, pharmacy, true); err != nil {
			return failure(ctx, r.recorder, event, err)
		}
	case domain.PharmacyStatusSuspended:
		if err := r.activateCatalog(ctx, pharmacy, false); err != nil {
			return failure(ctx, r.recorder, event, err)
		}
		cancelled, err := r.orders.BulkCancelOpenByPharmacy(ctx, pharmacy.ID, "pharmacy suspended", changed.At)
		if err != nil {
			return failure(ctx, r.recorder, event, fmt.Errorf("bulk cancel orders: %w", err))
		}
		if len(cancelled) > 0 {
			r.logger(ctx, "pharmacy.orders.bulk_cancelled", map[string]any{
				"pharmacy": pharmacy.ID,
				"count":    len(cancelled),
			})
		}
		r.publishCancellations(ctx, cancelled, changed.At)
	case domain.PharmacyStatusRejected:
		r.sendRejectionMail(ctx, pharmacy, changed)
	}

	return success(event, action)
}

// publishCancellations feeds each bulk-cancelled order back through the
// order reaction path: customer notification, event and audit logs, and the
// pending/cancelled counter adjustments.
func (r *PharmacyReactor) publishCancellations(ctx context.Context, cancelled []domain.Order, at time.Time) {
	if r.bus == nil {
		return
	}
	for _, order := range cancelled {
		previous := domain.OrderStatusPending
		if n := len(order.StatusHistory); n > 0 {
			previous = order.StatusHistory[n-1].Previous
		}
		r.bus.Publish(ctx, events.OrderStatusChanged{
			Order:    order,
			Previous: previous,
			Actor:    "system",
			At:       at,
		})
	}
}

func (r *PharmacyReactor) activateCatalog(ctx context.Context, pharmacy domain.Pharmacy, active bool) error {
	updated, err := r.products.SetActiveByPharmacy(ctx, pharmacy.ID, active)
	if err != nil {
		return fmt.Errorf("set catalog active=%t: %w", active, err)
	}
	if updated == 0 {
		return nil
	}
	delta := repositories.StatsDelta{ActiveProducts: int64(updated)}
	if !active {
		delta.ActiveProducts = -int64(updated)
	}
	if err := r.pharmacies.ApplyStatsDelta(ctx, pharmacy.ID, delta); err != nil {
		return fmt.Errorf("update pharmacy stats: %w", err)
	}
	return nil
}

func (r *PharmacyReactor) sendRejectionMail(ctx context.Context, pharmacy domain.Pharmacy, changed events.PharmacyStatusChanged) {
	if r.mailQueue == nil {
		return
	}
	message := domain.MailMessage{
		To:      pharmacy.Email,
		Subject: "Your pharmacy application",
		Body: fmt.Sprintf("Hello %s,\n\nYour pharmacy application was not approved. "+
			"Reply to this email if you believe this is a mistake.\n", pharmacy.Name),
		Status:    domain.MailStatusPending,
		CreatedAt: changed.At,
	}
	message.ID = "mail_" + pharmacy.ID + "_" + changed.At.UTC().Format("20060102150405")
	if err := r.mailQueue.Enqueue(ctx, message); err != nil {
		r.logger(ctx, "mail.enqueue.failed", map[string]any{
			"pharmacy": pharmacy.ID,
			"error":    err.Error(),
		})
	}
}

func (r *PharmacyReactor) notifyAdmins(ctx context.Context, note push.Notification) {
	if r.push == nil || r.users == nil {
		return
	}
	admins, err := r.users.ListActiveAdmins(ctx)
	if err != nil {
		r.logger(ctx, "push.admin.lookup.failed", map[string]any{"error": err.Error()})
		return
	}
	notifyUsers(ctx, r.push, r.users, admins, note, 0, r.logger)
}
