package reactors

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/events"
	"github.com/pharmakart/api/internal/platform/push"
	"github.com/pharmakart/api/internal/repositories"
)

type stubRecorder struct {
	events []domain.EventLogEntry
	audits []domain.AuditLogEntry
}

func (r *stubRecorder) RecordEvent(_ context.Context, entry domain.EventLogEntry) {
	r.events = append(r.events, entry)
}

func (r *stubRecorder) RecordAudit(_ context.Context, entry domain.AuditLogEntry) {
	r.audits = append(r.audits, entry)
}

type stubPharmacyRepo struct {
	pharmacy      domain.Pharmacy
	deltas        []repositories.StatsDelta
	prunedTokens  [][]string
	findByIDCalls int
}

func (r *stubPharmacyRepo) Insert(context.Context, domain.Pharmacy) error { return nil }
func (r *stubPharmacyRepo) Update(context.Context, domain.Pharmacy) error { return nil }

func (r *stubPharmacyRepo) FindByID(context.Context, string) (domain.Pharmacy, error) {
	r.findByIDCalls++
	return r.pharmacy, nil
}

func (r *stubPharmacyRepo) List(context.Context, repositories.PharmacyListFilter) (domain.Page[domain.Pharmacy], error) {
	return domain.Page[domain.Pharmacy]{}, nil
}

func (r *stubPharmacyRepo) ApplyStatsDelta(_ context.Context, _ string, delta repositories.StatsDelta) error {
	r.deltas = append(r.deltas, delta)
	return nil
}

func (r *stubPharmacyRepo) RemoveDeviceTokens(_ context.Context, _ string, tokens []string) error {
	r.prunedTokens = append(r.prunedTokens, tokens)
	return nil
}

type stubUserRepo struct {
	users        map[string]domain.User
	prunedTokens map[string][]string
}

func (r *stubUserRepo) FindByID(_ context.Context, userID string) (domain.User, error) {
	return r.users[userID], nil
}

func (r *stubUserRepo) ListByIDs(_ context.Context, userIDs []string) ([]domain.User, error) {
	out := make([]domain.User, 0, len(userIDs))
	for _, id := range userIDs {
		if user, ok := r.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

func (r *stubUserRepo) ListActiveAdmins(context.Context) ([]domain.User, error) {
	return nil, nil
}

func (r *stubUserRepo) RemoveDeviceTokens(_ context.Context, userID string, tokens []string) error {
	if r.prunedTokens == nil {
		r.prunedTokens = make(map[string][]string)
	}
	r.prunedTokens[userID] = append(r.prunedTokens[userID], tokens...)
	return nil
}

type stubPushSender struct {
	sent   []push.Notification
	tokens [][]string
	report push.Report
}

func (s *stubPushSender) Send(_ context.Context, tokens []string, n push.Notification) (push.Report, error) {
	s.sent = append(s.sent, n)
	s.tokens = append(s.tokens, tokens)
	return s.report, nil
}

func reactorOrder() domain.Order {
	return domain.Order{
		ID:         "ord_1",
		CustomerID: "usr_1",
		PharmacyID: "pha_1",
		Items:      []domain.OrderItem{{ProductID: "prd_1", Quantity: 1, UnitPrice: decimal.RequireFromString("12.00")}},
		Total:      decimal.RequireFromString("12.00"),
		Status:     domain.OrderStatusPending,
	}
}

func TestOrderReactorHandlesOrderCreated(t *testing.T) {
	recorder := &stubRecorder{}
	pharmacies := &stubPharmacyRepo{pharmacy: domain.Pharmacy{ID: "pha_1", DeviceTokens: []string{"tok-1"}}}
	sender := &stubPushSender{}

	reactor, err := NewOrderReactor(OrderReactorDeps{
		Recorder:   recorder,
		Pharmacies: pharmacies,
		Push:       sender,
	})
	if err != nil {
		t.Fatalf("NewOrderReactor: %v", err)
	}

	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	result := reactor.HandleOrderCreated(context.Background(), events.OrderCreated{Order: reactorOrder(), At: at})

	if !result.Success {
		t.Fatalf("reaction failed: %v", result.Err)
	}
	if result.Action != domain.AuditActionOrderCreated {
		t.Fatalf("unexpected action: %s", result.Action)
	}
	if len(recorder.events) != 1 || recorder.events[0].EntityID != "ord_1" {
		t.Fatalf("unexpected event log entries: %+v", recorder.events)
	}
	if len(recorder.audits) != 1 || recorder.audits[0].Actor != "usr_1" {
		t.Fatalf("unexpected audit entries: %+v", recorder.audits)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 push, got %d", len(sender.sent))
	}
	if len(pharmacies.deltas) != 1 {
		t.Fatalf("expected 1 stats delta, got %d", len(pharmacies.deltas))
	}
	delta := pharmacies.deltas[0]
	if delta.TotalOrders != 1 || delta.PendingOrders != 1 || !delta.TotalRevenue.Equal(decimal.RequireFromString("12.00")) {
		t.Fatalf("unexpected delta: %+v", delta)
	}
}

func TestOrderReactorStatusChangedNoOpOnRedelivery(t *testing.T) {
	recorder := &stubRecorder{}
	pharmacies := &stubPharmacyRepo{}

	reactor, err := NewOrderReactor(OrderReactorDeps{Recorder: recorder, Pharmacies: pharmacies})
	if err != nil {
		t.Fatalf("NewOrderReactor: %v", err)
	}

	order := reactorOrder()
	order.Status = domain.OrderStatusConfirmed
	result := reactor.HandleOrderStatusChanged(context.Background(), events.OrderStatusChanged{
		Order:    order,
		Previous: domain.OrderStatusConfirmed,
	})

	if !result.Success {
		t.Fatalf("reaction failed: %v", result.Err)
	}
	if len(recorder.events) != 0 || len(recorder.audits) != 0 {
		t.Fatalf("expected no log entries for redelivery, got %d/%d", len(recorder.events), len(recorder.audits))
	}
	if len(pharmacies.deltas) != 0 {
		t.Fatalf("expected no stats delta, got %d", len(pharmacies.deltas))
	}
}

func TestOrderReactorDeliveredTransition(t *testing.T) {
	recorder := &stubRecorder{}
	pharmacies := &stubPharmacyRepo{}
	users := &stubUserRepo{users: map[string]domain.User{
		"usr_1": {ID: "usr_1", DeviceTokens: []string{"tok-u1"}},
	}}
	sender := &stubPushSender{}

	reactor, err := NewOrderReactor(OrderReactorDeps{
		Recorder:   recorder,
		Pharmacies: pharmacies,
		Users:      users,
		Push:       sender,
	})
	if err != nil {
		t.Fatalf("NewOrderReactor: %v", err)
	}

	order := reactorOrder()
	order.Status = domain.OrderStatusDelivered
	result := reactor.HandleOrderStatusChanged(context.Background(), events.OrderStatusChanged{
		Order:    order,
		Previous: domain.OrderStatusShipped,
		Actor:    "pha_1",
		At:       time.Date(2026, 2, 3, 16, 0, 0, 0, time.UTC),
	})

	if !result.Success {
		t.Fatalf("reaction failed: %v", result.Err)
	}
	if result.Action != domain.AuditActionOrderDelivered {
		t.Fatalf("unexpected action: %s", result.Action)
	}
	if len(sender.sent) != 1 || len(sender.tokens[0]) != 1 || sender.tokens[0][0] != "tok-u1" {
		t.Fatalf("expected customer push, got %+v", sender.tokens)
	}
	if len(pharmacies.deltas) != 1 {
		t.Fatalf("expected 1 stats delta, got %d", len(pharmacies.deltas))
	}
	delta := pharmacies.deltas[0]
	if delta.CompletedOrders != 1 || delta.PendingOrders != -1 {
		t.Fatalf("unexpected delta: %+v", delta)
	}
}

func TestOrderReactorRejectsWrongPayload(t *testing.T) {
	recorder := &stubRecorder{}
	reactor, err := NewOrderReactor(OrderReactorDeps{Recorder: recorder, Pharmacies: &stubPharmacyRepo{}})
	if err != nil {
		t.Fatalf("NewOrderReactor: %v", err)
	}

	result := reactor.HandleOrderCreated(context.Background(), events.ProductCreated{})

	if result.Success {
		t.Fatal("expected failure for wrong payload type")
	}
	if len(recorder.events) != 1 || recorder.events[0].Type != "SYSTEM_ERROR" {
		t.Fatalf("expected SYSTEM_ERROR entry, got %+v", recorder.events)
	}
}

func TestOrderReactorPrunesInvalidPharmacyTokens(t *testing.T) {
	recorder := &stubRecorder{}
	pharmacies := &stubPharmacyRepo{pharmacy: domain.Pharmacy{
		ID:           "pha_1",
		DeviceTokens: []string{"tok-good", "tok-stale"},
	}}
	sender := &stubPushSender{report: push.Report{SuccessCount: 1, FailureCount: 1, InvalidTokens: []string{"tok-stale"}}}

	reactor, err := NewOrderReactor(OrderReactorDeps{
		Recorder:   recorder,
		Pharmacies: pharmacies,
		Push:       sender,
	})
	if err != nil {
		t.Fatalf("NewOrderReactor: %v", err)
	}

	result := reactor.HandleOrderCreated(context.Background(), events.OrderCreated{Order: reactorOrder()})
	if !result.Success {
		t.Fatalf("reaction failed: %v", result.Err)
	}
	if len(pharmacies.prunedTokens) != 1 || pharmacies.prunedTokens[0][0] != "tok-stale" {
		t.Fatalf("expected stale token pruned, got %+v", pharmacies.prunedTokens)
	}
}
