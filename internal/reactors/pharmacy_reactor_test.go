package reactors

import (
	"context"
	"testing"
	"time"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/events"
	"github.com/pharmakart/api/internal/repositories"
)

type stubProductRepo struct {
	activations []bool
	setActive   int
}

func (r *stubProductRepo) Insert(context.Context, domain.Product) error { return nil }
func (r *stubProductRepo) Update(context.Context, domain.Product) error { return nil }
func (r *stubProductRepo) Delete(context.Context, string) error         { return nil }

func (r *stubProductRepo) FindByID(context.Context, string) (domain.Product, error) {
	return domain.Product{}, nil
}

func (r *stubProductRepo) List(context.Context, repositories.ProductListFilter) (domain.Page[domain.Product], error) {
	return domain.Page[domain.Product]{}, nil
}

func (r *stubProductRepo) CountByCategory(context.Context) (map[string]int64, error) {
	return nil, nil
}

func (r *stubProductRepo) SetActiveByPharmacy(_ context.Context, _ string, active bool) (int, error) {
	r.activations = append(r.activations, active)
	return r.setActive, nil
}

type stubOrderRepo struct {
	bulkCancelled  []domain.Order
	cancelReasons  []string
	cancelPharmacy []string
}

func (r *stubOrderRepo) InsertWithStockDecrement(context.Context, domain.Order) error { return nil }

func (r *stubOrderRepo) UpdateWithStockRestore(context.Context, domain.Order, []repositories.StockLine) error {
	return nil
}

func (r *stubOrderRepo) Update(context.Context, domain.Order) error { return nil }

func (r *stubOrderRepo) FindByID(context.Context, string) (domain.Order, error) {
	return domain.Order{}, nil
}

func (r *stubOrderRepo) List(context.Context, repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	return domain.Page[domain.Order]{}, nil
}

func (r *stubOrderRepo) ListOpenByPharmacy(context.Context, string) ([]domain.Order, error) {
	return nil, nil
}

func (r *stubOrderRepo) BulkCancelOpenByPharmacy(_ context.Context, pharmacyID, reason string, _ time.Time) ([]domain.Order, error) {
	r.cancelPharmacy = append(r.cancelPharmacy, pharmacyID)
	r.cancelReasons = append(r.cancelReasons, reason)
	return r.bulkCancelled, nil
}

func (r *stubOrderRepo) CountByStatus(context.Context, repositories.OrderListFilter) (map[domain.OrderStatus]int64, error) {
	return nil, nil
}

type stubMailRepo struct {
	enqueued []domain.MailMessage
}

func (r *stubMailRepo) Enqueue(_ context.Context, message domain.MailMessage) error {
	r.enqueued = append(r.enqueued, message)
	return nil
}

type stubBus struct {
	published []events.Event
}

func (b *stubBus) Publish(_ context.Context, event events.Event) []events.ReactionResult {
	b.published = append(b.published, event)
	return nil
}

func cancelledOrder(id string, previous domain.OrderStatus, at time.Time) domain.Order {
	return domain.Order{
		ID:           id,
		CustomerID:   "usr_" + id,
		PharmacyID:   "pha_1",
		Status:       domain.OrderStatusCancelled,
		CancelReason: "pharmacy suspended",
		StatusHistory: []domain.StatusHistoryEntry{{
			Status:    domain.OrderStatusCancelled,
			Previous:  previous,
			Timestamp: at,
			Actor:     "system",
			Notes:     "pharmacy suspended",
		}},
		UpdatedAt: at,
	}
}

type pharmacyReactorFixture struct {
	reactor    *PharmacyReactor
	recorder   *stubRecorder
	pharmacies *stubPharmacyRepo
	products   *stubProductRepo
	orders     *stubOrderRepo
	mail       *stubMailRepo
	bus        *stubBus
}

func newPharmacyReactorFixture(t *testing.T) *pharmacyReactorFixture {
	t.Helper()

	at := time.Date(2026, 2, 1, 11, 0, 0, 0, time.UTC)
	fixture := &pharmacyReactorFixture{
		recorder:   &stubRecorder{},
		pharmacies: &stubPharmacyRepo{},
		products:   &stubProductRepo{setActive: 3},
		orders: &stubOrderRepo{bulkCancelled: []domain.Order{
			cancelledOrder("ord_1", domain.OrderStatusPending, at),
			cancelledOrder("ord_2", domain.OrderStatusProcessing, at),
		}},
		mail: &stubMailRepo{},
		bus:  &stubBus{},
	}

	reactor, err := NewPharmacyReactor(PharmacyReactorDeps{
		Recorder:   fixture.recorder,
		Pharmacies: fixture.pharmacies,
		Products:   fixture.products,
		Orders:     fixture.orders,
		Mail:       fixture.mail,
		Bus:        fixture.bus,
	})
	if err != nil {
		t.Fatalf("NewPharmacyReactor: %v", err)
	}
	fixture.reactor = reactor
	return fixture
}

func reactorPharmacy(status domain.PharmacyStatus) domain.Pharmacy {
	return domain.Pharmacy{
		ID:     "pha_1",
		Name:   "Central Pharmacy",
		Email:  "central@example.com",
		Status: status,
	}
}

func TestPharmacyReactorSuspensionCancelsOpenOrders(t *testing.T) {
	fixture := newPharmacyReactorFixture(t)

	result := fixture.reactor.HandlePharmacyStatusChanged(context.Background(), events.PharmacyStatusChanged{
		Pharmacy: reactorPharmacy(domain.PharmacyStatusSuspended),
		Previous: domain.PharmacyStatusApproved,
		Actor:    "adm_1",
		At:       time.Date(2026, 2, 1, 11, 0, 0, 0, time.UTC),
	})

	if !result.Success {
		t.Fatalf("reaction failed: %v", result.Err)
	}
	if result.Action != domain.AuditActionPharmacySuspended {
		t.Fatalf("unexpected action: %s", result.Action)
	}
	if len(fixture.products.activations) != 1 || fixture.products.activations[0] {
		t.Fatalf("expected catalog deactivation, got %+v", fixture.products.activations)
	}
	if len(fixture.orders.cancelPharmacy) != 1 || fixture.orders.cancelPharmacy[0] != "pha_1" {
		t.Fatalf("expected bulk cancel for pha_1, got %+v", fixture.orders.cancelPharmacy)
	}
	if fixture.orders.cancelReasons[0] != "pharmacy suspended" {
		t.Fatalf("unexpected cancel reason: %s", fixture.orders.cancelReasons[0])
	}

	if len(fixture.bus.published) != 2 {
		t.Fatalf("expected a status-changed event per cancelled order, got %d", len(fixture.bus.published))
	}
	first, ok := fixture.bus.published[0].(events.OrderStatusChanged)
	if !ok {
		t.Fatalf("published %T, want OrderStatusChanged", fixture.bus.published[0])
	}
	if first.Order.ID != "ord_1" || first.Order.Status != domain.OrderStatusCancelled {
		t.Fatalf("unexpected first event order: %+v", first.Order)
	}
	if first.Previous != domain.OrderStatusPending || first.Actor != "system" {
		t.Fatalf("unexpected first event: previous=%s actor=%s", first.Previous, first.Actor)
	}
	second := fixture.bus.published[1].(events.OrderStatusChanged)
	if second.Order.ID != "ord_2" || second.Previous != domain.OrderStatusProcessing {
		t.Fatalf("unexpected second event: order=%s previous=%s", second.Order.ID, second.Previous)
	}
}

func TestPharmacyReactorApprovalActivatesCatalog(t *testing.T) {
	fixture := newPharmacyReactorFixture(t)

	result := fixture.reactor.HandlePharmacyStatusChanged(context.Background(), events.PharmacyStatusChanged{
		Pharmacy: reactorPharmacy(domain.PharmacyStatusApproved),
		Previous: domain.PharmacyStatusPending,
		Actor:    "adm_1",
		At:       time.Now().UTC(),
	})

	if !result.Success {
		t.Fatalf("reaction failed: %v", result.Err)
	}
	if len(fixture.products.activations) != 1 || !fixture.products.activations[0] {
		t.Fatalf("expected catalog activation, got %+v", fixture.products.activations)
	}
	if len(fixture.pharmacies.deltas) != 1 || fixture.pharmacies.deltas[0].ActiveProducts != 3 {
		t.Fatalf("unexpected stats deltas: %+v", fixture.pharmacies.deltas)
	}
	if len(fixture.orders.cancelPharmacy) != 0 {
		t.Fatal("approval must not cancel orders")
	}
}

func TestPharmacyReactorRejectionQueuesMail(t *testing.T) {
	fixture := newPharmacyReactorFixture(t)

	result := fixture.reactor.HandlePharmacyStatusChanged(context.Background(), events.PharmacyStatusChanged{
		Pharmacy: reactorPharmacy(domain.PharmacyStatusRejected),
		Previous: domain.PharmacyStatusPending,
		Actor:    "adm_1",
		At:       time.Date(2026, 2, 1, 11, 0, 0, 0, time.UTC),
	})

	if !result.Success {
		t.Fatalf("reaction failed: %v", result.Err)
	}
	if len(fixture.mail.enqueued) != 1 {
		t.Fatalf("expected 1 queued mail, got %d", len(fixture.mail.enqueued))
	}
	message := fixture.mail.enqueued[0]
	if message.To != "central@example.com" || message.Status != domain.MailStatusPending {
		t.Fatalf("unexpected mail: %+v", message)
	}
}

func TestPharmacyReactorNoOpOnRedelivery(t *testing.T) {
	fixture := newPharmacyReactorFixture(t)

	result := fixture.reactor.HandlePharmacyStatusChanged(context.Background(), events.PharmacyStatusChanged{
		Pharmacy: reactorPharmacy(domain.PharmacyStatusApproved),
		Previous: domain.PharmacyStatusApproved,
	})

	if !result.Success {
		t.Fatalf("reaction failed: %v", result.Err)
	}
	if len(fixture.recorder.events) != 0 || len(fixture.products.activations) != 0 {
		t.Fatal("redelivery must be a no-op")
	}
}

func TestPharmacyReactorCreatedRejectsBadEmail(t *testing.T) {
	fixture := newPharmacyReactorFixture(t)

	pharmacy := reactorPharmacy(domain.PharmacyStatusPending)
	pharmacy.Email = "not-an-email"
	result := fixture.reactor.HandlePharmacyCreated(context.Background(), events.PharmacyCreated{
		Pharmacy: pharmacy,
		At:       time.Now().UTC(),
	})

	if result.Success {
		t.Fatal("expected failure for invalid email")
	}
}
