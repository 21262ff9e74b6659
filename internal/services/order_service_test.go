package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/events"
	"github.com/pharmakart/api/internal/repositories"
)

type notFoundError struct{ err error }

func (e *notFoundError) Error() string       { return e.err.Error() }
func (e *notFoundError) Unwrap() error       { return e.err }
func (e *notFoundError) IsNotFound() bool    { return true }
func (e *notFoundError) IsConflict() bool    { return false }
func (e *notFoundError) IsUnavailable() bool { return false }

type stubOrderRepo struct {
	orders   map[string]domain.Order
	inserted []domain.Order
	restored []repositories.StockLine
	updates  []domain.Order
}

func newStubOrderRepo(orders ...domain.Order) *stubOrderRepo {
	repo := &stubOrderRepo{orders: make(map[string]domain.Order)}
	for _, order := range orders {
		repo.orders[order.ID] = order
	}
	return repo
}

func (r *stubOrderRepo) InsertWithStockDecrement(_ context.Context, order domain.Order) error {
	r.inserted = append(r.inserted, order)
	r.orders[order.ID] = order
	return nil
}

func (r *stubOrderRepo) UpdateWithStockRestore(_ context.Context, order domain.Order, restore []repositories.StockLine) error {
	r.restored = append(r.restored, restore...)
	r.orders[order.ID] = order
	return nil
}

func (r *stubOrderRepo) Update(_ context.Context, order domain.Order) error {
	r.updates = append(r.updates, order)
	r.orders[order.ID] = order
	return nil
}

func (r *stubOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, &notFoundError{err: fmt.Errorf("order %s not found", orderID)}
	}
	return order, nil
}

func (r *stubOrderRepo) List(_ context.Context, _ repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	return domain.Page[domain.Order]{}, nil
}

func (r *stubOrderRepo) ListOpenByPharmacy(_ context.Context, _ string) ([]domain.Order, error) {
	return nil, nil
}

func (r *stubOrderRepo) BulkCancelOpenByPharmacy(_ context.Context, _, _ string, _ time.Time) ([]domain.Order, error) {
	return nil, nil
}

func (r *stubOrderRepo) CountByStatus(_ context.Context, _ repositories.OrderListFilter) (map[domain.OrderStatus]int64, error) {
	return nil, nil
}

type stubProductRepo struct {
	products map[string]domain.Product
}

func (r *stubProductRepo) Insert(_ context.Context, _ domain.Product) error { return nil }
func (r *stubProductRepo) Update(_ context.Context, _ domain.Product) error { return nil }
func (r *stubProductRepo) Delete(_ context.Context, _ string) error         { return nil }

func (r *stubProductRepo) FindByID(_ context.Context, productID string) (domain.Product, error) {
	product, ok := r.products[productID]
	if !ok {
		return domain.Product{}, &notFoundError{err: fmt.Errorf("product %s not found", productID)}
	}
	return product, nil
}

func (r *stubProductRepo) List(_ context.Context, _ repositories.ProductListFilter) (domain.Page[domain.Product], error) {
	return domain.Page[domain.Product]{}, nil
}

func (r *stubProductRepo) CountByCategory(_ context.Context) (map[string]int64, error) {
	return nil, nil
}

func (r *stubProductRepo) SetActiveByPharmacy(_ context.Context, _ string, _ bool) (int, error) {
	return 0, nil
}

type stubPharmacyRepo struct {
	pharmacies map[string]domain.Pharmacy
}

func (r *stubPharmacyRepo) Insert(_ context.Context, _ domain.Pharmacy) error { return nil }
func (r *stubPharmacyRepo) Update(_ context.Context, _ domain.Pharmacy) error { return nil }

func (r *stubPharmacyRepo) FindByID(_ context.Context, pharmacyID string) (domain.Pharmacy, error) {
	pharmacy, ok := r.pharmacies[pharmacyID]
	if !ok {
		return domain.Pharmacy{}, &notFoundError{err: fmt.Errorf("pharmacy %s not found", pharmacyID)}
	}
	return pharmacy, nil
}

func (r *stubPharmacyRepo) List(_ context.Context, _ repositories.PharmacyListFilter) (domain.Page[domain.Pharmacy], error) {
	return domain.Page[domain.Pharmacy]{}, nil
}

func (r *stubPharmacyRepo) ApplyStatsDelta(_ context.Context, _ string, _ repositories.StatsDelta) error {
	return nil
}

func (r *stubPharmacyRepo) RemoveDeviceTokens(_ context.Context, _ string, _ []string) error {
	return nil
}

type stubRefundRepo struct {
	inserted []domain.Refund
}

func (r *stubRefundRepo) Insert(_ context.Context, refund domain.Refund) error {
	r.inserted = append(r.inserted, refund)
	return nil
}

func (r *stubRefundRepo) Update(_ context.Context, _ domain.Refund) error { return nil }

func (r *stubRefundRepo) FindByID(_ context.Context, refundID string) (domain.Refund, error) {
	return domain.Refund{}, &notFoundError{err: fmt.Errorf("refund %s not found", refundID)}
}

func (r *stubRefundRepo) FindPendingByOrder(_ context.Context, orderID string) (domain.Refund, error) {
	return domain.Refund{}, &notFoundError{err: fmt.Errorf("no pending refund for %s", orderID)}
}

func (r *stubRefundRepo) List(_ context.Context, _ repositories.RefundListFilter) (domain.Page[domain.Refund], error) {
	return domain.Page[domain.Refund]{}, nil
}

type recordingBus struct {
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) []events.ReactionResult {
	b.published = append(b.published, event)
	return nil
}

type orderFixture struct {
	service  OrderService
	orders   *stubOrderRepo
	refunds  *stubRefundRepo
	bus      *recordingBus
	now      time.Time
	products *stubProductRepo
}

func newOrderFixture(t *testing.T, orders ...domain.Order) *orderFixture {
	t.Helper()

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	fixture := &orderFixture{
		orders:  newStubOrderRepo(orders...),
		refunds: &stubRefundRepo{},
		bus:     &recordingBus{},
		now:     now,
		products: &stubProductRepo{products: map[string]domain.Product{
			"prd_1": {
				ID:         "prd_1",
				PharmacyID: "pha_1",
				Name:       "Ibuprofen 400mg",
				Price:      decimal.RequireFromString("10.50"),
				Stock:      20,
				Active:     true,
			},
			"prd_rx": {
				ID:                   "prd_rx",
				PharmacyID:           "pha_1",
				Name:                 "Amoxicillin 500mg",
				Price:                decimal.RequireFromString("15.00"),
				Stock:                5,
				Active:               true,
				RequiresPrescription: true,
			},
		}},
	}

	service, err := NewOrderService(OrderServiceDeps{
		Orders:   fixture.orders,
		Products: fixture.products,
		Pharmacies: &stubPharmacyRepo{pharmacies: map[string]domain.Pharmacy{
			"pha_1": {
				ID:     "pha_1",
				Name:   "Central Pharmacy",
				Status: domain.PharmacyStatusApproved,
				Shipping: domain.ShippingConfig{
					FlatRate:             decimal.RequireFromString("5.00"),
					OffersFreeShipping:   true,
					FreeShippingMinValue: decimal.RequireFromString("50"),
				},
			},
			"pha_suspended": {
				ID:     "pha_suspended",
				Status: domain.PharmacyStatusSuspended,
			},
		}},
		Refunds:     fixture.refunds,
		Events:      fixture.bus,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "TEST" },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	fixture.service = service
	return fixture
}

func paidOrder(status domain.OrderStatus) domain.Order {
	return domain.Order{
		ID:            "ord_1",
		CustomerID:    "usr_1",
		PharmacyID:    "pha_1",
		Items:         []domain.OrderItem{{ProductID: "prd_1", Quantity: 2, UnitPrice: decimal.RequireFromString("10.50")}},
		Subtotal:      decimal.RequireFromString("21.00"),
		ShippingCost:  decimal.RequireFromString("5.00"),
		Total:         decimal.RequireFromString("26.00"),
		Status:        status,
		PaymentStatus: domain.PaymentStatusPaid,
		StatusHistory: []domain.StatusHistoryEntry{{Status: domain.OrderStatusPending}},
	}
}

func TestCreateOrderComputesTotals(t *testing.T) {
	fixture := newOrderFixture(t)

	order, err := fixture.service.Create(context.Background(), CreateOrderCommand{
		CustomerID: "usr_1",
		PharmacyID: "pha_1",
		Items:      []OrderItemInput{{ProductID: "prd_1", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if order.ID != "ord_TEST" {
		t.Fatalf("id = %q", order.ID)
	}
	if !order.Subtotal.Equal(decimal.RequireFromString("21.00")) {
		t.Fatalf("subtotal = %s", order.Subtotal)
	}
	if !order.ShippingCost.Equal(decimal.RequireFromString("5.00")) {
		t.Fatalf("shipping = %s", order.ShippingCost)
	}
	if !order.Total.Equal(decimal.RequireFromString("26.00")) {
		t.Fatalf("total = %s", order.Total)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("status = %s", order.Status)
	}
	if len(order.StatusHistory) != 1 {
		t.Fatalf("history length = %d, want 1", len(order.StatusHistory))
	}
	if len(fixture.orders.inserted) != 1 {
		t.Fatalf("inserted %d orders", len(fixture.orders.inserted))
	}
	if len(fixture.bus.published) != 1 {
		t.Fatalf("published %d events", len(fixture.bus.published))
	}
	if _, ok := fixture.bus.published[0].(events.OrderCreated); !ok {
		t.Fatalf("published %T, want OrderCreated", fixture.bus.published[0])
	}
}

func TestCreateOrderRejectsSuspendedPharmacy(t *testing.T) {
	fixture := newOrderFixture(t)

	_, err := fixture.service.Create(context.Background(), CreateOrderCommand{
		CustomerID: "usr_1",
		PharmacyID: "pha_suspended",
		Items:      []OrderItemInput{{ProductID: "prd_1", Quantity: 1}},
	})
	if !errors.Is(err, ErrPharmacyInactive) {
		t.Fatalf("err = %v, want ErrPharmacyInactive", err)
	}
}

func TestCreateOrderRequiresPrescriptionRef(t *testing.T) {
	fixture := newOrderFixture(t)

	_, err := fixture.service.Create(context.Background(), CreateOrderCommand{
		CustomerID: "usr_1",
		PharmacyID: "pha_1",
		Items:      []OrderItemInput{{ProductID: "prd_rx", Quantity: 1}},
	})
	if !errors.Is(err, ErrPrescriptionRequired) {
		t.Fatalf("err = %v, want ErrPrescriptionRequired", err)
	}

	_, err = fixture.service.Create(context.Background(), CreateOrderCommand{
		CustomerID:      "usr_1",
		PharmacyID:      "pha_1",
		Items:           []OrderItemInput{{ProductID: "prd_rx", Quantity: 1}},
		PrescriptionRef: "rx-2026-001",
	})
	if err != nil {
		t.Fatalf("Create with prescription ref: %v", err)
	}
}

func TestCreateOrderRejectsInsufficientStock(t *testing.T) {
	fixture := newOrderFixture(t)

	_, err := fixture.service.Create(context.Background(), CreateOrderCommand{
		CustomerID: "usr_1",
		PharmacyID: "pha_1",
		Items:      []OrderItemInput{{ProductID: "prd_1", Quantity: 100}},
	})
	if !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("err = %v, want ErrOutOfStock", err)
	}
}

func TestUpdateStatusAppendsSingleHistoryEntry(t *testing.T) {
	fixture := newOrderFixture(t, paidOrder(domain.OrderStatusPending))

	order, err := fixture.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusConfirmed,
		ActorID:      "adm_1",
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("status = %s", order.Status)
	}
	if len(order.StatusHistory) != 2 {
		t.Fatalf("history length = %d, want 2", len(order.StatusHistory))
	}
	last := order.StatusHistory[len(order.StatusHistory)-1]
	if last.Status != domain.OrderStatusConfirmed || last.Previous != domain.OrderStatusPending {
		t.Fatalf("history entry = %+v", last)
	}

	changed, ok := fixture.bus.published[0].(events.OrderStatusChanged)
	if !ok {
		t.Fatalf("published %T, want OrderStatusChanged", fixture.bus.published[0])
	}
	if changed.Previous != domain.OrderStatusPending {
		t.Fatalf("event previous = %s", changed.Previous)
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	fixture := newOrderFixture(t, paidOrder(domain.OrderStatusPending))

	_, err := fixture.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID:      "ord_1",
		TargetStatus: "teleported",
	})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
}

func TestUpdateStatusRejectsTerminalOrders(t *testing.T) {
	for _, status := range []domain.OrderStatus{domain.OrderStatusDelivered, domain.OrderStatusCancelled} {
		fixture := newOrderFixture(t, paidOrder(status))

		_, err := fixture.service.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
			OrderID:      "ord_1",
			TargetStatus: domain.OrderStatusConfirmed,
		})
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("status %s: err = %v, want ErrInvalidTransition", status, err)
		}
	}
}

func TestCancelRestoresStock(t *testing.T) {
	fixture := newOrderFixture(t, paidOrder(domain.OrderStatusConfirmed))

	order, err := fixture.service.Cancel(context.Background(), CancelOrderCommand{
		OrderID: "ord_1",
		Reason:  "changed my mind",
		ActorID: "usr_1",
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("status = %s", order.Status)
	}
	if order.CancelReason != "changed my mind" {
		t.Fatalf("cancel reason = %q", order.CancelReason)
	}
	if len(fixture.orders.restored) != 1 || fixture.orders.restored[0].Quantity != 2 {
		t.Fatalf("restored lines = %+v", fixture.orders.restored)
	}
}

func TestCancelRejectsShippedAndCancelledOrders(t *testing.T) {
	fixture := newOrderFixture(t, paidOrder(domain.OrderStatusShipped))
	_, err := fixture.service.Cancel(context.Background(), CancelOrderCommand{OrderID: "ord_1"})
	if !errors.Is(err, ErrCannotCancel) {
		t.Fatalf("shipped: err = %v, want ErrCannotCancel", err)
	}

	fixture = newOrderFixture(t, paidOrder(domain.OrderStatusCancelled))
	_, err = fixture.service.Cancel(context.Background(), CancelOrderCommand{OrderID: "ord_1"})
	if !errors.Is(err, ErrAlreadyCancelled) {
		t.Fatalf("cancelled: err = %v, want ErrAlreadyCancelled", err)
	}
}

func TestRequestRefundRequiresPaidOrder(t *testing.T) {
	unpaid := paidOrder(domain.OrderStatusPending)
	unpaid.PaymentStatus = domain.PaymentStatusPending
	fixture := newOrderFixture(t, unpaid)

	_, err := fixture.service.RequestRefund(context.Background(), RequestRefundCommand{
		OrderID: "ord_1",
		Reason:  "damaged on arrival",
	})
	if !errors.Is(err, ErrCannotRefund) {
		t.Fatalf("err = %v, want ErrCannotRefund", err)
	}
}

func TestRequestRefundDefaultsToFullAmount(t *testing.T) {
	fixture := newOrderFixture(t, paidOrder(domain.OrderStatusDelivered))

	refund, err := fixture.service.RequestRefund(context.Background(), RequestRefundCommand{
		OrderID: "ord_1",
		Reason:  "damaged on arrival",
		ActorID: "usr_1",
	})
	if err != nil {
		t.Fatalf("RequestRefund: %v", err)
	}
	if !refund.Amount.Equal(decimal.RequireFromString("26.00")) {
		t.Fatalf("amount = %s, want full total", refund.Amount)
	}
	if refund.IsPartialRefund {
		t.Fatal("full refund flagged as partial")
	}
	if refund.Status != domain.RefundStatusPending {
		t.Fatalf("status = %s", refund.Status)
	}
	if len(fixture.refunds.inserted) != 1 {
		t.Fatalf("inserted %d refunds", len(fixture.refunds.inserted))
	}
}

func TestRequestRefundPartialAmount(t *testing.T) {
	fixture := newOrderFixture(t, paidOrder(domain.OrderStatusDelivered))

	amount := decimal.RequireFromString("10.00")
	refund, err := fixture.service.RequestRefund(context.Background(), RequestRefundCommand{
		OrderID: "ord_1",
		Amount:  &amount,
		Reason:  "one item missing",
	})
	if err != nil {
		t.Fatalf("RequestRefund: %v", err)
	}
	if !refund.IsPartialRefund {
		t.Fatal("partial refund not flagged")
	}

	tooMuch := decimal.RequireFromString("100.00")
	_, err = fixture.service.RequestRefund(context.Background(), RequestRefundCommand{
		OrderID: "ord_1",
		Amount:  &tooMuch,
		Reason:  "refund everything",
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("excess amount: err = %v, want ErrOrderInvalidInput", err)
	}
}
