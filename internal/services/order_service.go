package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/events"
	"github.com/pharmakart/api/internal/repositories"
)

const (
	orderIDPrefix  = "ord_"
	refundIDPrefix = "ref_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order, product or pharmacy could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrPharmacyInactive indicates the selling pharmacy cannot accept orders.
	ErrPharmacyInactive = errors.New("order: pharmacy cannot accept orders")
	// ErrOutOfStock indicates a line cannot be fulfilled from current stock.
	ErrOutOfStock = errors.New("order: insufficient stock")
	// ErrPrescriptionRequired indicates a prescription product lacks a prescription reference.
	ErrPrescriptionRequired = errors.New("order: prescription required")
	// ErrInvalidStatus indicates the target status is outside the enumeration.
	ErrInvalidStatus = errors.New("order: invalid status")
	// ErrInvalidTransition indicates the order's current status admits no further transitions.
	ErrInvalidTransition = errors.New("order: invalid status transition")
	// ErrCannotCancel indicates the order has shipped or been delivered.
	ErrCannotCancel = errors.New("order: cannot cancel")
	// ErrAlreadyCancelled indicates the order is already cancelled.
	ErrAlreadyCancelled = errors.New("order: already cancelled")
	// ErrCannotRefund indicates the order is not in a refundable payment state.
	ErrCannotRefund = errors.New("order: cannot refund")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	Products   repositories.ProductRepository
	Pharmacies repositories.PharmacyRepository
	Coupons    repositories.CouponRepository
	Refunds    repositories.RefundRepository
	Events     events.Publisher
	// DefaultShipping applies when a pharmacy has no flat rate configured.
	DefaultShipping decimal.Decimal
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders          repositories.OrderRepository
	products        repositories.ProductRepository
	pharmacies      repositories.PharmacyRepository
	coupons         repositories.CouponRepository
	refunds         repositories.RefundRepository
	events          events.Publisher
	defaultShipping decimal.Decimal
	clock           func() time.Time
	newID           func() string
	logger          func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Pharmacies == nil {
		return nil, errors.New("order service: pharmacy repository is required")
	}
	if deps.Refunds == nil {
		return nil, errors.New("order service: refund repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:          deps.Orders,
		products:        deps.Products,
		pharmacies:      deps.Pharmacies,
		coupons:         deps.Coupons,
		refunds:         deps.Refunds,
		events:          deps.Events,
		defaultShipping: deps.DefaultShipping,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	pharmacyID := strings.TrimSpace(cmd.PharmacyID)
	if customerID == "" {
		return Order{}, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	if pharmacyID == "" {
		return Order{}, fmt.Errorf("%w: pharmacy id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	for _, item := range cmd.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return Order{}, fmt.Errorf("%w: item product id is required", ErrOrderInvalidInput)
		}
		if item.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: item quantity must be positive", ErrOrderInvalidInput)
		}
	}

	pharmacy, err := s.pharmacies.FindByID(ctx, pharmacyID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !pharmacy.Status.CanAcceptOrders() {
		return Order{}, fmt.Errorf("%w: pharmacy %s is %s", ErrPharmacyInactive, pharmacyID, pharmacy.Status)
	}

	prescriptionRef := strings.TrimSpace(cmd.PrescriptionRef)
	items := make([]OrderItem, 0, len(cmd.Items))
	lines := make([]PriceLine, 0, len(cmd.Items))
	for _, input := range cmd.Items {
		product, err := s.products.FindByID(ctx, input.ProductID)
		if err != nil {
			return Order{}, s.mapRepositoryError(err)
		}
		if product.PharmacyID != pharmacyID {
			return Order{}, fmt.Errorf("%w: product %s does not belong to pharmacy %s", ErrOrderInvalidInput, product.ID, pharmacyID)
		}
		if !product.Active || !product.InStock(input.Quantity) {
			return Order{}, fmt.Errorf("%w: product %s", ErrOutOfStock, product.ID)
		}
		if product.RequiresPrescription && prescriptionRef == "" {
			return Order{}, fmt.Errorf("%w: product %s", ErrPrescriptionRequired, product.ID)
		}
		items = append(items, OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  input.Quantity,
			UnitPrice: product.Price,
		})
		lines = append(lines, PriceLine{Quantity: input.Quantity, UnitPrice: product.Price})
	}

	now := s.clock()

	coupon, err := s.resolveCoupon(ctx, cmd.CouponCode)
	if err != nil {
		return Order{}, err
	}
	quote, err := CalculatePrice(PricingInput{
		Lines:           lines,
		Coupon:          coupon,
		Shipping:        pharmacy.Shipping,
		DefaultShipping: s.defaultShipping,
		Now:             now,
	})
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:              orderIDPrefix + s.newID(),
		CustomerID:      customerID,
		PharmacyID:      pharmacyID,
		Items:           items,
		Subtotal:        quote.Subtotal,
		Discount:        quote.Discount,
		ShippingCost:    quote.Shipping,
		Total:           quote.Total,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		ShippingAddress: cmd.ShippingAddress,
		BillingAddress:  cmd.BillingAddress,
		CouponCode:      couponCode(coupon),
		PrescriptionRef: prescriptionRef,
		StatusHistory: []domain.StatusHistoryEntry{{
			Status:    domain.OrderStatusPending,
			Timestamp: now,
			Actor:     strings.TrimSpace(cmd.ActorID),
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.orders.InsertWithStockDecrement(ctx, order); err != nil {
		if stockErr, ok := repositories.AsStockError(err); ok {
			switch stockErr.Code {
			case repositories.StockErrorProductNotFound:
				return Order{}, fmt.Errorf("%w: product %s", ErrOrderNotFound, stockErr.ProductID)
			default:
				return Order{}, fmt.Errorf("%w: product %s", ErrOutOfStock, stockErr.ProductID)
			}
		}
		return Order{}, s.mapRepositoryError(err)
	}

	s.publish(ctx, events.OrderCreated{Order: order, At: now})
	return order, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !cmd.TargetStatus.IsValid() {
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, cmd.TargetStatus)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if order.Status.IsTerminal() {
		return Order{}, fmt.Errorf("%w: order is %s", ErrInvalidTransition, order.Status)
	}

	now := s.clock()
	previous := order.Status
	actor := strings.TrimSpace(cmd.ActorID)

	order.Status = cmd.TargetStatus
	order.UpdatedAt = now
	order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
		Status:            cmd.TargetStatus,
		Previous:          previous,
		Timestamp:         now,
		Actor:             actor,
		Notes:             strings.TrimSpace(cmd.Notes),
		TrackingCode:      strings.TrimSpace(cmd.TrackingCode),
		EstimatedDelivery: cmd.EstimatedDelivery,
	})

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publish(ctx, events.OrderStatusChanged{Order: order, Previous: previous, Actor: actor, At: now})
	return order, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	switch order.Status {
	case domain.OrderStatusCancelled:
		return Order{}, fmt.Errorf("%w: order %s", ErrAlreadyCancelled, orderID)
	case domain.OrderStatusShipped, domain.OrderStatusDelivered:
		return Order{}, fmt.Errorf("%w: order is %s", ErrCannotCancel, order.Status)
	}

	now := s.clock()
	previous := order.Status
	actor := strings.TrimSpace(cmd.ActorID)
	reason := strings.TrimSpace(cmd.Reason)

	order.Status = domain.OrderStatusCancelled
	order.CancelReason = reason
	order.UpdatedAt = now
	order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
		Status:    domain.OrderStatusCancelled,
		Previous:  previous,
		Timestamp: now,
		Actor:     actor,
		Notes:     reason,
	})

	restore := make([]repositories.StockLine, len(order.Items))
	for i, item := range order.Items {
		restore[i] = repositories.StockLine{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	if err := s.orders.UpdateWithStockRestore(ctx, order, restore); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publish(ctx, events.OrderStatusChanged{Order: order, Previous: previous, Actor: actor, At: now})
	return order, nil
}

func (s *orderService) RequestRefund(ctx context.Context, cmd RequestRefundCommand) (Refund, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Refund{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return Refund{}, fmt.Errorf("%w: refund reason is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Refund{}, s.mapRepositoryError(err)
	}
	if order.PaymentStatus != domain.PaymentStatusPaid {
		return Refund{}, fmt.Errorf("%w: payment status is %s", ErrCannotRefund, order.PaymentStatus)
	}

	amount := order.Total
	if cmd.Amount != nil {
		amount = *cmd.Amount
		if !amount.IsPositive() {
			return Refund{}, fmt.Errorf("%w: refund amount must be positive", ErrOrderInvalidInput)
		}
		if amount.GreaterThan(order.Total) {
			return Refund{}, fmt.Errorf("%w: refund amount exceeds order total", ErrOrderInvalidInput)
		}
	}

	now := s.clock()
	refund := Refund{
		ID:              refundIDPrefix + s.newID(),
		OrderID:         order.ID,
		PharmacyID:      order.PharmacyID,
		Amount:          amount,
		Reason:          reason,
		Status:          domain.RefundStatusPending,
		IsPartialRefund: amount.LessThan(order.Total),
		RequestedBy:     strings.TrimSpace(cmd.ActorID),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.refunds.Insert(ctx, refund); err != nil {
		return Refund{}, s.mapRepositoryError(err)
	}

	s.publish(ctx, events.RefundRequested{Refund: refund, Order: order, At: now})
	return refund, nil
}

func (s *orderService) Get(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[Order], error) {
	for _, status := range filter.Statuses {
		if !status.IsValid() {
			return domain.Page[Order]{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
		}
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.Page[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// resolveCoupon looks up the supplied code. Unknown codes are ignored.
func (s *orderService) resolveCoupon(ctx context.Context, code string) (*Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" || s.coupons == nil {
		return nil, nil
	}
	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil, nil
		}
		return nil, s.mapRepositoryError(err)
	}
	return &coupon, nil
}

func couponCode(coupon *Coupon) string {
	if coupon == nil {
		return ""
	}
	return coupon.Code
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *orderService) publish(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, event)
}
