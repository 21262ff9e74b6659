package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus enumerates the canonical order lifecycle states.
type OrderStatus string

const (
	// OrderStatusPending is the initial state assigned at checkout.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the pharmacy accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is being prepared.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order left the pharmacy.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer. Terminal.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded indicates the order was fully refunded.
	OrderStatusRefunded OrderStatus = "refunded"
)

// ValidOrderStatuses lists every status accepted by the status-update operation.
var ValidOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// IsValid reports whether the status belongs to the canonical enumeration.
func (s OrderStatus) IsValid() bool {
	for _, known := range ValidOrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are accepted from the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// PaymentStatus tracks the payment state of an order.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusFailed   PaymentStatus = "failed"
)

// OrderItem is a single product line on an order.
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Subtotal returns quantity times unit price for the line.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// StatusHistoryEntry records one append-only order status transition.
type StatusHistoryEntry struct {
	Status            OrderStatus
	Previous          OrderStatus
	Timestamp         time.Time
	Actor             string
	Notes             string
	TrackingCode      string
	EstimatedDelivery *time.Time
}

// Address is a shipping or billing address attached to an order.
type Address struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Order is the aggregate created at checkout and mutated only by status-update,
// cancel and refund operations. Orders are never physically deleted.
type Order struct {
	ID              string
	CustomerID      string
	PharmacyID      string
	Items           []OrderItem
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	ShippingCost    decimal.Decimal
	Total           decimal.Decimal
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	ShippingAddress *Address
	BillingAddress  *Address
	CouponCode      string
	PrescriptionRef string
	CancelReason    string
	StatusHistory   []StatusHistoryEntry
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RefundStatus enumerates lifecycle states of a refund request.
type RefundStatus string

const (
	RefundStatusPending  RefundStatus = "pending"
	RefundStatusApproved RefundStatus = "approved"
	RefundStatusRejected RefundStatus = "rejected"
)

// Refund is a customer refund request against a paid order. Creating one does
// not change the order status.
type Refund struct {
	ID              string
	OrderID         string
	PharmacyID      string
	Amount          decimal.Decimal
	Reason          string
	Status          RefundStatus
	IsPartialRefund bool
	RequestedBy     string
	ResolvedBy      string
	ResolutionNotes string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
