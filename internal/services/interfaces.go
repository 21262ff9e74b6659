package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing
// dependency direction.
type (
	Order         = domain.Order
	OrderItem     = domain.OrderItem
	OrderStatus   = domain.OrderStatus
	Address       = domain.Address
	Refund        = domain.Refund
	Product       = domain.Product
	Pharmacy      = domain.Pharmacy
	Coupon        = domain.Coupon
	GeoPoint      = domain.GeoPoint
	AuditLogEntry = domain.AuditLogEntry
	EventLogEntry = domain.EventLogEntry
)

// OrderItemInput is one requested line at checkout.
type OrderItemInput struct {
	ProductID string
	Quantity  int
}

// CreateOrderCommand carries checkout input.
type CreateOrderCommand struct {
	CustomerID      string
	PharmacyID      string
	Items           []OrderItemInput
	CouponCode      string
	PrescriptionRef string
	ShippingAddress *Address
	BillingAddress  *Address
	ActorID         string
}

// UpdateOrderStatusCommand carries a status transition request.
type UpdateOrderStatusCommand struct {
	OrderID           string
	TargetStatus      OrderStatus
	ActorID           string
	Notes             string
	TrackingCode      string
	EstimatedDelivery *time.Time
}

// CancelOrderCommand carries a cancellation request.
type CancelOrderCommand struct {
	OrderID string
	Reason  string
	ActorID string
}

// RequestRefundCommand carries a refund request. Amount nil means full refund.
type RequestRefundCommand struct {
	OrderID string
	Amount  *decimal.Decimal
	Reason  string
	ActorID string
}

// OrderService owns the order lifecycle.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	RequestRefund(ctx context.Context, cmd RequestRefundCommand) (Refund, error)
	Get(ctx context.Context, orderID string) (Order, error)
	List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[Order], error)
}

// CreateProductCommand carries catalog creation input.
type CreateProductCommand struct {
	PharmacyID           string
	Name                 string
	Category             string
	Description          string
	Price                decimal.Decimal
	Stock                int
	Active               bool
	RequiresPrescription bool
	ActorID              string
}

// UpdateProductCommand carries a partial product edit. Nil fields are left
// unchanged.
type UpdateProductCommand struct {
	ProductID            string
	Name                 *string
	Category             *string
	Description          *string
	Price                *decimal.Decimal
	Stock                *int
	Active               *bool
	RequiresPrescription *bool
	ActorID              string
}

// CatalogService owns product CRUD.
type CatalogService interface {
	Create(ctx context.Context, cmd CreateProductCommand) (Product, error)
	Update(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	Delete(ctx context.Context, productID, actorID string) error
	Get(ctx context.Context, productID string) (Product, error)
	List(ctx context.Context, filter repositories.ProductListFilter) (domain.Page[Product], error)
}

// CreatePharmacyCommand carries registration input.
type CreatePharmacyCommand struct {
	Name     string
	Email    string
	Phone    string
	Address  Address
	Location *GeoPoint
	Shipping domain.ShippingConfig
	ActorID  string
}

// ChangePharmacyStatusCommand carries an admin lifecycle transition.
type ChangePharmacyStatusCommand struct {
	PharmacyID   string
	TargetStatus domain.PharmacyStatus
	Reason       string
	ActorID      string
}

// NearbyPharmacyQuery asks for approved pharmacies within a radius.
type NearbyPharmacyQuery struct {
	Location GeoPoint
	RadiusKm float64
	Limit    int
}

// NearbyPharmacy pairs a pharmacy with its distance from the query point.
type NearbyPharmacy struct {
	Pharmacy   Pharmacy
	DistanceKm float64
}

// PharmacyService owns pharmacy registration and lifecycle.
type PharmacyService interface {
	Create(ctx context.Context, cmd CreatePharmacyCommand) (Pharmacy, error)
	ChangeStatus(ctx context.Context, cmd ChangePharmacyStatusCommand) (Pharmacy, error)
	Get(ctx context.Context, pharmacyID string) (Pharmacy, error)
	List(ctx context.Context, filter repositories.PharmacyListFilter) (domain.Page[Pharmacy], error)
	Nearby(ctx context.Context, query NearbyPharmacyQuery) ([]NearbyPharmacy, error)
}

// ResolveRefundCommand carries an admin refund decision.
type ResolveRefundCommand struct {
	RefundID string
	Notes    string
	ActorID  string
}

// FinancialService owns refund resolution.
type FinancialService interface {
	ListRefunds(ctx context.Context, filter repositories.RefundListFilter) (domain.Page[Refund], error)
	ApproveRefund(ctx context.Context, cmd ResolveRefundCommand) (Refund, error)
	RejectRefund(ctx context.Context, cmd ResolveRefundCommand) (Refund, error)
}

// MarketplaceStats is the cached admin stats payload.
type MarketplaceStats struct {
	OrdersByStatus     map[domain.OrderStatus]int64
	ProductsByCategory map[string]int64
	GeneratedAt        time.Time
}

// ExportFormat selects the audit export encoding.
type ExportFormat string

const (
	ExportFormatJSON ExportFormat = "json"
	ExportFormatCSV  ExportFormat = "csv"
)

// ReportingService owns admin aggregation and audit export.
type ReportingService interface {
	Stats(ctx context.Context) (MarketplaceStats, error)
	ListAuditLogs(ctx context.Context, filter repositories.AuditLogFilter) (domain.Page[AuditLogEntry], error)
	ExportAuditLogs(ctx context.Context, filter repositories.AuditLogFilter, format ExportFormat) ([]byte, string, error)
}

// Recorder appends event and audit log entries. Both writes are best-effort:
// failures are logged and swallowed so a logging outage never fails the
// operation being recorded.
type Recorder interface {
	RecordEvent(ctx context.Context, entry EventLogEntry)
	RecordAudit(ctx context.Context, entry AuditLogEntry)
}
