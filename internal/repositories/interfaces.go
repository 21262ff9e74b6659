package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/pharmakart/api/internal/domain"
)

// RepositoryError lets services classify persistence failures without knowing
// the backing store.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderListFilter narrows order list queries.
type OrderListFilter struct {
	CustomerID string
	PharmacyID string
	Statuses   []domain.OrderStatus
	CreatedAt  domain.RangeQuery[time.Time]
	Sort       domain.Sort
	Page       domain.ListParams
}

// StockLine names a product/quantity pair touched by an order mutation.
type StockLine struct {
	ProductID string
	Quantity  int
}

// OrderRepository persists order aggregates. Orders are append-mostly: they
// are never physically deleted and status history only grows.
type OrderRepository interface {
	// InsertWithStockDecrement creates the order and decrements stock for
	// every line in a single transaction. The stock check is re-verified
	// inside the transaction so concurrent checkouts cannot oversell.
	InsertWithStockDecrement(ctx context.Context, order domain.Order) error
	// UpdateWithStockRestore persists the order and adds back the given
	// stock lines in one transaction. Used by cancellation.
	UpdateWithStockRestore(ctx context.Context, order domain.Order, restore []StockLine) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
	// ListOpenByPharmacy returns orders in non-terminal, non-refunded states
	// for a pharmacy. Used when a pharmacy is suspended or disabled.
	ListOpenByPharmacy(ctx context.Context, pharmacyID string) ([]domain.Order, error)
	// BulkCancelOpenByPharmacy cancels the pharmacy's pending, confirmed and
	// processing orders in one atomic write and returns the cancelled orders
	// in their post-cancel state, each with a history entry recording the
	// status it left.
	BulkCancelOpenByPharmacy(ctx context.Context, pharmacyID, reason string, now time.Time) ([]domain.Order, error)
	CountByStatus(ctx context.Context, filter OrderListFilter) (map[domain.OrderStatus]int64, error)
}

// ProductListFilter narrows product list queries.
type ProductListFilter struct {
	PharmacyID string
	Category   string
	Active     *bool
	Sort       domain.Sort
	Page       domain.ListParams
}

// ProductRepository persists catalog products.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.Page[domain.Product], error)
	// CountByCategory buckets the whole catalog by category. Uncategorised
	// products land under the empty key.
	CountByCategory(ctx context.Context) (map[string]int64, error)
	// SetActiveByPharmacy flips the active flag on every product of a
	// pharmacy and returns how many were touched.
	SetActiveByPharmacy(ctx context.Context, pharmacyID string, active bool) (int, error)
}

// PharmacyListFilter narrows pharmacy list queries.
type PharmacyListFilter struct {
	Statuses []domain.PharmacyStatus
	Sort     domain.Sort
	Page     domain.ListParams
}

// StatsDelta carries atomic increments for the denormalised pharmacy counters.
// Zero fields leave the counter untouched.
type StatsDelta struct {
	TotalOrders     int64
	PendingOrders   int64
	CompletedOrders int64
	CancelledOrders int64
	TotalProducts   int64
	ActiveProducts  int64
	TotalRevenue    decimal.Decimal
}

// IsZero reports whether applying the delta would be a no-op.
func (d StatsDelta) IsZero() bool {
	return d.TotalOrders == 0 && d.PendingOrders == 0 && d.CompletedOrders == 0 &&
		d.CancelledOrders == 0 && d.TotalProducts == 0 && d.ActiveProducts == 0 &&
		d.TotalRevenue.IsZero()
}

// PharmacyRepository persists pharmacies and their denormalised stats.
type PharmacyRepository interface {
	Insert(ctx context.Context, pharmacy domain.Pharmacy) error
	Update(ctx context.Context, pharmacy domain.Pharmacy) error
	FindByID(ctx context.Context, pharmacyID string) (domain.Pharmacy, error)
	List(ctx context.Context, filter PharmacyListFilter) (domain.Page[domain.Pharmacy], error)
	// ApplyStatsDelta adjusts the pharmacy counters atomically so concurrent
	// reactions never lose increments.
	ApplyStatsDelta(ctx context.Context, pharmacyID string, delta StatsDelta) error
	RemoveDeviceTokens(ctx context.Context, pharmacyID string, tokens []string) error
}

// CouponRepository reads discount coupons. The order workflow never writes
// coupons.
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
}

// RefundListFilter narrows refund list queries.
type RefundListFilter struct {
	OrderID    string
	PharmacyID string
	Statuses   []domain.RefundStatus
	Page       domain.ListParams
}

// RefundRepository persists refund requests.
type RefundRepository interface {
	Insert(ctx context.Context, refund domain.Refund) error
	Update(ctx context.Context, refund domain.Refund) error
	FindByID(ctx context.Context, refundID string) (domain.Refund, error)
	FindPendingByOrder(ctx context.Context, orderID string) (domain.Refund, error)
	List(ctx context.Context, filter RefundListFilter) (domain.Page[domain.Refund], error)
}

// EventLogRepository appends to the immutable event log.
type EventLogRepository interface {
	Append(ctx context.Context, entry domain.EventLogEntry) error
}

// AuditLogFilter narrows audit log queries for reporting and export.
type AuditLogFilter struct {
	Actor      string
	Action     domain.AuditAction
	EntityType string
	EntityID   string
	CreatedAt  domain.RangeQuery[time.Time]
	Page       domain.ListParams
}

// AuditLogRepository appends to and queries the immutable audit trail.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.Page[domain.AuditLogEntry], error)
}

// UserRepository reads marketplace accounts and maintains their device tokens.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.User, error)
	ListByIDs(ctx context.Context, userIDs []string) ([]domain.User, error)
	// ListActiveAdmins returns every active account with an admin role.
	// Used to fan out marketplace-level notifications.
	ListActiveAdmins(ctx context.Context) ([]domain.User, error)
	RemoveDeviceTokens(ctx context.Context, userID string, tokens []string) error
}

// EngagementRepository reads the wishlist and back-in-stock subscriptions the
// product reactions fan out to.
type EngagementRepository interface {
	// WishlistUserIDs returns the ids of users holding the product on their
	// wishlist.
	WishlistUserIDs(ctx context.Context, productID string) ([]string, error)
	// StockAlertUserIDs returns the ids of users waiting for the product to
	// come back in stock.
	StockAlertUserIDs(ctx context.Context, productID string) ([]string, error)
	ClearStockAlerts(ctx context.Context, productID string) error
}

// MailRepository enqueues outbound email for asynchronous delivery.
type MailRepository interface {
	Enqueue(ctx context.Context, message domain.MailMessage) error
}
