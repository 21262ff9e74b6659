// Package events carries the explicit domain event bus. Services publish
// events after a mutation commits; reactors subscribe to them. Reactions are
// best-effort: a failed reaction is logged and counted, never propagated back
// to the caller that triggered it.
package events

import (
	"time"

	domain "github.com/pharmakart/api/internal/domain"
)

// Event names. Wire-stable: they appear in log entries and on the Pub/Sub
// mirror topic.
const (
	NameOrderCreated          = "order.created"
	NameOrderStatusChanged    = "order.status_changed"
	NameRefundRequested       = "refund.requested"
	NamePharmacyCreated       = "pharmacy.created"
	NamePharmacyStatusChanged = "pharmacy.status_changed"
	NameProductCreated        = "product.created"
	NameProductUpdated        = "product.updated"
	NameProductDeleted        = "product.deleted"
)

// Event is a fact about a committed state change.
type Event interface {
	EventName() string
	EntityType() string
	EntityID() string
	OccurredAt() time.Time
}

// OrderCreated fires after an order and its stock decrement commit.
type OrderCreated struct {
	Order domain.Order
	At    time.Time
}

func (e OrderCreated) EventName() string     { return NameOrderCreated }
func (e OrderCreated) EntityType() string    { return "order" }
func (e OrderCreated) EntityID() string      { return e.Order.ID }
func (e OrderCreated) OccurredAt() time.Time { return e.At }

// OrderStatusChanged fires after a status transition commits. Previous is the
// status the order actually left, so no-op updates never publish this event.
type OrderStatusChanged struct {
	Order    domain.Order
	Previous domain.OrderStatus
	Actor    string
	At       time.Time
}

func (e OrderStatusChanged) EventName() string     { return NameOrderStatusChanged }
func (e OrderStatusChanged) EntityType() string    { return "order" }
func (e OrderStatusChanged) EntityID() string      { return e.Order.ID }
func (e OrderStatusChanged) OccurredAt() time.Time { return e.At }

// RefundRequested fires after a refund request is stored.
type RefundRequested struct {
	Refund domain.Refund
	Order  domain.Order
	At     time.Time
}

func (e RefundRequested) EventName() string     { return NameRefundRequested }
func (e RefundRequested) EntityType() string    { return "refund" }
func (e RefundRequested) EntityID() string      { return e.Refund.ID }
func (e RefundRequested) OccurredAt() time.Time { return e.At }

// PharmacyCreated fires after a pharmacy registers.
type PharmacyCreated struct {
	Pharmacy domain.Pharmacy
	At       time.Time
}

func (e PharmacyCreated) EventName() string     { return NamePharmacyCreated }
func (e PharmacyCreated) EntityType() string    { return "pharmacy" }
func (e PharmacyCreated) EntityID() string      { return e.Pharmacy.ID }
func (e PharmacyCreated) OccurredAt() time.Time { return e.At }

// PharmacyStatusChanged fires after a pharmacy lifecycle transition.
type PharmacyStatusChanged struct {
	Pharmacy domain.Pharmacy
	Previous domain.PharmacyStatus
	Actor    string
	At       time.Time
}

func (e PharmacyStatusChanged) EventName() string     { return NamePharmacyStatusChanged }
func (e PharmacyStatusChanged) EntityType() string    { return "pharmacy" }
func (e PharmacyStatusChanged) EntityID() string      { return e.Pharmacy.ID }
func (e PharmacyStatusChanged) OccurredAt() time.Time { return e.At }

// ProductCreated fires after a product is added to the catalog.
type ProductCreated struct {
	Product domain.Product
	At      time.Time
}

func (e ProductCreated) EventName() string     { return NameProductCreated }
func (e ProductCreated) EntityType() string    { return "product" }
func (e ProductCreated) EntityID() string      { return e.Product.ID }
func (e ProductCreated) OccurredAt() time.Time { return e.At }

// ProductUpdated fires after a product edit commits. Previous carries the
// pre-edit snapshot so reactors can detect price drops and stock flips.
type ProductUpdated struct {
	Product  domain.Product
	Previous domain.Product
	At       time.Time
}

func (e ProductUpdated) EventName() string     { return NameProductUpdated }
func (e ProductUpdated) EntityType() string    { return "product" }
func (e ProductUpdated) EntityID() string      { return e.Product.ID }
func (e ProductUpdated) OccurredAt() time.Time { return e.At }

// ProductDeleted fires after a product is removed.
type ProductDeleted struct {
	Product domain.Product
	At      time.Time
}

func (e ProductDeleted) EventName() string     { return NameProductDeleted }
func (e ProductDeleted) EntityType() string    { return "product" }
func (e ProductDeleted) EntityID() string      { return e.Product.ID }
func (e ProductDeleted) OccurredAt() time.Time { return e.At }
