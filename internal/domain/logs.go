package domain

import "time"

// EventSeverity grades event log entries.
type EventSeverity string

const (
	EventSeverityInfo    EventSeverity = "info"
	EventSeverityWarning EventSeverity = "warning"
	EventSeverityError   EventSeverity = "error"
)

// EventLogEntry is an append-only record of something that happened in the
// system. Used for traceability, never for control flow.
type EventLogEntry struct {
	ID         string
	Type       string
	Severity   EventSeverity
	EntityType string
	EntityID   string
	Message    string
	Metadata   map[string]any
	CreatedAt  time.Time
}

// AuditAction names a distinct auditable transition. Each real transition gets
// its own action, never a reused fallback.
type AuditAction string

const (
	AuditActionOrderCreated      AuditAction = "order.created"
	AuditActionOrderConfirmed    AuditAction = "order.confirmed"
	AuditActionOrderProcessing   AuditAction = "order.processing"
	AuditActionOrderShipped      AuditAction = "order.shipped"
	AuditActionOrderDelivered    AuditAction = "order.delivered"
	AuditActionOrderCancelled    AuditAction = "order.cancelled"
	AuditActionOrderRefunded     AuditAction = "order.refunded"
	AuditActionRefundRequested   AuditAction = "refund.requested"
	AuditActionRefundApproved    AuditAction = "refund.approved"
	AuditActionRefundRejected    AuditAction = "refund.rejected"
	AuditActionPharmacyCreated   AuditAction = "pharmacy.created"
	AuditActionPharmacyApproved  AuditAction = "pharmacy.approved"
	AuditActionPharmacySuspended AuditAction = "pharmacy.suspended"
	AuditActionPharmacyRejected  AuditAction = "pharmacy.rejected"
	AuditActionPharmacyDisabled  AuditAction = "pharmacy.disabled"
	AuditActionProductCreated    AuditAction = "product.created"
	AuditActionProductUpdated    AuditAction = "product.updated"
	AuditActionProductDeleted    AuditAction = "product.deleted"
)

// AuditLogEntry is an append-only, immutable trace of a privileged or
// state-changing action.
type AuditLogEntry struct {
	ID         string
	Action     AuditAction
	Actor      string
	ActorType  string
	EntityType string
	EntityID   string
	Severity   EventSeverity
	Details    map[string]any
	CreatedAt  time.Time
}
