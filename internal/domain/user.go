package domain

import "time"

// UserRole enumerates marketplace roles.
type UserRole string

const (
	UserRoleCustomer      UserRole = "customer"
	UserRoleSuperAdmin    UserRole = "super_admin"
	UserRolePharmacyAdmin UserRole = "pharmacy_admin"
)

// IsAdmin reports whether the role grants access to admin surfaces.
func (r UserRole) IsAdmin() bool {
	return r == UserRoleSuperAdmin || r == UserRolePharmacyAdmin
}

// User is a marketplace account holding push device tokens.
type User struct {
	ID           string
	Email        string
	Role         UserRole
	Active       bool
	PharmacyID   string
	DeviceTokens []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Wishlist tracks the products a user wants price-drop alerts for.
type Wishlist struct {
	UserID     string
	ProductIDs []string
	UpdatedAt  time.Time
}

// StockAlert tracks users waiting for a product to come back in stock.
type StockAlert struct {
	ProductID string
	UserIDs   []string
	UpdatedAt time.Time
}

// MailStatus enumerates queued mail states.
type MailStatus string

const (
	MailStatusPending MailStatus = "pending"
	MailStatusSent    MailStatus = "sent"
)

// MailMessage is an outbound email queued for asynchronous delivery.
type MailMessage struct {
	ID        string
	To        string
	Subject   string
	Body      string
	Status    MailStatus
	CreatedAt time.Time
}
