package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// PharmacyStatus enumerates pharmacy lifecycle states.
type PharmacyStatus string

const (
	PharmacyStatusPending   PharmacyStatus = "pending"
	PharmacyStatusApproved  PharmacyStatus = "approved"
	PharmacyStatusSuspended PharmacyStatus = "suspended"
	PharmacyStatusRejected  PharmacyStatus = "rejected"
	PharmacyStatusInactive  PharmacyStatus = "inactive"
)

// CanAcceptOrders reports whether checkout against the pharmacy is allowed.
func (s PharmacyStatus) CanAcceptOrders() bool {
	return s == PharmacyStatusApproved
}

// ShippingConfig holds the per-pharmacy shipping pricing rules.
type ShippingConfig struct {
	FlatRate             decimal.Decimal
	OffersFreeShipping   bool
	FreeShippingMinValue decimal.Decimal
}

// PharmacyStats holds denormalised per-pharmacy counters maintained by the
// reaction layer. Eventually consistent with the underlying order/product data.
type PharmacyStats struct {
	TotalOrders     int64
	TotalRevenue    decimal.Decimal
	PendingOrders   int64
	CompletedOrders int64
	CancelledOrders int64
	TotalProducts   int64
	ActiveProducts  int64
}

// GeoPoint is a latitude/longitude pair used for nearby-pharmacy lookups.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// DistanceKm returns the haversine distance to another point in kilometres.
func (g GeoPoint) DistanceKm(other GeoPoint) float64 {
	const earthRadiusKm = 6371.0
	lat1 := g.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLat := (other.Latitude - g.Latitude) * math.Pi / 180
	dLng := (other.Longitude - g.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Pharmacy owns products and orders on the marketplace.
type Pharmacy struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	Status       PharmacyStatus
	Address      Address
	Location     *GeoPoint
	Shipping     ShippingConfig
	DeviceTokens []string
	Stats        PharmacyStats
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
