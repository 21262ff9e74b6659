package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/platform/httpx"
	"github.com/pharmakart/api/internal/repositories"
	"github.com/pharmakart/api/internal/services"
)

// PharmacyHandlers exposes the pharmacy endpoints.
type PharmacyHandlers struct {
	pharmacies services.PharmacyService
}

// NewPharmacyHandlers constructs PharmacyHandlers.
func NewPharmacyHandlers(pharmacies services.PharmacyService) *PharmacyHandlers {
	return &PharmacyHandlers{pharmacies: pharmacies}
}

// Routes registers the /pharmacies endpoints. The nearby route is registered
// before the id route so chi does not treat "nearby" as a pharmacy id.
func (h *PharmacyHandlers) Routes(r chi.Router) {
	r.Get("/", h.listPharmacies)
	r.Post("/", h.createPharmacy)
	r.Get("/nearby", h.nearbyPharmacies)
	r.Get("/{pharmacyID}", h.getPharmacy)
}

type shippingConfigPayload struct {
	FlatRate             string `json:"flat_rate"`
	OffersFreeShipping   bool   `json:"offers_free_shipping"`
	FreeShippingMinValue string `json:"free_shipping_min_value"`
}

type geoPointPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type createPharmacyRequest struct {
	Name     string                 `json:"name"`
	Email    string                 `json:"email"`
	Phone    string                 `json:"phone"`
	Address  addressPayload         `json:"address"`
	Location *geoPointPayload       `json:"location"`
	Shipping *shippingConfigPayload `json:"shipping"`
	Actor    string                 `json:"actor"`
}

func (h *PharmacyHandlers) createPharmacy(w http.ResponseWriter, r *http.Request) {
	var req createPharmacyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, r, "invalid request body: "+err.Error())
		return
	}

	cmd := services.CreatePharmacyCommand{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: *req.Address.toDomain(),
		ActorID: actorID(r, req.Actor),
	}
	if req.Location != nil {
		cmd.Location = &domain.GeoPoint{
			Latitude:  req.Location.Latitude,
			Longitude: req.Location.Longitude,
		}
	}
	if req.Shipping != nil {
		shipping, err := req.Shipping.toDomain()
		if err != nil {
			writeValidation(w, r, err.Error())
			return
		}
		cmd.Shipping = shipping
	}

	pharmacy, err := h.pharmacies.Create(r.Context(), cmd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, newPharmacyResponse(pharmacy))
}

func (h *PharmacyHandlers) listPharmacies(w http.ResponseWriter, r *http.Request) {
	filter, err := parsePharmacyFilter(r)
	if err != nil {
		writeValidation(w, r, err.Error())
		return
	}

	page, err := h.pharmacies.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newPageResponse(page, newPharmacyResponse))
}

func (h *PharmacyHandlers) getPharmacy(w http.ResponseWriter, r *http.Request) {
	pharmacy, err := h.pharmacies.Get(r.Context(), chi.URLParam(r, "pharmacyID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newPharmacyResponse(pharmacy))
}

func (h *PharmacyHandlers) nearbyPharmacies(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()

	lat, err := strconv.ParseFloat(strings.TrimSpace(values.Get("lat")), 64)
	if err != nil {
		writeValidation(w, r, "invalid lat")
		return
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(values.Get("lng")), 64)
	if err != nil {
		writeValidation(w, r, "invalid lng")
		return
	}

	query := services.NearbyPharmacyQuery{
		Location: domain.GeoPoint{Latitude: lat, Longitude: lng},
	}
	if raw := strings.TrimSpace(values.Get("radius_km")); raw != "" {
		if query.RadiusKm, err = strconv.ParseFloat(raw, 64); err != nil {
			writeValidation(w, r, "invalid radius_km")
			return
		}
	}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		if query.Limit, err = strconv.Atoi(raw); err != nil {
			writeValidation(w, r, "invalid limit")
			return
		}
	}

	nearby, err := h.pharmacies.Nearby(r.Context(), query)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	items := make([]nearbyPharmacyResponse, 0, len(nearby))
	for _, entry := range nearby {
		items = append(items, nearbyPharmacyResponse{
			Pharmacy:   newPharmacyResponse(entry.Pharmacy),
			DistanceKm: entry.DistanceKm,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func parsePharmacyFilter(r *http.Request) (repositories.PharmacyListFilter, error) {
	values := r.URL.Query()

	var filter repositories.PharmacyListFilter
	for _, raw := range values["status"] {
		status := domain.PharmacyStatus(strings.ToLower(strings.TrimSpace(raw)))
		if status != "" {
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	var err error
	if filter.Sort, err = parseSort(values, "name", "createdAt"); err != nil {
		return filter, err
	}
	if filter.Page, err = parseListParams(values); err != nil {
		return filter, err
	}
	return filter, nil
}

func (p *shippingConfigPayload) toDomain() (domain.ShippingConfig, error) {
	var cfg domain.ShippingConfig
	cfg.OffersFreeShipping = p.OffersFreeShipping

	var err error
	if raw := strings.TrimSpace(p.FlatRate); raw != "" {
		if cfg.FlatRate, err = decimal.NewFromString(raw); err != nil {
			return cfg, err
		}
	}
	if raw := strings.TrimSpace(p.FreeShippingMinValue); raw != "" {
		if cfg.FreeShippingMinValue, err = decimal.NewFromString(raw); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

type pharmacyStatsResponse struct {
	TotalOrders     int64  `json:"total_orders"`
	TotalRevenue    string `json:"total_revenue"`
	PendingOrders   int64  `json:"pending_orders"`
	CompletedOrders int64  `json:"completed_orders"`
	CancelledOrders int64  `json:"cancelled_orders"`
	TotalProducts   int64  `json:"total_products"`
	ActiveProducts  int64  `json:"active_products"`
}

type pharmacyResponse struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	Email     string                `json:"email"`
	Phone     string                `json:"phone,omitempty"`
	Status    string                `json:"status"`
	Address   *addressPayload       `json:"address,omitempty"`
	Location  *geoPointPayload      `json:"location,omitempty"`
	Shipping  shippingConfigPayload `json:"shipping"`
	Stats     pharmacyStatsResponse `json:"stats"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

type nearbyPharmacyResponse struct {
	Pharmacy   pharmacyResponse `json:"pharmacy"`
	DistanceKm float64          `json:"distance_km"`
}

func newPharmacyResponse(pharmacy domain.Pharmacy) pharmacyResponse {
	resp := pharmacyResponse{
		ID:      pharmacy.ID,
		Name:    pharmacy.Name,
		Email:   pharmacy.Email,
		Phone:   pharmacy.Phone,
		Status:  string(pharmacy.Status),
		Address: newAddressPayload(&pharmacy.Address),
		Shipping: shippingConfigPayload{
			FlatRate:             pharmacy.Shipping.FlatRate.String(),
			OffersFreeShipping:   pharmacy.Shipping.OffersFreeShipping,
			FreeShippingMinValue: pharmacy.Shipping.FreeShippingMinValue.String(),
		},
		Stats: pharmacyStatsResponse{
			TotalOrders:     pharmacy.Stats.TotalOrders,
			TotalRevenue:    pharmacy.Stats.TotalRevenue.String(),
			PendingOrders:   pharmacy.Stats.PendingOrders,
			CompletedOrders: pharmacy.Stats.CompletedOrders,
			CancelledOrders: pharmacy.Stats.CancelledOrders,
			TotalProducts:   pharmacy.Stats.TotalProducts,
			ActiveProducts:  pharmacy.Stats.ActiveProducts,
		},
		CreatedAt: pharmacy.CreatedAt,
		UpdatedAt: pharmacy.UpdatedAt,
	}
	if pharmacy.Location != nil {
		resp.Location = &geoPointPayload{
			Latitude:  pharmacy.Location.Latitude,
			Longitude: pharmacy.Location.Longitude,
		}
	}
	return resp
}
