package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/platform/httpx"
	"github.com/pharmakart/api/internal/repositories"
	"github.com/pharmakart/api/internal/services"
)

// AdminHandlers exposes the back-office endpoints: marketplace-wide lists,
// aggregated stats, audit log access and pharmacy lifecycle decisions.
type AdminHandlers struct {
	orders     services.OrderService
	catalog    services.CatalogService
	pharmacies services.PharmacyService
	reporting  services.ReportingService
}

// NewAdminHandlers constructs AdminHandlers.
func NewAdminHandlers(orders services.OrderService, catalog services.CatalogService, pharmacies services.PharmacyService, reporting services.ReportingService) *AdminHandlers {
	return &AdminHandlers{
		orders:     orders,
		catalog:    catalog,
		pharmacies: pharmacies,
		reporting:  reporting,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	r.Get("/orders", h.listOrders)
	r.Get("/products", h.listProducts)
	r.Get("/pharmacies", h.listPharmacies)
	r.Get("/stats", h.stats)
	r.Get("/audit-logs", h.listAuditLogs)
	r.Get("/audit-logs/export", h.exportAuditLogs)
	r.Post("/pharmacies/{pharmacyID}/status", h.changePharmacyStatus)
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := parseOrderFilter(r)
	if err != nil {
		writeValidation(w, r, err.Error())
		return
	}
	page, err := h.orders.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newPageResponse(page, newOrderResponse))
}

func (h *AdminHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseProductFilter(r)
	if err != nil {
		writeValidation(w, r, err.Error())
		return
	}
	page, err := h.catalog.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newPageResponse(page, newProductResponse))
}

func (h *AdminHandlers) listPharmacies(w http.ResponseWriter, r *http.Request) {
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

func (h *AdminHandlers) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reporting.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	ordersByStatus := make(map[string]int64, len(stats.OrdersByStatus))
	for status, count := range stats.OrdersByStatus {
		ordersByStatus[string(status)] = count
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"orders_by_status":     ordersByStatus,
		"products_by_category": stats.ProductsByCategory,
		"generated_at":         stats.GeneratedAt,
	})
}

func (h *AdminHandlers) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditLogFilter(r)
	if err != nil {
		writeValidation(w, r, err.Error())
		return
	}
	page, err := h.reporting.ListAuditLogs(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newPageResponse(page, newAuditLogResponse))
}

func (h *AdminHandlers) exportAuditLogs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditLogFilter(r)
	if err != nil {
		writeValidation(w, r, err.Error())
		return
	}

	format := services.ExportFormatJSON
	if raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))); raw != "" {
		format = services.ExportFormat(raw)
	}

	payload, contentType, err := h.reporting.ExportAuditLogs(r.Context(), filter, format)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="audit-logs.`+string(format)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

type changePharmacyStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

func (h *AdminHandlers) changePharmacyStatus(w http.ResponseWriter, r *http.Request) {
	var req changePharmacyStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, r, "invalid request body: "+err.Error())
		return
	}

	pharmacy, err := h.pharmacies.ChangeStatus(r.Context(), services.ChangePharmacyStatusCommand{
		PharmacyID:   chi.URLParam(r, "pharmacyID"),
		TargetStatus: domain.PharmacyStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		Reason:       req.Reason,
		ActorID:      actorID(r, req.Actor),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newPharmacyResponse(pharmacy))
}

func parseAuditLogFilter(r *http.Request) (repositories.AuditLogFilter, error) {
	values := r.URL.Query()

	var filter repositories.AuditLogFilter
	filter.Actor = strings.TrimSpace(values.Get("actor"))
	filter.Action = domain.AuditAction(strings.TrimSpace(values.Get("action")))
	filter.EntityType = strings.TrimSpace(values.Get("entity_type"))
	filter.EntityID = strings.TrimSpace(values.Get("entity_id"))

	var err error
	if filter.CreatedAt, err = parseTimeRange(values); err != nil {
		return filter, err
	}
	if filter.Page, err = parseListParams(values); err != nil {
		return filter, err
	}
	return filter, nil
}

type auditLogResponse struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	ActorType  string         `json:"actor_type,omitempty"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Severity   string         `json:"severity"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func newAuditLogResponse(entry domain.AuditLogEntry) auditLogResponse {
	return auditLogResponse{
		ID:         entry.ID,
		Action:     string(entry.Action),
		Actor:      entry.Actor,
		ActorType:  entry.ActorType,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Severity:   string(entry.Severity),
		Details:    entry.Details,
		CreatedAt:  entry.CreatedAt,
	}
}
