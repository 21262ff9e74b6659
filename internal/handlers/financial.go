package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/platform/httpx"
	"github.com/pharmakart/api/internal/repositories"
	"github.com/pharmakart/api/internal/services"
)

// FinancialHandlers exposes the refund resolution endpoints.
type FinancialHandlers struct {
	financial services.FinancialService
}

// NewFinancialHandlers constructs FinancialHandlers.
func NewFinancialHandlers(financial services.FinancialService) *FinancialHandlers {
	return &FinancialHandlers{financial: financial}
}

// Routes registers the /financial endpoints.
func (h *FinancialHandlers) Routes(r chi.Router) {
	r.Get("/refunds", h.listRefunds)
	r.Post("/refunds/{refundID}/approve", h.approveRefund)
	r.Post("/refunds/{refundID}/reject", h.rejectRefund)
}

type resolveRefundRequest struct {
	Notes string `json:"notes"`
	Actor string `json:"actor"`
}

func (h *FinancialHandlers) listRefunds(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRefundFilter(r)
	if err != nil {
		writeValidation(w, r, err.Error())
		return
	}

	page, err := h.financial.ListRefunds(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newPageResponse(page, newRefundResponse))
}

func (h *FinancialHandlers) approveRefund(w http.ResponseWriter, r *http.Request) {
	h.resolveRefund(w, r, h.financial.ApproveRefund)
}

func (h *FinancialHandlers) rejectRefund(w http.ResponseWriter, r *http.Request) {
	h.resolveRefund(w, r, h.financial.RejectRefund)
}

func (h *FinancialHandlers) resolveRefund(w http.ResponseWriter, r *http.Request, resolve func(ctx context.Context, cmd services.ResolveRefundCommand) (domain.Refund, error)) {
	var req resolveRefundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, r, "invalid request body: "+err.Error())
		return
	}

	refund, err := resolve(r.Context(), services.ResolveRefundCommand{
		RefundID: chi.URLParam(r, "refundID"),
		Notes:    req.Notes,
		ActorID:  actorID(r, req.Actor),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newRefundResponse(refund))
}

func parseRefundFilter(r *http.Request) (repositories.RefundListFilter, error) {
	values := r.URL.Query()

	var filter repositories.RefundListFilter
	filter.OrderID = strings.TrimSpace(values.Get("order_id"))
	filter.PharmacyID = strings.TrimSpace(values.Get("pharmacy_id"))
	for _, raw := range values["status"] {
		status := domain.RefundStatus(strings.ToLower(strings.TrimSpace(raw)))
		if status != "" {
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	var err error
	if filter.Page, err = parseListParams(values); err != nil {
		return filter, err
	}
	return filter, nil
}
