package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/platform/httpx"
	"github.com/pharmakart/api/internal/repositories"
	"github.com/pharmakart/api/internal/services"
)

// OrderHandlers exposes the order lifecycle endpoints.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs OrderHandlers.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Patch("/{orderID}/status", h.updateStatus)
	r.Post("/{orderID}/cancel", h.cancelOrder)
	r.Post("/{orderID}/refund", h.requestRefund)
}

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	CustomerID      string             `json:"customer_id"`
	PharmacyID      string             `json:"pharmacy_id"`
	Items           []orderItemRequest `json:"items"`
	CouponCode      string             `json:"coupon_code"`
	PrescriptionRef string             `json:"prescription_ref"`
	ShippingAddress *addressPayload    `json:"shipping_address"`
	BillingAddress  *addressPayload    `json:"billing_address"`
}

type updateOrderStatusRequest struct {
	Status            string     `json:"status"`
	Notes             string     `json:"notes"`
	TrackingCode      string     `json:"tracking_code"`
	EstimatedDelivery *time.Time `json:"estimated_delivery"`
	Actor             string     `json:"actor"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

type refundOrderRequest struct {
	Amount *string `json:"amount"`
	Reason string  `json:"reason"`
	Actor  string  `json:"actor"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, r, "invalid request body: "+err.Error())
		return
	}

	cmd := services.CreateOrderCommand{
		CustomerID:      req.CustomerID,
		PharmacyID:      req.PharmacyID,
		CouponCode:      req.CouponCode,
		PrescriptionRef: req.PrescriptionRef,
		ShippingAddress: req.ShippingAddress.toDomain(),
		BillingAddress:  req.BillingAddress.toDomain(),
		ActorID:         actorID(r, req.CustomerID),
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.OrderItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	order, err := h.orders.Create(r.Context(), cmd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, newOrderResponse(order))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
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

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderResponse(order))
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateOrderStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, r, "invalid request body: "+err.Error())
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), services.UpdateOrderStatusCommand{
		OrderID:           chi.URLParam(r, "orderID"),
		TargetStatus:      domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		ActorID:           actorID(r, req.Actor),
		Notes:             req.Notes,
		TrackingCode:      req.TrackingCode,
		EstimatedDelivery: req.EstimatedDelivery,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderResponse(order))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, r, "invalid request body: "+err.Error())
		return
	}

	order, err := h.orders.Cancel(r.Context(), services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Reason:  req.Reason,
		ActorID: actorID(r, req.Actor),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderResponse(order))
}

func (h *OrderHandlers) requestRefund(w http.ResponseWriter, r *http.Request) {
	var req refundOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, r, "invalid request body: "+err.Error())
		return
	}

	cmd := services.RequestRefundCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Reason:  req.Reason,
		ActorID: actorID(r, req.Actor),
	}
	if req.Amount != nil {
		amount, err := decimal.NewFromString(strings.TrimSpace(*req.Amount))
		if err != nil {
			writeValidation(w, r, "invalid refund amount")
			return
		}
		cmd.Amount = &amount
	}

	refund, err := h.orders.RequestRefund(r.Context(), cmd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, newRefundResponse(refund))
}

func parseOrderFilter(r *http.Request) (repositories.OrderListFilter, error) {
	values := r.URL.Query()

	var filter repositories.OrderListFilter
	filter.CustomerID = strings.TrimSpace(values.Get("customer_id"))
	filter.PharmacyID = strings.TrimSpace(values.Get("pharmacy_id"))
	for _, raw := range values["status"] {
		status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
		if status != "" {
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	var err error
	if filter.CreatedAt, err = parseTimeRange(values); err != nil {
		return filter, err
	}
	if filter.Sort, err = parseSort(values, "createdAt", "total", "status"); err != nil {
		return filter, err
	}
	if filter.Page, err = parseListParams(values); err != nil {
		return filter, err
	}
	return filter, nil
}

type orderItemResponse struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

type statusHistoryResponse struct {
	Status            string     `json:"status"`
	Previous          string     `json:"previous,omitempty"`
	Timestamp         time.Time  `json:"timestamp"`
	Actor             string     `json:"actor,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	TrackingCode      string     `json:"tracking_code,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
}

type orderResponse struct {
	ID              string                  `json:"id"`
	CustomerID      string                  `json:"customer_id"`
	PharmacyID      string                  `json:"pharmacy_id"`
	Items           []orderItemResponse     `json:"items"`
	Subtotal        string                  `json:"subtotal"`
	Discount        string                  `json:"discount"`
	ShippingCost    string                  `json:"shipping_cost"`
	Total           string                  `json:"total"`
	Status          string                  `json:"status"`
	PaymentStatus   string                  `json:"payment_status"`
	ShippingAddress *addressPayload         `json:"shipping_address,omitempty"`
	BillingAddress  *addressPayload         `json:"billing_address,omitempty"`
	CouponCode      string                  `json:"coupon_code,omitempty"`
	PrescriptionRef string                  `json:"prescription_ref,omitempty"`
	CancelReason    string                  `json:"cancel_reason,omitempty"`
	StatusHistory   []statusHistoryResponse `json:"status_history"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

func newOrderResponse(order domain.Order) orderResponse {
	resp := orderResponse{
		ID:              order.ID,
		CustomerID:      order.CustomerID,
		PharmacyID:      order.PharmacyID,
		Items:           make([]orderItemResponse, 0, len(order.Items)),
		Subtotal:        order.Subtotal.String(),
		Discount:        order.Discount.String(),
		ShippingCost:    order.ShippingCost.String(),
		Total:           order.Total.String(),
		Status:          string(order.Status),
		PaymentStatus:   string(order.PaymentStatus),
		ShippingAddress: newAddressPayload(order.ShippingAddress),
		BillingAddress:  newAddressPayload(order.BillingAddress),
		CouponCode:      order.CouponCode,
		PrescriptionRef: order.PrescriptionRef,
		CancelReason:    order.CancelReason,
		StatusHistory:   make([]statusHistoryResponse, 0, len(order.StatusHistory)),
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.String(),
			Subtotal:  item.Subtotal().String(),
		})
	}
	for _, entry := range order.StatusHistory {
		resp.StatusHistory = append(resp.StatusHistory, statusHistoryResponse{
			Status:            string(entry.Status),
			Previous:          string(entry.Previous),
			Timestamp:         entry.Timestamp,
			Actor:             entry.Actor,
			Notes:             entry.Notes,
			TrackingCode:      entry.TrackingCode,
			EstimatedDelivery: entry.EstimatedDelivery,
		})
	}
	return resp
}

type refundResponse struct {
	ID              string    `json:"id"`
	OrderID         string    `json:"order_id"`
	PharmacyID      string    `json:"pharmacy_id"`
	Amount          string    `json:"amount"`
	Reason          string    `json:"reason"`
	Status          string    `json:"status"`
	IsPartialRefund bool      `json:"is_partial_refund"`
	RequestedBy     string    `json:"requested_by,omitempty"`
	ResolvedBy      string    `json:"resolved_by,omitempty"`
	ResolutionNotes string    `json:"resolution_notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func newRefundResponse(refund domain.Refund) refundResponse {
	return refundResponse{
		ID:              refund.ID,
		OrderID:         refund.OrderID,
		PharmacyID:      refund.PharmacyID,
		Amount:          refund.Amount.String(),
		Reason:          refund.Reason,
		Status:          string(refund.Status),
		IsPartialRefund: refund.IsPartialRefund,
		RequestedBy:     refund.RequestedBy,
		ResolvedBy:      refund.ResolvedBy,
		ResolutionNotes: refund.ResolutionNotes,
		CreatedAt:       refund.CreatedAt,
		UpdatedAt:       refund.UpdatedAt,
	}
}
