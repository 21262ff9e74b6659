package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/platform/auth"
	"github.com/pharmakart/api/internal/platform/httpx"
	"github.com/pharmakart/api/internal/platform/requestctx"
	"github.com/pharmakart/api/internal/services"
)

const maxBodySize = 64 * 1024

var errBodyTooLarge = errors.New("request body too large")

// exposeInternalErrors switches unmatched 500s to carry the underlying error
// message. Enabled for development environments only; production responses
// stay generic.
var exposeInternalErrors bool

// ExposeInternalErrors toggles internal error detail in 500 responses.
// Called once at startup.
func ExposeInternalErrors(enabled bool) {
	exposeInternalErrors = enabled
}

// decodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodySize)
	defer func() { _, _ = io.Copy(io.Discard, body) }()

	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errBodyTooLarge
		}
		return err
	}
	return nil
}

// writeServiceError translates service sentinel errors into the canonical
// error taxonomy. Unmatched errors become a logged 500 with the message
// suppressed unless internal detail is exposed for development.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	switch {
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrProductInvalidInput),
		errors.Is(err, services.ErrPharmacyInvalidInput),
		errors.Is(err, services.ErrRefundInvalidInput),
		errors.Is(err, services.ErrExportFormat):
		httpx.WriteError(ctx, w, httpx.BadRequest(httpx.CodeValidation, err.Error()))
	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrProductNotFound),
		errors.Is(err, services.ErrPharmacyNotFound),
		errors.Is(err, services.ErrRefundNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound(err.Error()))
	case errors.Is(err, services.ErrPharmacyInactive):
		httpx.WriteError(ctx, w, httpx.BadRequest(httpx.CodePharmacyInactive, err.Error()))
	case errors.Is(err, services.ErrOutOfStock):
		httpx.WriteError(ctx, w, httpx.BadRequest(httpx.CodeOutOfStock, err.Error()))
	case errors.Is(err, services.ErrPrescriptionRequired):
		httpx.WriteError(ctx, w, httpx.BadRequest(httpx.CodePrescriptionRequired, err.Error()))
	case errors.Is(err, services.ErrCouponMinValue):
		httpx.WriteError(ctx, w, httpx.BadRequest(httpx.CodeMinValueNotMet, err.Error()))
	case errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrPharmacyInvalidStatus):
		httpx.WriteError(ctx, w, httpx.BadRequest(httpx.CodeInvalidStatus, err.Error()))
	case errors.Is(err, services.ErrInvalidTransition):
		httpx.WriteError(ctx, w, httpx.BadRequest(httpx.CodeInvalidTransition, err.Error()))
	case errors.Is(err, services.ErrCannotCancel):
		httpx.WriteError(ctx, w, httpx.BadRequest(httpx.CodeCannotCancel, err.Error()))
	case errors.Is(err, services.ErrAlreadyCancelled):
		httpx.WriteError(ctx, w, httpx.BadRequest(httpx.CodeAlreadyCancelled, err.Error()))
	case errors.Is(err, services.ErrCannotRefund),
		errors.Is(err, services.ErrRefundAlreadyResolved):
		httpx.WriteError(ctx, w, httpx.BadRequest(httpx.CodeCannotRefund, err.Error()))
	default:
		requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
		message := "internal server error"
		if exposeInternalErrors {
			message = err.Error()
		}
		httpx.WriteError(ctx, w, httpx.Internal(message))
	}
}

func writeValidation(w http.ResponseWriter, r *http.Request, message string) {
	httpx.WriteError(r.Context(), w, httpx.BadRequest(httpx.CodeValidation, message))
}

// actorID resolves the acting principal: the authenticated identity when
// present, otherwise the caller-supplied fallback.
func actorID(r *http.Request, fallback string) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.UID != "" {
		return identity.UID
	}
	return strings.TrimSpace(fallback)
}

// parseListParams reads limit/offset query parameters.
func parseListParams(values url.Values) (domain.ListParams, error) {
	var params domain.ListParams
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return params, fmt.Errorf("invalid limit %q", raw)
		}
		params.Limit = limit
	}
	if raw := strings.TrimSpace(values.Get("offset")); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return params, fmt.Errorf("invalid offset %q", raw)
		}
		params.Offset = offset
	}
	return params, nil
}

// parseSort reads sort_by/sort_order query parameters, restricted to the
// provided field whitelist.
func parseSort(values url.Values, allowedFields ...string) (domain.Sort, error) {
	var sort domain.Sort
	field := strings.TrimSpace(values.Get("sort_by"))
	if field == "" {
		return sort, nil
	}
	allowed := false
	for _, candidate := range allowedFields {
		if field == candidate {
			allowed = true
			break
		}
	}
	if !allowed {
		return sort, fmt.Errorf("unsupported sort field %q", field)
	}
	sort.Field = field
	sort.Order = domain.SortAsc
	switch order := strings.ToLower(strings.TrimSpace(values.Get("sort_order"))); order {
	case "", "asc":
	case "desc":
		sort.Order = domain.SortDesc
	default:
		return sort, fmt.Errorf("unsupported sort order %q", order)
	}
	return sort, nil
}

// parseTimeRange reads from/to RFC3339 query parameters.
func parseTimeRange(values url.Values) (domain.RangeQuery[time.Time], error) {
	var rq domain.RangeQuery[time.Time]
	if raw := strings.TrimSpace(values.Get("from")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return rq, fmt.Errorf("invalid from timestamp %q", raw)
		}
		rq.From = &from
	}
	if raw := strings.TrimSpace(values.Get("to")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return rq, fmt.Errorf("invalid to timestamp %q", raw)
		}
		rq.To = &to
	}
	return rq, nil
}

// pageResponse is the standard paginated list envelope.
type pageResponse[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

func newPageResponse[I any, O any](page domain.Page[I], convert func(I) O) pageResponse[O] {
	items := make([]O, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, convert(item))
	}
	return pageResponse[O]{
		Items:  items,
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
}

type addressPayload struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (p *addressPayload) toDomain() *domain.Address {
	if p == nil {
		return nil
	}
	return &domain.Address{
		Line1:      p.Line1,
		Line2:      p.Line2,
		City:       p.City,
		State:      p.State,
		PostalCode: p.PostalCode,
		Country:    p.Country,
	}
}

func newAddressPayload(addr *domain.Address) *addressPayload {
	if addr == nil {
		return nil
	}
	return &addressPayload{
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}
