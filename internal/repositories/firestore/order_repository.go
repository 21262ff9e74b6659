package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/pharmakart/api/internal/domain"
	pfirestore "github.com/pharmakart/api/internal/platform/firestore"
	"github.com/pharmakart/api/internal/repositories"
)

const (
	ordersCollection = "orders"

	defaultOrderLimit = 20
	maxOrderLimit     = 100
)

var openOrderStatuses = []string{
	string(domain.OrderStatusPending),
	string(domain.OrderStatusConfirmed),
	string(domain.OrderStatusProcessing),
	string(domain.OrderStatusShipped),
}

// OrderRepository persists orders in the orders collection.
type OrderRepository struct {
	provider *pfirestore.Provider
}

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// isStockError keeps stock rejections raised inside a transaction
// recognisable to the service layer.
func isStockError(err error) bool {
	_, ok := repositories.AsStockError(err)
	return ok
}

func (r *OrderRepository) InsertWithStockDecrement(ctx context.Context, order domain.Order) error {
	if order.ID == "" {
		return errors.New("order insert: id is required")
	}
	if len(order.Items) == 0 {
		return errors.New("order insert: at least one item is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef := client.Collection(ordersCollection).Doc(order.ID)
		if _, err := tx.Get(orderRef); err == nil {
			return fmt.Errorf("order %s already exists", order.ID)
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		// All reads must precede writes inside a firestore transaction.
		type pendingWrite struct {
			ref *firestore.DocumentRef
			doc productDocument
		}
		writes := make([]pendingWrite, 0, len(order.Items))
		for _, item := range order.Items {
			productRef := client.Collection(productsCollection).Doc(item.ProductID)
			snap, err := tx.Get(productRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewStockError(repositories.StockErrorProductNotFound, item.ProductID, "")
				}
				return err
			}
			var doc productDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode product %s: %w", item.ProductID, err)
			}
			if !doc.Active {
				return repositories.NewStockError(repositories.StockErrorProductInactive, item.ProductID, "")
			}
			if doc.Stock < item.Quantity {
				return repositories.NewStockError(repositories.StockErrorInsufficient, item.ProductID,
					fmt.Sprintf("have %d, want %d", doc.Stock, item.Quantity))
			}
			doc.Stock -= item.Quantity
			doc.UpdatedAt = order.CreatedAt
			writes = append(writes, pendingWrite{ref: productRef, doc: doc})
		}

		for _, write := range writes {
			if err := tx.Set(write.ref, write.doc); err != nil {
				return err
			}
		}
		return tx.Create(orderRef, newOrderDocument(order))
	}, pfirestore.WithTxOp("orders.insert"), pfirestore.WithTxPassthrough(isStockError))
}

func (r *OrderRepository) UpdateWithStockRestore(ctx context.Context, order domain.Order, restore []repositories.StockLine) error {
	if order.ID == "" {
		return errors.New("order update: id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("orders.update", err)
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		type pendingWrite struct {
			ref *firestore.DocumentRef
			doc productDocument
		}
		writes := make([]pendingWrite, 0, len(restore))
		for _, line := range restore {
			productRef := client.Collection(productsCollection).Doc(line.ProductID)
			snap, err := tx.Get(productRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					// Product deleted since checkout; nothing to restore.
					continue
				}
				return err
			}
			var doc productDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode product %s: %w", line.ProductID, err)
			}
			doc.Stock += line.Quantity
			doc.UpdatedAt = order.UpdatedAt
			writes = append(writes, pendingWrite{ref: productRef, doc: doc})
		}

		for _, write := range writes {
			if err := tx.Set(write.ref, write.doc); err != nil {
				return err
			}
		}
		orderRef := client.Collection(ordersCollection).Doc(order.ID)
		return tx.Set(orderRef, newOrderDocument(order))
	}, pfirestore.WithTxOp("orders.update"))
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if order.ID == "" {
		return errors.New("order update: id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	if _, err := client.Collection(ordersCollection).Doc(order.ID).Set(ctx, newOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order find: id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.find", err)
	}
	snap, err := client.Collection(ordersCollection).Doc(orderID).Get(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.find", err)
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Page[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	query := r.buildListQuery(client, filter)

	total, err := countDocuments(ctx, query)
	if err != nil {
		return domain.Page[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	page := filter.Page.Normalize(defaultOrderLimit, maxOrderLimit)
	query = query.OrderBy(orderSortField(filter.Sort), sortDirection(filter.Sort.Order)).
		Offset(page.Offset).
		Limit(page.Limit)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.Page[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Page[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	return domain.Page[domain.Order]{Items: orders, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

func (r *OrderRepository) ListOpenByPharmacy(ctx context.Context, pharmacyID string) ([]domain.Order, error) {
	pharmacyID = strings.TrimSpace(pharmacyID)
	if pharmacyID == "" {
		return nil, errors.New("order list open: pharmacy id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("orders.listOpen", err)
	}

	iter := client.Collection(ordersCollection).
		Where("pharmacyId", "==", pharmacyID).
		Where("status", "in", openOrderStatuses).
		Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orders.listOpen", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}
	return orders, nil
}

// BulkCancelOpenByPharmacy cancels every pending, confirmed or processing
// order of the pharmacy in one transaction, so a partial cancellation can
// never be observed, and returns the cancelled orders in their post-cancel
// state. Each returned order carries the status it left in its last history
// entry. Shipped orders are left alone: they are already on their way to the
// customer.
func (r *OrderRepository) BulkCancelOpenByPharmacy(ctx context.Context, pharmacyID, reason string, now time.Time) ([]domain.Order, error) {
	pharmacyID = strings.TrimSpace(pharmacyID)
	if pharmacyID == "" {
		return nil, errors.New("order bulk cancel: pharmacy id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("orders.bulkCancel", err)
	}

	cancellable := []string{
		string(domain.OrderStatusPending),
		string(domain.OrderStatusConfirmed),
		string(domain.OrderStatusProcessing),
	}
	query := client.Collection(ordersCollection).
		Where("pharmacyId", "==", pharmacyID).
		Where("status", "in", cancellable)

	now = now.UTC()
	var cancelled []domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		cancelled = cancelled[:0]

		iter := tx.Documents(query)
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				return err
			}
			var doc orderDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
			}
			order := doc.toDomain(snap.Ref.ID)

			entry := domain.StatusHistoryEntry{
				Status:    domain.OrderStatusCancelled,
				Previous:  order.Status,
				Timestamp: now,
				Actor:     "system",
				Notes:     reason,
			}
			if err := tx.Update(snap.Ref, []firestore.Update{
				{Path: "status", Value: string(domain.OrderStatusCancelled)},
				{Path: "cancelReason", Value: reason},
				{Path: "updatedAt", Value: now},
				{Path: "statusHistory", Value: firestore.ArrayUnion(statusHistoryDocument{
					Status:    string(entry.Status),
					Previous:  string(entry.Previous),
					Timestamp: now,
					Actor:     entry.Actor,
					Notes:     entry.Notes,
				})},
			}); err != nil {
				return err
			}

			order.Status = domain.OrderStatusCancelled
			order.CancelReason = reason
			order.UpdatedAt = now
			order.StatusHistory = append(order.StatusHistory, entry)
			cancelled = append(cancelled, order)
		}
		return nil
	}, pfirestore.WithTxOp("orders.bulkCancel"))
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (r *OrderRepository) CountByStatus(ctx context.Context, filter repositories.OrderListFilter) (map[domain.OrderStatus]int64, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("orders.countByStatus", err)
	}

	query := r.buildListQuery(client, filter).Select("status")
	iter := query.Documents(ctx)
	defer iter.Stop()

	counts := make(map[domain.OrderStatus]int64)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orders.countByStatus", err)
		}
		raw, err := snap.DataAt("status")
		if err != nil {
			continue
		}
		if value, ok := raw.(string); ok {
			counts[domain.OrderStatus(value)]++
		}
	}
	return counts, nil
}

func (r *OrderRepository) buildListQuery(client *firestore.Client, filter repositories.OrderListFilter) firestore.Query {
	query := client.Collection(ordersCollection).Query
	if id := strings.TrimSpace(filter.CustomerID); id != "" {
		query = query.Where("customerId", "==", id)
	}
	if id := strings.TrimSpace(filter.PharmacyID); id != "" {
		query = query.Where("pharmacyId", "==", id)
	}
	if len(filter.Statuses) > 0 {
		values := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			values[i] = string(s)
		}
		query = query.Where("status", "in", values)
	}
	return applyTimeRange(query, "createdAt", filter.CreatedAt)
}

func orderSortField(sort domain.Sort) string {
	switch sort.Field {
	case "total", "status", "updatedAt":
		return sort.Field
	default:
		return "createdAt"
	}
}

// Document mapping ----------------------------------------------------------

type orderDocument struct {
	CustomerID      string                  `firestore:"customerId"`
	PharmacyID      string                  `firestore:"pharmacyId"`
	Items           []orderItemDocument     `firestore:"items"`
	Subtotal        string                  `firestore:"subtotal"`
	Discount        string                  `firestore:"discount"`
	ShippingCost    string                  `firestore:"shippingCost"`
	Total           string                  `firestore:"total"`
	Status          string                  `firestore:"status"`
	PaymentStatus   string                  `firestore:"paymentStatus"`
	ShippingAddress *addressDocument        `firestore:"shippingAddress,omitempty"`
	BillingAddress  *addressDocument        `firestore:"billingAddress,omitempty"`
	CouponCode      string                  `firestore:"couponCode,omitempty"`
	PrescriptionRef string                  `firestore:"prescriptionRef,omitempty"`
	CancelReason    string                  `firestore:"cancelReason,omitempty"`
	StatusHistory   []statusHistoryDocument `firestore:"statusHistory"`
	CreatedAt       time.Time               `firestore:"createdAt"`
	UpdatedAt       time.Time               `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Quantity  int    `firestore:"qty"`
	UnitPrice string `firestore:"unitPrice"`
}

type statusHistoryDocument struct {
	Status            string     `firestore:"status"`
	Previous          string     `firestore:"previous,omitempty"`
	Timestamp         time.Time  `firestore:"timestamp"`
	Actor             string     `firestore:"actor,omitempty"`
	Notes             string     `firestore:"notes,omitempty"`
	TrackingCode      string     `firestore:"trackingCode,omitempty"`
	EstimatedDelivery *time.Time `firestore:"estimatedDelivery,omitempty"`
}

type addressDocument struct {
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: moneyString(item.UnitPrice),
		}
	}
	history := make([]statusHistoryDocument, len(order.StatusHistory))
	for i, entry := range order.StatusHistory {
		history[i] = statusHistoryDocument{
			Status:            string(entry.Status),
			Previous:          string(entry.Previous),
			Timestamp:         entry.Timestamp.UTC(),
			Actor:             entry.Actor,
			Notes:             entry.Notes,
			TrackingCode:      entry.TrackingCode,
			EstimatedDelivery: entry.EstimatedDelivery,
		}
	}
	return orderDocument{
		CustomerID:      order.CustomerID,
		PharmacyID:      order.PharmacyID,
		Items:           items,
		Subtotal:        moneyString(order.Subtotal),
		Discount:        moneyString(order.Discount),
		ShippingCost:    moneyString(order.ShippingCost),
		Total:           moneyString(order.Total),
		Status:          string(order.Status),
		PaymentStatus:   string(order.PaymentStatus),
		ShippingAddress: newAddressDocument(order.ShippingAddress),
		BillingAddress:  newAddressDocument(order.BillingAddress),
		CouponCode:      order.CouponCode,
		PrescriptionRef: order.PrescriptionRef,
		CancelReason:    order.CancelReason,
		StatusHistory:   history,
		CreatedAt:       order.CreatedAt.UTC(),
		UpdatedAt:       order.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: moneyValue(item.UnitPrice),
		}
	}
	history := make([]domain.StatusHistoryEntry, len(d.StatusHistory))
	for i, entry := range d.StatusHistory {
		history[i] = domain.StatusHistoryEntry{
			Status:            domain.OrderStatus(entry.Status),
			Previous:          domain.OrderStatus(entry.Previous),
			Timestamp:         entry.Timestamp,
			Actor:             entry.Actor,
			Notes:             entry.Notes,
			TrackingCode:      entry.TrackingCode,
			EstimatedDelivery: entry.EstimatedDelivery,
		}
	}
	return domain.Order{
		ID:              id,
		CustomerID:      d.CustomerID,
		PharmacyID:      d.PharmacyID,
		Items:           items,
		Subtotal:        moneyValue(d.Subtotal),
		Discount:        moneyValue(d.Discount),
		ShippingCost:    moneyValue(d.ShippingCost),
		Total:           moneyValue(d.Total),
		Status:          domain.OrderStatus(d.Status),
		PaymentStatus:   domain.PaymentStatus(d.PaymentStatus),
		ShippingAddress: d.ShippingAddress.toDomain(),
		BillingAddress:  d.BillingAddress.toDomain(),
		CouponCode:      d.CouponCode,
		PrescriptionRef: d.PrescriptionRef,
		CancelReason:    d.CancelReason,
		StatusHistory:   history,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func newAddressDocument(addr *domain.Address) *addressDocument {
	if addr == nil {
		return nil
	}
	return &addressDocument{
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}

func (d *addressDocument) toDomain() *domain.Address {
	if d == nil {
		return nil
	}
	return &domain.Address{
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
	}
}
