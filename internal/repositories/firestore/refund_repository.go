package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/pharmakart/api/internal/domain"
	pfirestore "github.com/pharmakart/api/internal/platform/firestore"
	"github.com/pharmakart/api/internal/repositories"
)

const (
	refundsCollection = "refunds"

	defaultRefundLimit = 20
	maxRefundLimit     = 100
)

// RefundRepository persists refund requests.
type RefundRepository struct {
	provider *pfirestore.Provider
}

func NewRefundRepository(provider *pfirestore.Provider) (*RefundRepository, error) {
	if provider == nil {
		return nil, errors.New("refund repository requires firestore provider")
	}
	return &RefundRepository{provider: provider}, nil
}

var _ repositories.RefundRepository = (*RefundRepository)(nil)

func (r *RefundRepository) Insert(ctx context.Context, refund domain.Refund) error {
	if refund.ID == "" {
		return errors.New("refund insert: id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("refunds.insert", err)
	}
	if _, err := client.Collection(refundsCollection).Doc(refund.ID).Create(ctx, newRefundDocument(refund)); err != nil {
		return pfirestore.WrapError("refunds.insert", err)
	}
	return nil
}

func (r *RefundRepository) Update(ctx context.Context, refund domain.Refund) error {
	if refund.ID == "" {
		return errors.New("refund update: id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("refunds.update", err)
	}
	if _, err := client.Collection(refundsCollection).Doc(refund.ID).Set(ctx, newRefundDocument(refund)); err != nil {
		return pfirestore.WrapError("refunds.update", err)
	}
	return nil
}

func (r *RefundRepository) FindByID(ctx context.Context, refundID string) (domain.Refund, error) {
	refundID = strings.TrimSpace(refundID)
	if refundID == "" {
		return domain.Refund{}, errors.New("refund find: id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Refund{}, pfirestore.WrapError("refunds.find", err)
	}
	snap, err := client.Collection(refundsCollection).Doc(refundID).Get(ctx)
	if err != nil {
		return domain.Refund{}, pfirestore.WrapError("refunds.find", err)
	}
	var doc refundDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Refund{}, fmt.Errorf("decode refund %s: %w", refundID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

func (r *RefundRepository) FindPendingByOrder(ctx context.Context, orderID string) (domain.Refund, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Refund{}, errors.New("refund find pending: order id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Refund{}, pfirestore.WrapError("refunds.findPending", err)
	}

	iter := client.Collection(refundsCollection).
		Where("orderId", "==", orderID).
		Where("status", "==", string(domain.RefundStatusPending)).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Refund{}, pfirestore.NotFoundError("refunds.findPending", err)
	}
	if err != nil {
		return domain.Refund{}, pfirestore.WrapError("refunds.findPending", err)
	}
	var doc refundDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Refund{}, fmt.Errorf("decode refund %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

func (r *RefundRepository) List(ctx context.Context, filter repositories.RefundListFilter) (domain.Page[domain.Refund], error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Page[domain.Refund]{}, pfirestore.WrapError("refunds.list", err)
	}

	query := client.Collection(refundsCollection).Query
	if id := strings.TrimSpace(filter.OrderID); id != "" {
		query = query.Where("orderId", "==", id)
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

	total, err := countDocuments(ctx, query)
	if err != nil {
		return domain.Page[domain.Refund]{}, pfirestore.WrapError("refunds.list", err)
	}

	page := filter.Page.Normalize(defaultRefundLimit, maxRefundLimit)
	query = query.OrderBy("createdAt", firestore.Desc).
		Offset(page.Offset).
		Limit(page.Limit)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var refunds []domain.Refund
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.Page[domain.Refund]{}, pfirestore.WrapError("refunds.list", err)
		}
		var doc refundDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Page[domain.Refund]{}, fmt.Errorf("decode refund %s: %w", snap.Ref.ID, err)
		}
		refunds = append(refunds, doc.toDomain(snap.Ref.ID))
	}

	return domain.Page[domain.Refund]{Items: refunds, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

type refundDocument struct {
	OrderID         string    `firestore:"orderId"`
	PharmacyID      string    `firestore:"pharmacyId"`
	Amount          string    `firestore:"amount"`
	Reason          string    `firestore:"reason,omitempty"`
	Status          string    `firestore:"status"`
	IsPartialRefund bool      `firestore:"isPartialRefund"`
	RequestedBy     string    `firestore:"requestedBy"`
	ResolvedBy      string    `firestore:"resolvedBy,omitempty"`
	ResolutionNotes string    `firestore:"resolutionNotes,omitempty"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func newRefundDocument(refund domain.Refund) refundDocument {
	return refundDocument{
		OrderID:         refund.OrderID,
		PharmacyID:      refund.PharmacyID,
		Amount:          moneyString(refund.Amount),
		Reason:          refund.Reason,
		Status:          string(refund.Status),
		IsPartialRefund: refund.IsPartialRefund,
		RequestedBy:     refund.RequestedBy,
		ResolvedBy:      refund.ResolvedBy,
		ResolutionNotes: refund.ResolutionNotes,
		CreatedAt:       refund.CreatedAt.UTC(),
		UpdatedAt:       refund.UpdatedAt.UTC(),
	}
}

func (d refundDocument) toDomain(id string) domain.Refund {
	return domain.Refund{
		ID:              id,
		OrderID:         d.OrderID,
		PharmacyID:      d.PharmacyID,
		Amount:          moneyValue(d.Amount),
		Reason:          d.Reason,
		Status:          domain.RefundStatus(d.Status),
		IsPartialRefund: d.IsPartialRefund,
		RequestedBy:     d.RequestedBy,
		ResolvedBy:      d.ResolvedBy,
		ResolutionNotes: d.ResolutionNotes,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}
