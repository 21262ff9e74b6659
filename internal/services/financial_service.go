package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/events"
	"github.com/pharmakart/api/internal/repositories"
)

var (
	// ErrRefundInvalidInput signals the caller provided invalid data.
	ErrRefundInvalidInput = errors.New("refund: invalid input")
	// ErrRefundNotFound indicates the refund could not be located.
	ErrRefundNotFound = errors.New("refund: not found")
	// ErrRefundAlreadyResolved indicates the refund left the pending state.
	ErrRefundAlreadyResolved = errors.New("refund: already resolved")
)

// FinancialServiceDeps bundles collaborators required to construct the financial service.
type FinancialServiceDeps struct {
	Refunds repositories.RefundRepository
	Orders  repositories.OrderRepository
	Events  events.Publisher
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type financialService struct {
	refunds repositories.RefundRepository
	orders  repositories.OrderRepository
	events  events.Publisher
	clock   func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewFinancialService wires dependencies into a concrete FinancialService implementation.
func NewFinancialService(deps FinancialServiceDeps) (FinancialService, error) {
	if deps.Refunds == nil {
		return nil, errors.New("financial service: refund repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("financial service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &financialService{
		refunds: deps.Refunds,
		orders:  deps.Orders,
		events:  deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *financialService) ListRefunds(ctx context.Context, filter repositories.RefundListFilter) (domain.Page[Refund], error) {
	page, err := s.refunds.List(ctx, filter)
	if err != nil {
		return domain.Page[Refund]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// ApproveRefund marks the refund approved and flips the order's payment status
// to refunded. A full refund also moves the order status to refunded.
func (s *financialService) ApproveRefund(ctx context.Context, cmd ResolveRefundCommand) (Refund, error) {
	refund, err := s.pendingRefund(ctx, cmd.RefundID)
	if err != nil {
		return Refund{}, err
	}

	now := s.clock()
	actor := strings.TrimSpace(cmd.ActorID)
	refund.Status = domain.RefundStatusApproved
	refund.ResolvedBy = actor
	refund.ResolutionNotes = strings.TrimSpace(cmd.Notes)
	refund.UpdatedAt = now
	if err := s.refunds.Update(ctx, refund); err != nil {
		return Refund{}, s.mapRepositoryError(err)
	}

	order, err := s.orders.FindByID(ctx, refund.OrderID)
	if err != nil {
		// The refund decision stands; the order sync is retried by support.
		s.logger(ctx, "refund.order.sync.failed", map[string]any{
			"refund": refund.ID,
			"order":  refund.OrderID,
			"error":  err.Error(),
		})
		return refund, nil
	}

	previous := order.Status
	order.PaymentStatus = domain.PaymentStatusRefunded
	order.UpdatedAt = now
	if !refund.IsPartialRefund && !order.Status.IsTerminal() {
		order.Status = domain.OrderStatusRefunded
		order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
			Status:    domain.OrderStatusRefunded,
			Previous:  previous,
			Timestamp: now,
			Actor:     actor,
			Notes:     refund.ResolutionNotes,
		})
	}
	if err := s.orders.Update(ctx, order); err != nil {
		s.logger(ctx, "refund.order.sync.failed", map[string]any{
			"refund": refund.ID,
			"order":  order.ID,
			"error":  err.Error(),
		})
		return refund, nil
	}

	if order.Status != previous && s.events != nil {
		s.events.Publish(ctx, events.OrderStatusChanged{
			Order:    order,
			Previous: previous,
			Actor:    actor,
			At:       now,
		})
	}
	return refund, nil
}

func (s *financialService) RejectRefund(ctx context.Context, cmd ResolveRefundCommand) (Refund, error) {
	notes := strings.TrimSpace(cmd.Notes)
	if notes == "" {
		return Refund{}, fmt.Errorf("%w: rejection notes are required", ErrRefundInvalidInput)
	}

	refund, err := s.pendingRefund(ctx, cmd.RefundID)
	if err != nil {
		return Refund{}, err
	}

	refund.Status = domain.RefundStatusRejected
	refund.ResolvedBy = strings.TrimSpace(cmd.ActorID)
	refund.ResolutionNotes = notes
	refund.UpdatedAt = s.clock()
	if err := s.refunds.Update(ctx, refund); err != nil {
		return Refund{}, s.mapRepositoryError(err)
	}
	return refund, nil
}

func (s *financialService) pendingRefund(ctx context.Context, refundID string) (Refund, error) {
	refundID = strings.TrimSpace(refundID)
	if refundID == "" {
		return Refund{}, fmt.Errorf("%w: refund id is required", ErrRefundInvalidInput)
	}
	refund, err := s.refunds.FindByID(ctx, refundID)
	if err != nil {
		return Refund{}, s.mapRepositoryError(err)
	}
	if refund.Status != domain.RefundStatusPending {
		return Refund{}, fmt.Errorf("%w: refund is %s", ErrRefundAlreadyResolved, refund.Status)
	}
	return refund, nil
}

func (s *financialService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrRefundNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("refund: repository unavailable: %w", err)
		}
	}
	return err
}
