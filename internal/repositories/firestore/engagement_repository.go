package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/pharmakart/api/internal/domain"
	pfirestore "github.com/pharmakart/api/internal/platform/firestore"
	"github.com/pharmakart/api/internal/repositories"
)

const (
	wishlistsCollection   = "wishlists"
	stockAlertsCollection = "stockAlerts"
	mailQueueCollection   = "mailQueue"
)

// EngagementRepository reads wishlist and back-in-stock subscriptions.
// Wishlists are keyed by user id, stock alerts by product id.
type EngagementRepository struct {
	provider *pfirestore.Provider
}

func NewEngagementRepository(provider *pfirestore.Provider) (*EngagementRepository, error) {
	if provider == nil {
		return nil, errors.New("engagement repository requires firestore provider")
	}
	return &EngagementRepository{provider: provider}, nil
}

var _ repositories.EngagementRepository = (*EngagementRepository)(nil)

func (r *EngagementRepository) WishlistUserIDs(ctx context.Context, productID string) ([]string, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, errors.New("wishlist lookup: product id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("wishlists.userIds", err)
	}

	iter := client.Collection(wishlistsCollection).
		Where("productIds", "array-contains", productID).
		Select().
		Documents(ctx)
	defer iter.Stop()

	var userIDs []string
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("wishlists.userIds", err)
		}
		userIDs = append(userIDs, snap.Ref.ID)
	}
	return userIDs, nil
}

func (r *EngagementRepository) StockAlertUserIDs(ctx context.Context, productID string) ([]string, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, errors.New("stock alert lookup: product id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("stockAlerts.userIds", err)
	}

	snap, err := client.Collection(stockAlertsCollection).Doc(productID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, pfirestore.WrapError("stockAlerts.userIds", err)
	}
	var doc stockAlertDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode stock alert %s: %w", productID, err)
	}
	return doc.UserIDs, nil
}

func (r *EngagementRepository) ClearStockAlerts(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("stock alert clear: product id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("stockAlerts.clear", err)
	}
	if _, err := client.Collection(stockAlertsCollection).Doc(productID).Delete(ctx); err != nil {
		return pfirestore.WrapError("stockAlerts.clear", err)
	}
	return nil
}

type stockAlertDocument struct {
	UserIDs   []string  `firestore:"userIds"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// MailRepository enqueues outbound mail documents picked up by the delivery
// worker outside this service.
type MailRepository struct {
	provider *pfirestore.Provider
}

func NewMailRepository(provider *pfirestore.Provider) (*MailRepository, error) {
	if provider == nil {
		return nil, errors.New("mail repository requires firestore provider")
	}
	return &MailRepository{provider: provider}, nil
}

var _ repositories.MailRepository = (*MailRepository)(nil)

func (r *MailRepository) Enqueue(ctx context.Context, message domain.MailMessage) error {
	if message.ID == "" {
		return errors.New("mail enqueue: id is required")
	}
	if strings.TrimSpace(message.To) == "" {
		return errors.New("mail enqueue: recipient is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("mailQueue.enqueue", err)
	}
	doc := mailDocument{
		To:        message.To,
		Subject:   message.Subject,
		Body:      message.Body,
		Status:    string(message.Status),
		CreatedAt: message.CreatedAt.UTC(),
	}
	if _, err := client.Collection(mailQueueCollection).Doc(message.ID).Create(ctx, doc); err != nil {
		return pfirestore.WrapError("mailQueue.enqueue", err)
	}
	return nil
}

type mailDocument struct {
	To        string    `firestore:"to"`
	Subject   string    `firestore:"subject"`
	Body      string    `firestore:"body"`
	Status    string    `firestore:"status"`
	CreatedAt time.Time `firestore:"createdAt"`
}
