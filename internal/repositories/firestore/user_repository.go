package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/samber/lo"
	"google.golang.org/api/iterator"

	domain "github.com/pharmakart/api/internal/domain"
	pfirestore "github.com/pharmakart/api/internal/platform/firestore"
	"github.com/pharmakart/api/internal/repositories"
)

const (
	usersCollection = "users"

	// Firestore caps "in" clauses at 30 values per query.
	idChunkSize = 30
)

var adminRoles = []string{
	string(domain.UserRoleSuperAdmin),
	string(domain.UserRolePharmacyAdmin),
}

// UserRepository reads marketplace accounts and maintains device tokens.
type UserRepository struct {
	provider *pfirestore.Provider
}

func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{provider: provider}, nil
}

var _ repositories.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.User{}, errors.New("user find: id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.User{}, pfirestore.WrapError("users.find", err)
	}
	snap, err := client.Collection(usersCollection).Doc(userID).Get(ctx)
	if err != nil {
		return domain.User{}, pfirestore.WrapError("users.find", err)
	}
	var doc userDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.User{}, fmt.Errorf("decode user %s: %w", userID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

func (r *UserRepository) ListByIDs(ctx context.Context, userIDs []string) ([]domain.User, error) {
	ids := lo.Uniq(lo.Filter(userIDs, func(id string, _ int) bool {
		return strings.TrimSpace(id) != ""
	}))
	if len(ids) == 0 {
		return nil, nil
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("users.listByIds", err)
	}

	var users []domain.User
	for _, chunk := range lo.Chunk(ids, idChunkSize) {
		iter := client.Collection(usersCollection).
			Where(firestore.DocumentID, "in", lo.Map(chunk, func(id string, _ int) any {
				return client.Collection(usersCollection).Doc(id)
			})).
			Documents(ctx)
		chunkUsers, err := drainUsers(iter)
		if err != nil {
			return nil, pfirestore.WrapError("users.listByIds", err)
		}
		users = append(users, chunkUsers...)
	}
	return users, nil
}

func (r *UserRepository) ListActiveAdmins(ctx context.Context) ([]domain.User, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("users.listAdmins", err)
	}
	iter := client.Collection(usersCollection).
		Where("active", "==", true).
		Where("role", "in", adminRoles).
		Documents(ctx)
	users, err := drainUsers(iter)
	if err != nil {
		return nil, pfirestore.WrapError("users.listAdmins", err)
	}
	return users, nil
}

func (r *UserRepository) RemoveDeviceTokens(ctx context.Context, userID string, tokens []string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("user tokens: user id is required")
	}
	if len(tokens) == 0 {
		return nil
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("users.tokens", err)
	}
	values := make([]any, len(tokens))
	for i, token := range tokens {
		values[i] = token
	}
	_, err = client.Collection(usersCollection).Doc(userID).Update(ctx, []firestore.Update{
		{Path: "deviceTokens", Value: firestore.ArrayRemove(values...)},
	})
	if err != nil {
		return pfirestore.WrapError("users.tokens", err)
	}
	return nil
}

func drainUsers(iter *firestore.DocumentIterator) ([]domain.User, error) {
	defer iter.Stop()
	var users []domain.User
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		var doc userDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode user %s: %w", snap.Ref.ID, err)
		}
		users = append(users, doc.toDomain(snap.Ref.ID))
	}
	return users, nil
}

type userDocument struct {
	Email        string    `firestore:"email"`
	Role         string    `firestore:"role"`
	Active       bool      `firestore:"active"`
	PharmacyID   string    `firestore:"pharmacyId,omitempty"`
	DeviceTokens []string  `firestore:"deviceTokens,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func (d userDocument) toDomain(id string) domain.User {
	return domain.User{
		ID:           id,
		Email:        d.Email,
		Role:         domain.UserRole(d.Role),
		Active:       d.Active,
		PharmacyID:   d.PharmacyID,
		DeviceTokens: d.DeviceTokens,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}
