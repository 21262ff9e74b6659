package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/events"
	"github.com/pharmakart/api/internal/repositories"
)

const (
	pharmacyIDPrefix = "pha_"

	defaultNearbyRadiusKm = 10.0
	maxNearbyRadiusKm     = 100.0
	defaultNearbyLimit    = 20
)

var (
	// ErrPharmacyInvalidInput signals the caller provided invalid data.
	ErrPharmacyInvalidInput = errors.New("pharmacy: invalid input")
	// ErrPharmacyNotFound indicates the pharmacy could not be located.
	ErrPharmacyNotFound = errors.New("pharmacy: not found")
	// ErrPharmacyInvalidStatus indicates the target lifecycle status is unknown.
	ErrPharmacyInvalidStatus = errors.New("pharmacy: invalid status")
)

var validPharmacyStatuses = []domain.PharmacyStatus{
	domain.PharmacyStatusPending,
	domain.PharmacyStatusApproved,
	domain.PharmacyStatusSuspended,
	domain.PharmacyStatusRejected,
	domain.PharmacyStatusInactive,
}

// PharmacyServiceDeps bundles collaborators required to construct the pharmacy service.
type PharmacyServiceDeps struct {
	Pharmacies  repositories.PharmacyRepository
	Events      events.Publisher
	Clock       func() time.Time
	IDGenerator func() string
}

type pharmacyService struct {
	pharmacies repositories.PharmacyRepository
	events     events.Publisher
	clock      func() time.Time
	newID      func() string
}

// NewPharmacyService wires dependencies into a concrete PharmacyService implementation.
func NewPharmacyService(deps PharmacyServiceDeps) (PharmacyService, error) {
	if deps.Pharmacies == nil {
		return nil, errors.New("pharmacy service: pharmacy repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	return &pharmacyService{
		pharmacies: deps.Pharmacies,
		events:     deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID: idGen,
	}, nil
}

func (s *pharmacyService) Create(ctx context.Context, cmd CreatePharmacyCommand) (Pharmacy, error) {
	name := strings.TrimSpace(cmd.Name)
	email := strings.TrimSpace(cmd.Email)
	if name == "" {
		return Pharmacy{}, fmt.Errorf("%w: name is required", ErrPharmacyInvalidInput)
	}
	if email == "" {
		return Pharmacy{}, fmt.Errorf("%w: email is required", ErrPharmacyInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return Pharmacy{}, fmt.Errorf("%w: invalid email %q", ErrPharmacyInvalidInput, email)
	}
	if cmd.Shipping.FlatRate.IsNegative() || cmd.Shipping.FreeShippingMinValue.IsNegative() {
		return Pharmacy{}, fmt.Errorf("%w: shipping amounts must not be negative", ErrPharmacyInvalidInput)
	}

	now := s.clock()
	pharmacy := Pharmacy{
		ID:        pharmacyIDPrefix + s.newID(),
		Name:      name,
		Email:     email,
		Phone:     strings.TrimSpace(cmd.Phone),
		Status:    domain.PharmacyStatusPending,
		Address:   cmd.Address,
		Location:  cmd.Location,
		Shipping:  cmd.Shipping,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.pharmacies.Insert(ctx, pharmacy); err != nil {
		return Pharmacy{}, s.mapRepositoryError(err)
	}

	s.publish(ctx, events.PharmacyCreated{Pharmacy: pharmacy, At: now})
	return pharmacy, nil
}

func (s *pharmacyService) ChangeStatus(ctx context.Context, cmd ChangePharmacyStatusCommand) (Pharmacy, error) {
	pharmacyID := strings.TrimSpace(cmd.PharmacyID)
	if pharmacyID == "" {
		return Pharmacy{}, fmt.Errorf("%w: pharmacy id is required", ErrPharmacyInvalidInput)
	}
	if !validPharmacyStatus(cmd.TargetStatus) {
		return Pharmacy{}, fmt.Errorf("%w: %q", ErrPharmacyInvalidStatus, cmd.TargetStatus)
	}

	pharmacy, err := s.pharmacies.FindByID(ctx, pharmacyID)
	if err != nil {
		return Pharmacy{}, s.mapRepositoryError(err)
	}
	if pharmacy.Status == cmd.TargetStatus {
		return pharmacy, nil
	}

	now := s.clock()
	previous := pharmacy.Status
	pharmacy.Status = cmd.TargetStatus
	pharmacy.UpdatedAt = now
	if err := s.pharmacies.Update(ctx, pharmacy); err != nil {
		return Pharmacy{}, s.mapRepositoryError(err)
	}

	s.publish(ctx, events.PharmacyStatusChanged{
		Pharmacy: pharmacy,
		Previous: previous,
		Actor:    strings.TrimSpace(cmd.ActorID),
		At:       now,
	})
	return pharmacy, nil
}

func (s *pharmacyService) Get(ctx context.Context, pharmacyID string) (Pharmacy, error) {
	pharmacyID = strings.TrimSpace(pharmacyID)
	if pharmacyID == "" {
		return Pharmacy{}, fmt.Errorf("%w: pharmacy id is required", ErrPharmacyInvalidInput)
	}
	pharmacy, err := s.pharmacies.FindByID(ctx, pharmacyID)
	if err != nil {
		return Pharmacy{}, s.mapRepositoryError(err)
	}
	return pharmacy, nil
}

func (s *pharmacyService) List(ctx context.Context, filter repositories.PharmacyListFilter) (domain.Page[Pharmacy], error) {
	page, err := s.pharmacies.List(ctx, filter)
	if err != nil {
		return domain.Page[Pharmacy]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// Nearby returns approved pharmacies within the radius, closest first.
// Distance is computed in-process over the approved set: the pharmacy
// population is small enough that a geo index is not worth carrying.
func (s *pharmacyService) Nearby(ctx context.Context, query NearbyPharmacyQuery) ([]NearbyPharmacy, error) {
	if query.Location.Latitude < -90 || query.Location.Latitude > 90 ||
		query.Location.Longitude < -180 || query.Location.Longitude > 180 {
		return nil, fmt.Errorf("%w: invalid coordinates", ErrPharmacyInvalidInput)
	}
	radius := query.RadiusKm
	if radius <= 0 {
		radius = defaultNearbyRadiusKm
	}
	if radius > maxNearbyRadiusKm {
		radius = maxNearbyRadiusKm
	}
	limit := query.Limit
	if limit <= 0 {
		limit = defaultNearbyLimit
	}

	page, err := s.pharmacies.List(ctx, repositories.PharmacyListFilter{
		Statuses: []domain.PharmacyStatus{domain.PharmacyStatusApproved},
		Page:     domain.ListParams{Limit: maxPharmacyScan},
	})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	var nearby []NearbyPharmacy
	for _, pharmacy := range page.Items {
		if pharmacy.Location == nil {
			continue
		}
		distance := query.Location.DistanceKm(*pharmacy.Location)
		if distance <= radius {
			nearby = append(nearby, NearbyPharmacy{Pharmacy: pharmacy, DistanceKm: distance})
		}
	}
	sort.Slice(nearby, func(i, j int) bool {
		return nearby[i].DistanceKm < nearby[j].DistanceKm
	})
	if len(nearby) > limit {
		nearby = nearby[:limit]
	}
	return nearby, nil
}

// maxPharmacyScan matches the repository's list cap.
const maxPharmacyScan = 100

func validPharmacyStatus(status domain.PharmacyStatus) bool {
	for _, known := range validPharmacyStatuses {
		if status == known {
			return true
		}
	}
	return false
}

func (s *pharmacyService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPharmacyNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("pharmacy: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *pharmacyService) publish(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, event)
}
