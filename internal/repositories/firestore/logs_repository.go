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
	eventLogsCollection = "eventLogs"
	auditLogsCollection = "auditLogs"

	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// EventLogRepository appends to the immutable event log.
type EventLogRepository struct {
	provider *pfirestore.Provider
}

func NewEventLogRepository(provider *pfirestore.Provider) (*EventLogRepository, error) {
	if provider == nil {
		return nil, errors.New("event log repository requires firestore provider")
	}
	return &EventLogRepository{provider: provider}, nil
}

var _ repositories.EventLogRepository = (*EventLogRepository)(nil)

func (r *EventLogRepository) Append(ctx context.Context, entry domain.EventLogEntry) error {
	if entry.ID == "" {
		return errors.New("event log append: id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("eventLogs.append", err)
	}
	doc := eventLogDocument{
		Type:       entry.Type,
		Severity:   string(entry.Severity),
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Message:    entry.Message,
		Metadata:   entry.Metadata,
		CreatedAt:  entry.CreatedAt.UTC(),
	}
	if _, err := client.Collection(eventLogsCollection).Doc(entry.ID).Create(ctx, doc); err != nil {
		return pfirestore.WrapError("eventLogs.append", err)
	}
	return nil
}

type eventLogDocument struct {
	Type       string         `firestore:"type"`
	Severity   string         `firestore:"severity"`
	EntityType string         `firestore:"entityType,omitempty"`
	EntityID   string         `firestore:"entityId,omitempty"`
	Message    string         `firestore:"message"`
	Metadata   map[string]any `firestore:"metadata,omitempty"`
	CreatedAt  time.Time      `firestore:"createdAt"`
}

// AuditLogRepository appends to and queries the immutable audit trail.
type AuditLogRepository struct {
	provider *pfirestore.Provider
}

func NewAuditLogRepository(provider *pfirestore.Provider) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit log repository requires firestore provider")
	}
	return &AuditLogRepository{provider: provider}, nil
}

var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)

func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	if entry.ID == "" {
		return errors.New("audit log append: id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("auditLogs.append", err)
	}
	doc := auditLogDocument{
		Action:     string(entry.Action),
		Actor:      entry.Actor,
		ActorType:  entry.ActorType,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Severity:   string(entry.Severity),
		Details:    entry.Details,
		CreatedAt:  entry.CreatedAt.UTC(),
	}
	if _, err := client.Collection(auditLogsCollection).Doc(entry.ID).Create(ctx, doc); err != nil {
		return pfirestore.WrapError("auditLogs.append", err)
	}
	return nil
}

func (r *AuditLogRepository) List(ctx context.Context, filter repositories.AuditLogFilter) (domain.Page[domain.AuditLogEntry], error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Page[domain.AuditLogEntry]{}, pfirestore.WrapError("auditLogs.list", err)
	}

	query := client.Collection(auditLogsCollection).Query
	if actor := strings.TrimSpace(filter.Actor); actor != "" {
		query = query.Where("actor", "==", actor)
	}
	if filter.Action != "" {
		query = query.Where("action", "==", string(filter.Action))
	}
	if entityType := strings.TrimSpace(filter.EntityType); entityType != "" {
		query = query.Where("entityType", "==", entityType)
	}
	if entityID := strings.TrimSpace(filter.EntityID); entityID != "" {
		query = query.Where("entityId", "==", entityID)
	}
	query = applyTimeRange(query, "createdAt", filter.CreatedAt)

	total, err := countDocuments(ctx, query)
	if err != nil {
		return domain.Page[domain.AuditLogEntry]{}, pfirestore.WrapError("auditLogs.list", err)
	}

	page := filter.Page.Normalize(defaultAuditLimit, maxAuditLimit)
	query = query.OrderBy("createdAt", firestore.Desc).
		Offset(page.Offset).
		Limit(page.Limit)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var entries []domain.AuditLogEntry
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.Page[domain.AuditLogEntry]{}, pfirestore.WrapError("auditLogs.list", err)
		}
		var doc auditLogDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Page[domain.AuditLogEntry]{}, fmt.Errorf("decode audit log %s: %w", snap.Ref.ID, err)
		}
		entries = append(entries, doc.toDomain(snap.Ref.ID))
	}

	return domain.Page[domain.AuditLogEntry]{Items: entries, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

type auditLogDocument struct {
	Action     string         `firestore:"action"`
	Actor      string         `firestore:"actor"`
	ActorType  string         `firestore:"actorType,omitempty"`
	EntityType string         `firestore:"entityType"`
	EntityID   string         `firestore:"entityId"`
	Severity   string         `firestore:"severity,omitempty"`
	Details    map[string]any `firestore:"details,omitempty"`
	CreatedAt  time.Time      `firestore:"createdAt"`
}

func (d auditLogDocument) toDomain(id string) domain.AuditLogEntry {
	return domain.AuditLogEntry{
		ID:         id,
		Action:     domain.AuditAction(d.Action),
		Actor:      d.Actor,
		ActorType:  d.ActorType,
		EntityType: d.EntityType,
		EntityID:   d.EntityID,
		Severity:   domain.EventSeverity(d.Severity),
		Details:    d.Details,
		CreatedAt:  d.CreatedAt,
	}
}
