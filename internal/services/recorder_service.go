package services

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pharmakart/api/internal/repositories"
)

const (
	eventLogIDPrefix = "evt_"
	auditLogIDPrefix = "aud_"
)

// RecorderDeps bundles collaborators required to construct the recorder.
type RecorderDeps struct {
	EventLogs   repositories.EventLogRepository
	AuditLogs   repositories.AuditLogRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type recorder struct {
	eventLogs repositories.EventLogRepository
	auditLogs repositories.AuditLogRepository
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewRecorder wires dependencies into a concrete Recorder implementation.
func NewRecorder(deps RecorderDeps) (Recorder, error) {
	if deps.EventLogs == nil {
		return nil, errors.New("recorder: event log repository is required")
	}
	if deps.AuditLogs == nil {
		return nil, errors.New("recorder: audit log repository is required")
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
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &recorder{
		eventLogs: deps.EventLogs,
		auditLogs: deps.AuditLogs,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (r *recorder) RecordEvent(ctx context.Context, entry EventLogEntry) {
	if entry.ID == "" {
		entry.ID = eventLogIDPrefix + r.newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.clock()
	}
	if err := r.eventLogs.Append(ctx, entry); err != nil {
		r.logger(ctx, "eventlog.append.failed", map[string]any{
			"type":   entry.Type,
			"entity": entry.EntityID,
			"error":  err.Error(),
		})
	}
}

func (r *recorder) RecordAudit(ctx context.Context, entry AuditLogEntry) {
	if entry.ID == "" {
		entry.ID = auditLogIDPrefix + r.newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.clock()
	}
	if err := r.auditLogs.Append(ctx, entry); err != nil {
		r.logger(ctx, "auditlog.append.failed", map[string]any{
			"action": string(entry.Action),
			"entity": entry.EntityID,
			"error":  err.Error(),
		})
	}
}
