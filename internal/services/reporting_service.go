package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/platform/cache"
	"github.com/pharmakart/api/internal/repositories"
)

const statsCacheKey = "marketplace_stats"

// ErrExportFormat indicates an unsupported audit export encoding.
var ErrExportFormat = errors.New("reporting: unsupported export format")

var auditExportHeader = []string{"id", "action", "actor", "entity_type", "entity_id", "severity", "created_at"}

// ReportingServiceDeps bundles collaborators required to construct the reporting service.
type ReportingServiceDeps struct {
	Orders   repositories.OrderRepository
	Products repositories.ProductRepository
	Audit    repositories.AuditLogRepository
	// StatsCache holds the aggregated stats between requests. Required: the
	// aggregation walks every order and product document.
	StatsCache *cache.Cache[MarketplaceStats]
	Clock      func() time.Time
}

type reportingService struct {
	orders   repositories.OrderRepository
	products repositories.ProductRepository
	audit    repositories.AuditLogRepository
	cache    *cache.Cache[MarketplaceStats]
	clock    func() time.Time
}

// NewReportingService wires dependencies into a concrete ReportingService implementation.
func NewReportingService(deps ReportingServiceDeps) (ReportingService, error) {
	if deps.Orders == nil {
		return nil, errors.New("reporting service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("reporting service: product repository is required")
	}
	if deps.Audit == nil {
		return nil, errors.New("reporting service: audit log repository is required")
	}
	if deps.StatsCache == nil {
		return nil, errors.New("reporting service: stats cache is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &reportingService{
		orders:   deps.Orders,
		products: deps.Products,
		audit:    deps.Audit,
		cache:    deps.StatsCache,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *reportingService) Stats(ctx context.Context) (MarketplaceStats, error) {
	if stats, ok := s.cache.Get(statsCacheKey); ok {
		return stats, nil
	}

	ordersByStatus, err := s.orders.CountByStatus(ctx, repositories.OrderListFilter{})
	if err != nil {
		return MarketplaceStats{}, err
	}
	productsByCategory, err := s.products.CountByCategory(ctx)
	if err != nil {
		return MarketplaceStats{}, err
	}

	stats := MarketplaceStats{
		OrdersByStatus:     ordersByStatus,
		ProductsByCategory: productsByCategory,
		GeneratedAt:        s.clock(),
	}
	s.cache.Put(statsCacheKey, stats)
	return stats, nil
}

func (s *reportingService) ListAuditLogs(ctx context.Context, filter repositories.AuditLogFilter) (domain.Page[AuditLogEntry], error) {
	return s.audit.List(ctx, filter)
}

// ExportAuditLogs renders matching audit entries as JSON or CSV and returns
// the payload with its content type. CSV fields containing a comma or quote
// are quoted with internal quotes doubled.
func (s *reportingService) ExportAuditLogs(ctx context.Context, filter repositories.AuditLogFilter, format ExportFormat) ([]byte, string, error) {
	if format != ExportFormatJSON && format != ExportFormatCSV {
		return nil, "", fmt.Errorf("%w: %q", ErrExportFormat, format)
	}

	page, err := s.audit.List(ctx, filter)
	if err != nil {
		return nil, "", err
	}

	if format == ExportFormatJSON {
		payload, err := json.Marshal(exportEnvelope{
			Entries:     page.Items,
			Total:       page.Total,
			GeneratedAt: s.clock(),
		})
		if err != nil {
			return nil, "", fmt.Errorf("encode audit export: %w", err)
		}
		return payload, "application/json", nil
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(auditExportHeader); err != nil {
		return nil, "", fmt.Errorf("write audit export: %w", err)
	}
	for _, entry := range page.Items {
		record := []string{
			entry.ID,
			string(entry.Action),
			entry.Actor,
			entry.EntityType,
			entry.EntityID,
			string(entry.Severity),
			entry.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, "", fmt.Errorf("write audit export: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", fmt.Errorf("write audit export: %w", err)
	}
	return buf.Bytes(), "text/csv", nil
}

type exportEnvelope struct {
	Entries     []AuditLogEntry `json:"entries"`
	Total       int64           `json:"total"`
	GeneratedAt time.Time       `json:"generatedAt"`
}
