package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/platform/cache"
	"github.com/pharmakart/api/internal/repositories"
)

type countingOrderRepo struct {
	stubOrderRepo
	countCalls int
	counts     map[domain.OrderStatus]int64
}

func (r *countingOrderRepo) CountByStatus(context.Context, repositories.OrderListFilter) (map[domain.OrderStatus]int64, error) {
	r.countCalls++
	return r.counts, nil
}

type countingProductRepo struct {
	stubProductRepo
	counts map[string]int64
}

func (r *countingProductRepo) CountByCategory(context.Context) (map[string]int64, error) {
	return r.counts, nil
}

type stubAuditRepo struct {
	entries []domain.AuditLogEntry
}

func (r *stubAuditRepo) Append(context.Context, domain.AuditLogEntry) error { return nil }

func (r *stubAuditRepo) List(_ context.Context, _ repositories.AuditLogFilter) (domain.Page[domain.AuditLogEntry], error) {
	return domain.Page[domain.AuditLogEntry]{
		Items: r.entries,
		Total: int64(len(r.entries)),
	}, nil
}

func newReportingFixture(t *testing.T, audit *stubAuditRepo) (ReportingService, *countingOrderRepo) {
	t.Helper()

	orders := &countingOrderRepo{counts: map[domain.OrderStatus]int64{
		domain.OrderStatusPending:   3,
		domain.OrderStatusDelivered: 9,
	}}
	if audit == nil {
		audit = &stubAuditRepo{}
	}

	service, err := NewReportingService(ReportingServiceDeps{
		Orders:     orders,
		Products:   &countingProductRepo{counts: map[string]int64{"vitamins": 2}},
		Audit:      audit,
		StatsCache: cache.New[MarketplaceStats](5*time.Minute, 16, nil),
		Clock:      func() time.Time { return time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewReportingService: %v", err)
	}
	return service, orders
}

func TestStatsServedFromCache(t *testing.T) {
	service, orders := newReportingFixture(t, nil)

	first, err := service.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if first.OrdersByStatus[domain.OrderStatusDelivered] != 9 {
		t.Fatalf("unexpected counts: %+v", first.OrdersByStatus)
	}
	if first.ProductsByCategory["vitamins"] != 2 {
		t.Fatalf("unexpected categories: %+v", first.ProductsByCategory)
	}

	second, err := service.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if orders.countCalls != 1 {
		t.Fatalf("expected 1 aggregation, repositories hit %d times", orders.countCalls)
	}
	if !second.GeneratedAt.Equal(first.GeneratedAt) {
		t.Fatalf("cached stats regenerated: %s vs %s", second.GeneratedAt, first.GeneratedAt)
	}
}

func TestExportAuditLogsJSON(t *testing.T) {
	audit := &stubAuditRepo{entries: []domain.AuditLogEntry{
		{ID: "aud_1", Action: domain.AuditActionOrderCreated, Actor: "usr_1", EntityType: "order", EntityID: "ord_1"},
	}}
	service, _ := newReportingFixture(t, audit)

	payload, contentType, err := service.ExportAuditLogs(context.Background(), repositories.AuditLogFilter{}, ExportFormatJSON)
	if err != nil {
		t.Fatalf("ExportAuditLogs: %v", err)
	}
	if contentType != "application/json" {
		t.Fatalf("unexpected content type: %s", contentType)
	}

	var envelope struct {
		Entries []map[string]any `json:"entries"`
		Total   int64            `json:"total"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if len(envelope.Entries) != 1 || envelope.Total != 1 {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
}

func TestExportAuditLogsCSVQuoting(t *testing.T) {
	audit := &stubAuditRepo{entries: []domain.AuditLogEntry{
		{
			ID:         "aud_1",
			Action:     domain.AuditActionOrderCancelled,
			Actor:      `pharmacy "Central", Lisbon`,
			EntityType: "order",
			EntityID:   "ord_1",
			Severity:   domain.EventSeverityWarning,
			CreatedAt:  time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
		},
	}}
	service, _ := newReportingFixture(t, audit)

	payload, contentType, err := service.ExportAuditLogs(context.Background(), repositories.AuditLogFilter{}, ExportFormatCSV)
	if err != nil {
		t.Fatalf("ExportAuditLogs: %v", err)
	}
	if contentType != "text/csv" {
		t.Fatalf("unexpected content type: %s", contentType)
	}

	out := string(payload)
	if !strings.Contains(out, `"pharmacy ""Central"", Lisbon"`) {
		t.Fatalf("expected quoted actor field, got:\n%s", out)
	}

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("re-read export: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header plus 1 row, got %d records", len(records))
	}
	if records[0][0] != "id" || records[1][2] != `pharmacy "Central", Lisbon` {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records[1][6] != "2026-01-15T10:30:00Z" {
		t.Fatalf("unexpected timestamp column: %s", records[1][6])
	}
}

func TestExportAuditLogsRejectsUnknownFormat(t *testing.T) {
	service, _ := newReportingFixture(t, nil)

	_, _, err := service.ExportAuditLogs(context.Background(), repositories.AuditLogFilter{}, ExportFormat("xml"))
	if !errors.Is(err, ErrExportFormat) {
		t.Fatalf("err = %v, want ErrExportFormat", err)
	}
}
