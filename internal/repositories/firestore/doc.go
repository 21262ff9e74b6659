// Package firestore implements the repository interfaces on Cloud Firestore.
//
// Monetary amounts are stored as decimal strings, never floats; counters that
// multiple writers touch concurrently are updated inside transactions or with
// atomic field transforms.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/shopspring/decimal"

	domain "github.com/pharmakart/api/internal/domain"
)

const countAlias = "total"

// moneyString serialises an amount for storage.
func moneyString(amount decimal.Decimal) string {
	return amount.String()
}

// moneyValue parses a stored amount, treating missing or malformed values as
// zero rather than failing the whole read.
func moneyValue(raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return amount
}

// countDocuments runs a server-side count aggregation over the query.
func countDocuments(ctx context.Context, query firestore.Query) (int64, error) {
	results, err := query.NewAggregationQuery().WithCount(countAlias).Get(ctx)
	if err != nil {
		return 0, err
	}
	raw, ok := results[countAlias]
	if !ok {
		return 0, fmt.Errorf("count aggregation missing %q alias", countAlias)
	}
	value, ok := raw.(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("count aggregation returned %T", raw)
	}
	return value.GetIntegerValue(), nil
}

// sortDirection maps a domain sort order onto the firestore constant.
func sortDirection(order domain.SortOrder) firestore.Direction {
	if order == domain.SortAsc {
		return firestore.Asc
	}
	return firestore.Desc
}

// applyTimeRange appends inclusive range clauses for a timestamp field.
func applyTimeRange(query firestore.Query, field string, r domain.RangeQuery[time.Time]) firestore.Query {
	if r.From != nil {
		query = query.Where(field, ">=", r.From.UTC())
	}
	if r.To != nil {
		query = query.Where(field, "<=", r.To.UTC())
	}
	return query
}
