package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// TypeAggregate is one cost type's totals within a day bucket.
type TypeAggregate struct {
	CostType       string  `gorm:"column:cost_type"`
	EventCount     int64   `gorm:"column:event_count"`
	TotalQuantity  float64 `gorm:"column:total_quantity"`
	TotalAmountUSD float64 `gorm:"column:total_amount_usd"`
}

// RollupRepository aggregates cost events into daily rollup rows.
type RollupRepository interface {
	AggregateEventsForDay(ctx context.Context, db *gorm.DB, day time.Time) ([]TypeAggregate, error)
	UpsertRollup(ctx context.Context, db *gorm.DB, rollup *CostRollup) error
	SumRollupForDay(ctx context.Context, db *gorm.DB, day time.Time) (float64, error)
}
