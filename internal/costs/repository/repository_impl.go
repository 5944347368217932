package repository

import (
	"context"
	"time"

	costsdomain "github.com/farmerpower/platform/internal/costs/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type rollupRepo struct{}

func ProvideRollup() costsdomain.RollupRepository {
	return &rollupRepo{}
}

func (r *rollupRepo) AggregateEventsForDay(ctx context.Context, db *gorm.DB, day time.Time) ([]costsdomain.TypeAggregate, error) {
	from := day.UTC().Truncate(24 * time.Hour)
	to := from.Add(24 * time.Hour)

	var rows []costsdomain.TypeAggregate
	err := db.WithContext(ctx).Raw(
		`SELECT cost_type,
		        COUNT(*) AS event_count,
		        SUM(quantity) AS total_quantity,
		        SUM(amount_usd) AS total_amount_usd
		 FROM cost_events
		 WHERE occurred_at >= ? AND occurred_at < ?
		 GROUP BY cost_type
		 ORDER BY cost_type ASC`,
		from,
		to,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *rollupRepo) UpsertRollup(ctx context.Context, db *gorm.DB, rollup *costsdomain.CostRollup) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "day"}, {Name: "cost_type"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"event_count",
			"total_quantity",
			"total_amount_usd",
			"computed_at",
			"updated_at",
		}),
	}).Create(rollup).Error
}

func (r *rollupRepo) SumRollupForDay(ctx context.Context, db *gorm.DB, day time.Time) (float64, error) {
	bucket := day.UTC().Truncate(24 * time.Hour)

	var total float64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(total_amount_usd), 0) FROM cost_rollups WHERE day = ?`,
		bucket,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
