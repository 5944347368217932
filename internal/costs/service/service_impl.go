package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/farmerpower/platform/internal/cloudmetrics"
	"github.com/farmerpower/platform/internal/config"
	costsdomain "github.com/farmerpower/platform/internal/costs/domain"
	obsmetrics "github.com/farmerpower/platform/internal/observability/metrics"
	"github.com/farmerpower/platform/pkg/db"
	"github.com/farmerpower/platform/pkg/db/option"
	"github.com/farmerpower/platform/pkg/db/pagination"
	"github.com/farmerpower/platform/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Rates      *config.RateCardHolder
	RollupRepo costsdomain.RollupRepository
	Cloud      *cloudmetrics.CloudMetrics `optional:"true"`
	ObsMetrics *obsmetrics.Metrics        `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	rates      *config.RateCardHolder
	eventrepo  repository.Store[costsdomain.CostEvent]
	rolluprepo costsdomain.RollupRepository
	cloud      *cloudmetrics.CloudMetrics
	obsMetrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) costsdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("costs.service"),

		genID:      p.GenID,
		rates:      p.Rates,
		eventrepo:  repository.ProvideStore[costsdomain.CostEvent](p.DB),
		rolluprepo: p.RollupRepo,
		cloud:      p.Cloud,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Ingest(
	ctx context.Context,
	req costsdomain.CreateCostEventRequest,
) (*costsdomain.CostEvent, error) {

	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		return nil, costsdomain.ErrInvalidRequestID
	}

	if err := validateCostEvent(req); err != nil {
		return nil, err
	}

	costType := strings.TrimSpace(req.CostType)
	unit, err := resolveUnit(costType, req.Unit)
	if err != nil {
		return nil, err
	}

	// Replays return the stored event strictly as-is, before any pricing
	// runs, so a rate card change between attempt and retry cannot drift
	// the amount.
	existing, err := s.findCostEventByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		existing.Duplicate = true
		return existing, nil
	}

	amount, err := s.resolveAmount(costType, req.Quantity, req.AmountUSD)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := &costsdomain.CostEvent{
		ID:          s.genID.Generate(),
		RequestID:   requestID,
		OccurredAt:  req.OccurredAt.UTC(),
		Service:     strings.TrimSpace(req.Service),
		CostType:    costType,
		Unit:        unit,
		Quantity:    req.Quantity,
		AmountUSD:   amount,
		FarmerCode:  normalizeCode(req.FarmerCode),
		FactoryCode: normalizeCode(req.FactoryCode),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Metadata != nil {
		record.Metadata = datatypes.JSONMap(req.Metadata)
	}

	inserted, err := s.insertCostEvent(ctx, record)
	if err != nil {
		return nil, err
	}

	// request_id collision with a concurrent writer, fetch theirs
	if !inserted {
		existing, err := s.findCostEventByRequestID(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			existing.Duplicate = true
			return existing, nil
		}
	}

	if s.cloud != nil {
		go s.cloud.IncCostEvent(costType)
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordCostIngest(ctx, costType)
	}

	return record, nil
}

func (s *Service) List(ctx context.Context, req costsdomain.ListCostEventsRequest) (costsdomain.ListCostEventsResponse, error) {
	filter, pageSize := buildCostEventFilter(req)

	opts := []option.QueryOption{
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(pageSize),
		}),
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true, "occurred_at": true}}),
	}
	if req.OccurredFrom != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "occurred_at",
			Operator: option.GTE,
			Value:    *req.OccurredFrom,
		}))
	}
	if req.OccurredTo != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "occurred_at",
			Operator: option.LTE,
			Value:    *req.OccurredTo,
		}))
	}

	items, err := s.eventrepo.Find(ctx, filter, opts...)
	if err != nil {
		return costsdomain.ListCostEventsResponse{}, err
	}
	return buildCostListResponse(items, pageSize), nil
}

// RecomputeDay rebuilds rollup rows for a UTC day from the raw events.
func (s *Service) RecomputeDay(ctx context.Context, day time.Time) (int, error) {
	bucket := day.UTC().Truncate(24 * time.Hour)

	aggregates, err := s.rolluprepo.AggregateEventsForDay(ctx, s.db, bucket)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	for _, agg := range aggregates {
		rollup := &costsdomain.CostRollup{
			ID:             s.genID.Generate(),
			Day:            bucket,
			CostType:       agg.CostType,
			EventCount:     agg.EventCount,
			TotalQuantity:  agg.TotalQuantity,
			TotalAmountUSD: agg.TotalAmountUSD,
			ComputedAt:     now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.rolluprepo.UpsertRollup(ctx, s.db, rollup); err != nil {
			return 0, err
		}
	}

	s.log.Debug("rollup recomputed",
		zap.Time("day", bucket),
		zap.Int("cost_types", len(aggregates)),
	)

	return len(aggregates), nil
}

func (s *Service) DailySpendTotal(ctx context.Context, day time.Time) (costsdomain.DailySpend, error) {
	bucket := day.UTC().Truncate(24 * time.Hour)

	total, err := s.rolluprepo.SumRollupForDay(ctx, s.db, bucket)
	if err != nil {
		return costsdomain.DailySpend{}, err
	}
	return costsdomain.DailySpend{Day: bucket, TotalAmountUSD: total}, nil
}

func (s *Service) insertCostEvent(ctx context.Context, record *costsdomain.CostEvent) (bool, error) {
	if record == nil {
		return false, errors.New("missing_cost_event")
	}
	if s.db == nil {
		return false, errors.New("missing_db")
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "request_id"}},
		DoNothing: true,
	}).Create(record)
	if result.Error != nil {
		// Dialects that surface the conflict as an error instead of
		// RowsAffected=0 still mean replay, not failure.
		if db.IsDuplicateKeyErr(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Service) findCostEventByRequestID(ctx context.Context, requestID string) (*costsdomain.CostEvent, error) {
	if s.db == nil {
		return nil, errors.New("missing_db")
	}
	var record costsdomain.CostEvent
	err := s.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (s *Service) resolveAmount(costType string, quantity float64, amount *float64) (float64, error) {
	if amount != nil {
		if math.IsNaN(*amount) || math.IsInf(*amount, 0) || *amount < 0 {
			return 0, costsdomain.ErrInvalidAmount
		}
		return *amount, nil
	}
	if s.rates == nil {
		return 0, costsdomain.ErrInvalidAmount
	}
	rate, ok := s.rates.Get().Rate(costType)
	if !ok {
		return 0, costsdomain.ErrInvalidCostType
	}
	return quantity * rate, nil
}

func validateCostEvent(req costsdomain.CreateCostEventRequest) error {
	if req.OccurredAt.IsZero() {
		return costsdomain.ErrInvalidOccurredAt
	}
	if strings.TrimSpace(req.Service) == "" {
		return costsdomain.ErrInvalidService
	}
	if math.IsNaN(req.Quantity) || math.IsInf(req.Quantity, 0) || req.Quantity <= 0 {
		return costsdomain.ErrInvalidQuantity
	}
	return nil
}

func resolveUnit(costType, unit string) (string, error) {
	expected, ok := costsdomain.UnitForCostType(costType)
	if !ok {
		return "", costsdomain.ErrInvalidCostType
	}
	unit = strings.TrimSpace(unit)
	if unit == "" {
		return expected, nil
	}
	if unit != expected {
		return "", costsdomain.ErrUnitMismatch
	}
	return unit, nil
}

func normalizeCode(code *string) *string {
	if code == nil {
		return nil
	}
	value := strings.TrimSpace(*code)
	if value == "" {
		return nil
	}
	return &value
}

func buildCostEventFilter(req costsdomain.ListCostEventsRequest) (*costsdomain.CostEvent, int32) {
	filter := &costsdomain.CostEvent{}

	if costType := strings.TrimSpace(req.CostType); costType != "" {
		filter.CostType = costType
	}
	if service := strings.TrimSpace(req.Service); service != "" {
		filter.Service = service
	}
	if farmerCode := strings.TrimSpace(req.FarmerCode); farmerCode != "" {
		filter.FarmerCode = &farmerCode
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	return filter, pageSize
}

func buildCostListResponse(items []*costsdomain.CostEvent, pageSize int32) costsdomain.ListCostEventsResponse {
	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(record *costsdomain.CostEvent) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        record.ID.String(),
			CreatedAt: record.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	records := make([]costsdomain.CostEvent, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		records = append(records, *item)
	}

	resp := costsdomain.ListCostEventsResponse{
		CostEvents: records,
	}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp
}
