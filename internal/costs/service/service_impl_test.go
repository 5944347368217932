package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/farmerpower/platform/internal/config"
	costsdomain "github.com/farmerpower/platform/internal/costs/domain"
	costsrepo "github.com/farmerpower/platform/internal/costs/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, name string) (costsdomain.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&costsdomain.CostEvent{}, &costsdomain.CostRollup{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	rates, err := config.NewRateCardHolder()
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Rates:      rates,
		RollupRepo: costsrepo.ProvideRollup(),
	})
	return svc, db
}

func validIngestRequest() costsdomain.CreateCostEventRequest {
	amount := 0.25
	return costsdomain.CreateCostEventRequest{
		RequestID:  "req-0001",
		OccurredAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Service:    "advisory-chat",
		CostType:   costsdomain.CostTypeLLM,
		Unit:       costsdomain.UnitTokens,
		Quantity:   1200,
		AmountUSD:  &amount,
	}
}

func TestIngestValidation(t *testing.T) {
	svc, _ := newTestService(t, "costs_validation")
	ctx := context.Background()

	negative := -1.0

	tests := []struct {
		name    string
		mutate  func(*costsdomain.CreateCostEventRequest)
		wantErr error
	}{
		{
			name:    "missing request id",
			mutate:  func(r *costsdomain.CreateCostEventRequest) { r.RequestID = "  " },
			wantErr: costsdomain.ErrInvalidRequestID,
		},
		{
			name:    "zero occurred_at",
			mutate:  func(r *costsdomain.CreateCostEventRequest) { r.OccurredAt = time.Time{} },
			wantErr: costsdomain.ErrInvalidOccurredAt,
		},
		{
			name:    "missing service",
			mutate:  func(r *costsdomain.CreateCostEventRequest) { r.Service = "" },
			wantErr: costsdomain.ErrInvalidService,
		},
		{
			name:    "unknown cost type",
			mutate:  func(r *costsdomain.CreateCostEventRequest) { r.CostType = "gpu" },
			wantErr: costsdomain.ErrInvalidCostType,
		},
		{
			name: "unit mismatch",
			mutate: func(r *costsdomain.CreateCostEventRequest) {
				r.CostType = costsdomain.CostTypeSMS
				r.Unit = costsdomain.UnitTokens
			},
			wantErr: costsdomain.ErrUnitMismatch,
		},
		{
			name:    "zero quantity",
			mutate:  func(r *costsdomain.CreateCostEventRequest) { r.Quantity = 0 },
			wantErr: costsdomain.ErrInvalidQuantity,
		},
		{
			name:    "negative amount",
			mutate:  func(r *costsdomain.CreateCostEventRequest) { r.AmountUSD = &negative },
			wantErr: costsdomain.ErrInvalidAmount,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validIngestRequest()
			tc.mutate(&req)

			_, err := svc.Ingest(ctx, req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestIngestDuplicateRequestIDReturnsExisting(t *testing.T) {
	svc, db := newTestService(t, "costs_duplicate")
	ctx := context.Background()

	first, err := svc.Ingest(ctx, validIngestRequest())
	require.NoError(t, err)
	require.NotNil(t, first)

	// Replay with a different payload must return the stored event untouched.
	replay := validIngestRequest()
	replay.Quantity = 999999
	second, err := svc.Ingest(ctx, replay)
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, first.ID, second.ID)
	assert.InDelta(t, first.Quantity, second.Quantity, 1e-9)
	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)

	var count int64
	require.NoError(t, db.Model(&costsdomain.CostEvent{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestIngestDerivesUnitAndAmountFromRateCard(t *testing.T) {
	svc, _ := newTestService(t, "costs_ratecard")
	ctx := context.Background()

	req := validIngestRequest()
	req.RequestID = "req-derived"
	req.Unit = ""
	req.AmountUSD = nil
	req.Quantity = 1000

	record, err := svc.Ingest(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, costsdomain.UnitTokens, record.Unit)
	// default rate card prices llm at 0.000002 USD per token
	assert.InDelta(t, 0.002, record.AmountUSD, 1e-9)
}

func TestListFiltersByCostType(t *testing.T) {
	svc, _ := newTestService(t, "costs_list")
	ctx := context.Background()
	base := time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC)

	seed := []costsdomain.CreateCostEventRequest{
		{RequestID: "l-1", OccurredAt: base, Service: "advisory-chat", CostType: costsdomain.CostTypeLLM, Quantity: 100},
		{RequestID: "l-2", OccurredAt: base.Add(time.Minute), Service: "advisory-chat", CostType: costsdomain.CostTypeLLM, Quantity: 200},
		{RequestID: "l-3", OccurredAt: base.Add(2 * time.Minute), Service: "advisory-chat", CostType: costsdomain.CostTypeLLM, Quantity: 300},
		{RequestID: "l-4", OccurredAt: base.Add(3 * time.Minute), Service: "alerts", CostType: costsdomain.CostTypeSMS, Quantity: 5},
	}
	for _, req := range seed {
		_, err := svc.Ingest(ctx, req)
		require.NoError(t, err)
	}

	resp, err := svc.List(ctx, costsdomain.ListCostEventsRequest{
		CostType: costsdomain.CostTypeLLM,
		PageSize: 2,
	})
	require.NoError(t, err)
	assert.Len(t, resp.CostEvents, 2)
	assert.True(t, resp.HasMore)
	assert.NotEmpty(t, resp.NextPageToken)
	for _, ev := range resp.CostEvents {
		assert.Equal(t, costsdomain.CostTypeLLM, ev.CostType)
	}

	resp, err = svc.List(ctx, costsdomain.ListCostEventsRequest{
		CostType: costsdomain.CostTypeSMS,
		PageSize: 10,
	})
	require.NoError(t, err)
	assert.Len(t, resp.CostEvents, 1)
	assert.False(t, resp.HasMore)
}

func TestRecomputeDayIsIdempotent(t *testing.T) {
	svc, db := newTestService(t, "costs_rollup")
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	seed := []costsdomain.CreateCostEventRequest{
		{RequestID: "r-1", OccurredAt: day.Add(2 * time.Hour), Service: "advisory-chat", CostType: costsdomain.CostTypeLLM, Quantity: 500},
		{RequestID: "r-2", OccurredAt: day.Add(4 * time.Hour), Service: "advisory-chat", CostType: costsdomain.CostTypeLLM, Quantity: 1500},
		{RequestID: "r-3", OccurredAt: day.Add(6 * time.Hour), Service: "doc-intake", CostType: costsdomain.CostTypeDocument, Quantity: 3},
		// next day, must not count toward this bucket
		{RequestID: "r-4", OccurredAt: day.Add(25 * time.Hour), Service: "doc-intake", CostType: costsdomain.CostTypeDocument, Quantity: 7},
	}
	for _, req := range seed {
		_, err := svc.Ingest(ctx, req)
		require.NoError(t, err)
	}

	types, err := svc.RecomputeDay(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 2, types)

	// re-running converges on the same totals instead of doubling
	types, err = svc.RecomputeDay(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 2, types)

	var rollups []costsdomain.CostRollup
	require.NoError(t, db.Order("cost_type asc").Find(&rollups).Error)
	require.Len(t, rollups, 2)

	assert.Equal(t, costsdomain.CostTypeDocument, rollups[0].CostType)
	assert.EqualValues(t, 1, rollups[0].EventCount)
	assert.InDelta(t, 3, rollups[0].TotalQuantity, 1e-9)

	assert.Equal(t, costsdomain.CostTypeLLM, rollups[1].CostType)
	assert.EqualValues(t, 2, rollups[1].EventCount)
	assert.InDelta(t, 2000, rollups[1].TotalQuantity, 1e-9)
}

func TestDailySpendTotal(t *testing.T) {
	svc, _ := newTestService(t, "costs_spend")
	ctx := context.Background()
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	amountA := 1.50
	amountB := 2.25
	seed := []costsdomain.CreateCostEventRequest{
		{RequestID: "s-1", OccurredAt: day.Add(time.Hour), Service: "advisory-chat", CostType: costsdomain.CostTypeLLM, Quantity: 100, AmountUSD: &amountA},
		{RequestID: "s-2", OccurredAt: day.Add(2 * time.Hour), Service: "alerts", CostType: costsdomain.CostTypeSMS, Quantity: 10, AmountUSD: &amountB},
	}
	for _, req := range seed {
		_, err := svc.Ingest(ctx, req)
		require.NoError(t, err)
	}

	_, err := svc.RecomputeDay(ctx, day)
	require.NoError(t, err)

	spend, err := svc.DailySpendTotal(ctx, day)
	require.NoError(t, err)
	assert.InDelta(t, 3.75, spend.TotalAmountUSD, 1e-9)
}
