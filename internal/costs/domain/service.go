package domain

import (
	"context"
	"errors"
	"time"

	"github.com/farmerpower/platform/pkg/db/pagination"
)

type CreateCostEventRequest struct {
	RequestID   string         `json:"request_id"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Service     string         `json:"service"`
	CostType    string         `json:"cost_type"`
	Unit        string         `json:"unit"`
	Quantity    float64        `json:"quantity"`
	AmountUSD   *float64       `json:"amount_usd"`
	FarmerCode  *string        `json:"farmer_code"`
	FactoryCode *string        `json:"factory_code"`
	Metadata    map[string]any `json:"metadata"`
}

type ListCostEventsRequest struct {
	CostType     string     `json:"cost_type"`
	Service      string     `json:"service"`
	FarmerCode   string     `json:"farmer_code"`
	OccurredFrom *time.Time `json:"occurred_from"`
	OccurredTo   *time.Time `json:"occurred_to"`
	PageToken    string     `json:"page_token"`
	PageSize     int32      `json:"page_size"`
}

type ListCostEventsResponse struct {
	pagination.PageInfo
	CostEvents []CostEvent `json:"cost_events"`
}

// DailySpend is the aggregate shape consumed by the spend alert job.
type DailySpend struct {
	Day            time.Time `json:"day"`
	TotalAmountUSD float64   `json:"total_amount_usd"`
}

type Service interface {
	// Ingest records a cost event. Replays of the same request_id return
	// the stored event without error.
	Ingest(context.Context, CreateCostEventRequest) (*CostEvent, error)
	List(context.Context, ListCostEventsRequest) (ListCostEventsResponse, error)
	// RecomputeDay rebuilds the rollup rows for one UTC day. Safe to call
	// repeatedly; re-running converges on the same totals.
	RecomputeDay(ctx context.Context, day time.Time) (int, error)
	// DailySpendTotal sums loaded spend across cost types for one UTC day.
	DailySpendTotal(ctx context.Context, day time.Time) (DailySpend, error)
}

var (
	ErrInvalidRequestID  = errors.New("invalid_request_id")
	ErrInvalidOccurredAt = errors.New("invalid_occurred_at")
	ErrInvalidService    = errors.New("invalid_service")
	ErrInvalidCostType   = errors.New("invalid_cost_type")
	ErrInvalidUnit       = errors.New("invalid_unit")
	ErrUnitMismatch      = errors.New("unit_mismatch")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
	ErrInvalidAmount     = errors.New("invalid_amount")
)
