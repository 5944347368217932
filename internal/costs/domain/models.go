// Package domain contains persistence models for AI/ML cost accounting.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	CostTypeLLM       = "llm"
	CostTypeDocument  = "document"
	CostTypeEmbedding = "embedding"
	CostTypeSMS       = "sms"
)

const (
	UnitTokens   = "tokens"
	UnitPages    = "pages"
	UnitQueries  = "queries"
	UnitMessages = "messages"
)

// unitByCostType is the enforced cost_type to unit pairing.
var unitByCostType = map[string]string{
	CostTypeLLM:       UnitTokens,
	CostTypeDocument:  UnitPages,
	CostTypeEmbedding: UnitQueries,
	CostTypeSMS:       UnitMessages,
}

// UnitForCostType returns the unit a cost type must carry.
func UnitForCostType(costType string) (string, bool) {
	unit, ok := unitByCostType[costType]
	return unit, ok
}

// CostTypes lists the known cost types in a stable order.
func CostTypes() []string {
	return []string{CostTypeLLM, CostTypeDocument, CostTypeEmbedding, CostTypeSMS}
}

// CostEvent stores a single unit of AI/ML spend attributed to a platform
// service and optionally to a farmer or factory.
type CostEvent struct {
	ID          snowflake.ID      `json:"-" gorm:"primaryKey"`
	RequestID   string            `json:"request_id" gorm:"type:text;not null;uniqueIndex"`
	OccurredAt  time.Time         `json:"occurred_at" gorm:"not null;index"`
	Service     string            `json:"service" gorm:"type:text;not null"`
	CostType    string            `json:"cost_type" gorm:"type:text;not null;index"`
	Unit        string            `json:"unit" gorm:"type:text;not null"`
	Quantity    float64           `json:"quantity" gorm:"not null"`
	AmountUSD   float64           `json:"amount_usd" gorm:"not null"`
	FarmerCode  *string           `json:"farmer_code,omitempty" gorm:"type:text"`
	FactoryCode *string           `json:"factory_code,omitempty" gorm:"type:text"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt   time.Time         `json:"-" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time         `json:"-" gorm:"not null;default:CURRENT_TIMESTAMP"`

	// Duplicate marks an ingest replay. Never persisted.
	Duplicate bool `json:"-" gorm:"-"`
}

// TableName sets the database table name.
func (CostEvent) TableName() string { return "cost_events" }

// CostRollup is the derived daily aggregate per cost type. Rows are
// recomputed idempotently by the costwatch worker and never hand-edited.
type CostRollup struct {
	ID             snowflake.ID `json:"-" gorm:"primaryKey"`
	Day            time.Time    `json:"day" gorm:"type:date;not null;uniqueIndex:idx_cost_rollups_natural"`
	CostType       string       `json:"cost_type" gorm:"type:text;not null;uniqueIndex:idx_cost_rollups_natural"`
	EventCount     int64        `json:"event_count" gorm:"not null"`
	TotalQuantity  float64      `json:"total_quantity" gorm:"not null"`
	TotalAmountUSD float64      `json:"total_amount_usd" gorm:"not null"`
	ComputedAt     time.Time    `json:"computed_at" gorm:"not null"`
	CreatedAt      time.Time    `json:"-" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `json:"-" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CostRollup) TableName() string { return "cost_rollups" }
