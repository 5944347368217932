// Package domain contains persistence models for agronomic facts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// FarmerPerformance is an append-only monthly aggregate per farmer.
type FarmerPerformance struct {
	ID              snowflake.ID `json:"-" gorm:"primaryKey"`
	FarmerCode      string       `json:"farmer_code" gorm:"type:text;not null;uniqueIndex:idx_farmer_performance_natural"`
	PeriodMonth     string       `json:"period_month" gorm:"type:char(7);not null;uniqueIndex:idx_farmer_performance_natural"` // YYYY-MM
	DeliveriesCount int          `json:"deliveries_count" gorm:"not null"`
	TotalWeightKg   float64      `json:"total_weight_kg" gorm:"not null"`
	AvgQualityScore float64      `json:"avg_quality_score" gorm:"not null"`
	RejectRatePct   float64      `json:"reject_rate_pct" gorm:"not null"`
	EarningsUSD     float64      `json:"earnings_usd" gorm:"not null"`
	CreatedAt       time.Time    `json:"-" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time    `json:"-" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (FarmerPerformance) TableName() string { return "farmer_performance" }

// WeatherObservation is an append-only daily record per region.
type WeatherObservation struct {
	ID          snowflake.ID `json:"-" gorm:"primaryKey"`
	RegionCode  string       `json:"region_code" gorm:"type:text;not null;uniqueIndex:idx_weather_observations_natural"`
	ObservedOn  time.Time    `json:"observed_on" gorm:"type:date;not null;uniqueIndex:idx_weather_observations_natural"`
	TempMinC    float64      `json:"temp_min_c" gorm:"not null"`
	TempMaxC    float64      `json:"temp_max_c" gorm:"not null"`
	RainfallMM  float64      `json:"rainfall_mm" gorm:"not null"`
	HumidityPct float64      `json:"humidity_pct" gorm:"not null"`
	CreatedAt   time.Time    `json:"-" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `json:"-" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (WeatherObservation) TableName() string { return "weather_observations" }
