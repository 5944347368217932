// Package domain contains persistence models for the plantation hierarchy.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	AltitudeBandLowland  = "lowland"
	AltitudeBandMidland  = "midland"
	AltitudeBandHighland = "highland"
)

const (
	SoilTypeVolcanicLoam = "volcanic-loam"
	SoilTypeClay         = "clay"
	SoilTypeSandyLoam    = "sandy-loam"
	SoilTypeLaterite     = "laterite"
)

const (
	FactoryStatusActive  = "active"
	FactoryStatusDormant = "dormant"
)

const (
	TeaVarietySeedling = "seedling"
	TeaVarietyClonal   = "clonal"
	TeaVarietyPurple   = "purple"
)

// Region is a growing region. Factories, farmers and weather observations
// hang off its code.
type Region struct {
	ID                  snowflake.ID      `json:"-" gorm:"primaryKey"`
	Code                string            `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name                string            `json:"name" gorm:"type:text;not null"`
	CountryCode         string            `json:"country_code" gorm:"type:char(2);not null"`
	CentroidLat         float64           `json:"centroid_lat" gorm:"not null"`
	CentroidLng         float64           `json:"centroid_lng" gorm:"not null"`
	AltitudeBand        string            `json:"altitude_band" gorm:"type:text;not null"`
	SoilType            string            `json:"soil_type" gorm:"type:text;not null"`
	AvgAnnualRainfallMM float64           `json:"avg_annual_rainfall_mm" gorm:"not null"`
	Metadata            datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt           time.Time         `json:"-" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time         `json:"-" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Region) TableName() string { return "regions" }

// Factory is a tea processing factory inside a region.
type Factory struct {
	ID               snowflake.ID `json:"-" gorm:"primaryKey"`
	Code             string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	RegionCode       string       `json:"region_code" gorm:"type:text;not null;index"`
	Name             string       `json:"name" gorm:"type:text;not null"`
	CapacityKgPerDay float64      `json:"capacity_kg_per_day" gorm:"not null"`
	CommissionedOn   time.Time    `json:"commissioned_on" gorm:"type:date;not null"`
	Status           string       `json:"status" gorm:"type:text;not null"`
	CreatedAt        time.Time    `json:"-" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `json:"-" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Factory) TableName() string { return "factories" }

// CollectionPoint is a leaf collection site owned by a factory. It carries
// the assigned farmer codes on the owning side.
type CollectionPoint struct {
	ID          snowflake.ID                `json:"-" gorm:"primaryKey"`
	Code        string                      `json:"code" gorm:"type:text;not null;uniqueIndex"`
	FactoryCode string                      `json:"factory_code" gorm:"type:text;not null;index"`
	Name        string                      `json:"name" gorm:"type:text;not null"`
	Latitude    float64                     `json:"latitude" gorm:"not null"`
	Longitude   float64                     `json:"longitude" gorm:"not null"`
	FarmerCodes datatypes.JSONSlice[string] `json:"farmer_codes" gorm:"type:jsonb"`
	CreatedAt   time.Time                   `json:"-" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time                   `json:"-" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CollectionPoint) TableName() string { return "collection_points" }

// AssignFarmer adds a farmer code to the collection point. Assigning an
// existing member is a no-op; the bool reports whether membership changed.
func (c *CollectionPoint) AssignFarmer(farmerCode string) bool {
	for _, code := range c.FarmerCodes {
		if code == farmerCode {
			return false
		}
	}
	c.FarmerCodes = append(c.FarmerCodes, farmerCode)
	return true
}

// UnassignFarmer removes a farmer code from the collection point.
// Unassigning a non-member is a no-op; the bool reports whether membership
// changed.
func (c *CollectionPoint) UnassignFarmer(farmerCode string) bool {
	for i, code := range c.FarmerCodes {
		if code == farmerCode {
			c.FarmerCodes = append(c.FarmerCodes[:i], c.FarmerCodes[i+1:]...)
			return true
		}
	}
	return false
}

// HasFarmer reports whether the farmer code is assigned.
func (c *CollectionPoint) HasFarmer(farmerCode string) bool {
	for _, code := range c.FarmerCodes {
		if code == farmerCode {
			return true
		}
	}
	return false
}

// Farmer is an enrolled smallholder. Farmers reference their region only;
// collection point membership lives on the collection point.
type Farmer struct {
	ID               snowflake.ID `json:"-" gorm:"primaryKey"`
	Code             string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	RegionCode       string       `json:"region_code" gorm:"type:text;not null;index"`
	FullName         string       `json:"full_name" gorm:"type:text;not null"`
	Phone            string       `json:"phone" gorm:"type:text;not null"`
	FarmSizeHectares float64      `json:"farm_size_hectares" gorm:"not null"`
	TeaVariety       string       `json:"tea_variety" gorm:"type:text;not null"`
	EnrolledOn       time.Time    `json:"enrolled_on" gorm:"type:date;not null"`
	Scenario         string       `json:"scenario" gorm:"type:text;not null"`
	CreatedAt        time.Time    `json:"-" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `json:"-" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Farmer) TableName() string { return "farmers" }
