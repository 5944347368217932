// Package domain contains persistence models for farmer documents.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	DocTypeDeliveryReceipt = "delivery_receipt"
	DocTypeIDCard          = "id_card"
	DocTypeLandTitle       = "land_title"
	DocTypeQualityCert     = "quality_cert"
)

const (
	ExtractionStatusPending   = "pending"
	ExtractionStatusExtracted = "extracted"
	ExtractionStatusFailed    = "failed"
)

// Document is an uploaded farmer document. The extraction fields are filled
// in by the external document-AI collaborator.
type Document struct {
	ID                   snowflake.ID `json:"-" gorm:"primaryKey"`
	Code                 string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	FarmerCode           string       `json:"farmer_code" gorm:"type:text;not null;index"`
	FactoryCode          *string      `json:"factory_code,omitempty" gorm:"type:text"`
	DocType              string       `json:"doc_type" gorm:"type:text;not null"`
	StoragePath          string       `json:"storage_path" gorm:"type:text;not null"`
	Pages                int          `json:"pages" gorm:"not null"`
	UploadedAt           time.Time    `json:"uploaded_at" gorm:"not null"`
	ExtractionStatus     string       `json:"extraction_status" gorm:"type:text;not null"`
	ExtractionConfidence *float64     `json:"extraction_confidence,omitempty"`
	CreatedAt            time.Time    `json:"-" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time    `json:"-" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Document) TableName() string { return "documents" }
