package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/farmerpower/platform/internal/demodata/refdata"
	plantationdomain "github.com/farmerpower/platform/internal/plantation/domain"
	referencedomain "github.com/farmerpower/platform/internal/reference/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// countries the platform operates in or exports to. The demo profiles only
// place regions in East Africa, the rest exist so document and market data
// can reference importer countries without tripping referential checks.
var countries = []referencedomain.Country{
	{Code: "KE", Name: "Kenya"},
	{Code: "RW", Name: "Rwanda"},
	{Code: "UG", Name: "Uganda"},
	{Code: "TZ", Name: "Tanzania"},
	{Code: "ET", Name: "Ethiopia"},
	{Code: "MW", Name: "Malawi"},
	{Code: "BI", Name: "Burundi"},
	{Code: "IN", Name: "India"},
	{Code: "LK", Name: "Sri Lanka"},
	{Code: "CN", Name: "China"},
	{Code: "VN", Name: "Viet Nam"},
	{Code: "ID", Name: "Indonesia"},
	{Code: "PK", Name: "Pakistan"},
	{Code: "EG", Name: "Egypt"},
	{Code: "AE", Name: "United Arab Emirates"},
	{Code: "GB", Name: "United Kingdom"},
	{Code: "DE", Name: "Germany"},
	{Code: "NL", Name: "Netherlands"},
	{Code: "US", Name: "United States"},
	{Code: "JP", Name: "Japan"},
}

// EnsureReferenceData seeds the countries table and the built-in master rows
// (canonical regions and factories) for startup bootstrap. Re-running is a
// no-op for rows that already exist; edited rows are left alone, only the
// demo loader overwrites.
func EnsureReferenceData(db *gorm.DB, genID *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if genID == nil {
		return errors.New("seed id generator is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureCountriesTx(ctx, tx); err != nil {
			return err
		}
		return ensureMasterRowsTx(ctx, tx, genID)
	})
}

func ensureCountriesTx(ctx context.Context, tx *gorm.DB) error {
	rows := make([]referencedomain.Country, len(countries))
	copy(rows, countries)

	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoNothing: true,
	}).Create(&rows).Error
}

func ensureMasterRowsTx(ctx context.Context, tx *gorm.DB, genID *snowflake.Node) error {
	ds, err := refdata.BuiltinDataset()
	if err != nil {
		return fmt.Errorf("builtin dataset: %w", err)
	}

	regions := make([]plantationdomain.Region, len(ds.Regions))
	for i, region := range ds.Regions {
		region.ID = genID.Generate()
		regions[i] = region
	}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoNothing: true,
	}).Create(&regions).Error; err != nil {
		return fmt.Errorf("seed regions: %w", err)
	}

	factories := make([]plantationdomain.Factory, len(ds.Factories))
	for i, factory := range ds.Factories {
		factory.ID = genID.Generate()
		factories[i] = factory
	}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoNothing: true,
	}).Create(&factories).Error; err != nil {
		return fmt.Errorf("seed factories: %w", err)
	}

	return nil
}

// CountryCodeSet returns the seeded ISO codes without touching the database,
// for generators that need to stamp valid codes before anything is loaded.
func CountryCodeSet() map[string]bool {
	set := make(map[string]bool, len(countries))
	for _, c := range countries {
		set[c.Code] = true
	}
	return set
}
