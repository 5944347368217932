// Package refdata ships the canonical built-in demo snapshot (Kenya tea
// geography with a small set of enrolled farmers) and sources external
// reference identifiers for validating incremental loads.
package refdata

import (
	"context"
	"embed"
	"fmt"

	"github.com/farmerpower/platform/internal/demodata/snapshot"
	"gorm.io/gorm"
)

//go:embed builtin/*.json
var builtinFS embed.FS

// Builtin reads the embedded canonical snapshot in raw form, ready for the
// usual validate-then-load path.
func Builtin() (*snapshot.RawDataset, error) {
	return snapshot.ReadFS(builtinFS, "builtin")
}

// BuiltinDataset decodes the embedded snapshot into typed records.
func BuiltinDataset() (*snapshot.Dataset, error) {
	raw, err := Builtin()
	if err != nil {
		return nil, err
	}
	return raw.Decode()
}

// BuiltinRefs returns the referencable identifiers the embedded snapshot
// introduces (regions, factories, farmers).
func BuiltinRefs() (snapshot.RefSet, error) {
	ds, err := BuiltinDataset()
	if err != nil {
		return nil, err
	}

	refs := snapshot.RefSet{}
	for _, r := range ds.Regions {
		refs.Add(snapshot.EntityRegions, r.Code)
	}
	for _, f := range ds.Factories {
		refs.Add(snapshot.EntityFactories, f.Code)
	}
	for _, f := range ds.Farmers {
		refs.Add(snapshot.EntityFarmers, f.Code)
	}
	return refs, nil
}

// RefsFromDB reads the referencable identifiers already persisted in the
// store. Only regions, factories and farmers are referenced by other
// entity types, so only their codes are collected.
func RefsFromDB(ctx context.Context, db *gorm.DB) (snapshot.RefSet, error) {
	refs := snapshot.RefSet{}

	sources := []struct {
		entity snapshot.EntityType
		table  string
	}{
		{snapshot.EntityRegions, "regions"},
		{snapshot.EntityFactories, "factories"},
		{snapshot.EntityFarmers, "farmers"},
	}
	for _, src := range sources {
		var codes []string
		if err := db.WithContext(ctx).Table(src.table).Pluck("code", &codes).Error; err != nil {
			return nil, fmt.Errorf("read %s codes: %w", src.entity, err)
		}
		for _, code := range codes {
			refs.Add(src.entity, code)
		}
	}
	return refs, nil
}
