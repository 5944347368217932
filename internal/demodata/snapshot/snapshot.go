// Package snapshot defines the demo dataset file format: one JSON file per
// entity type, array of records, named {entity_type}.json.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	agronomydomain "github.com/farmerpower/platform/internal/agronomy/domain"
	costsdomain "github.com/farmerpower/platform/internal/costs/domain"
	documentdomain "github.com/farmerpower/platform/internal/document/domain"
	plantationdomain "github.com/farmerpower/platform/internal/plantation/domain"
)

type EntityType string

const (
	EntityRegions             EntityType = "regions"
	EntityFactories           EntityType = "factories"
	EntityCollectionPoints    EntityType = "collection_points"
	EntityFarmers             EntityType = "farmers"
	EntityFarmerPerformance   EntityType = "farmer_performance"
	EntityWeatherObservations EntityType = "weather_observations"
	EntityDocuments           EntityType = "documents"
	EntityCostEvents          EntityType = "cost_events"
)

func (t EntityType) String() string { return string(t) }

// FileName is the snapshot file an entity type serializes to.
func (t EntityType) FileName() string { return string(t) + ".json" }

// Levels groups entity types by foreign-key dependency level. Validation
// and loading walk levels in order; types inside a level share the order
// given here.
func Levels() [][]EntityType {
	return [][]EntityType{
		{EntityRegions},
		{EntityFactories, EntityFarmers, EntityWeatherObservations},
		{EntityCollectionPoints, EntityFarmerPerformance, EntityDocuments, EntityCostEvents},
	}
}

// All returns every entity type in dependency-level order.
func All() []EntityType {
	var all []EntityType
	for _, level := range Levels() {
		all = append(all, level...)
	}
	return all
}

// Dataset is one generated or decoded batch, typed per entity.
type Dataset struct {
	Regions             []plantationdomain.Region
	Factories           []plantationdomain.Factory
	CollectionPoints    []plantationdomain.CollectionPoint
	Farmers             []plantationdomain.Farmer
	FarmerPerformance   []agronomydomain.FarmerPerformance
	WeatherObservations []agronomydomain.WeatherObservation
	Documents           []documentdomain.Document
	CostEvents          []costsdomain.CostEvent
}

// TotalRecords counts records across all entity types.
func (d *Dataset) TotalRecords() int {
	return len(d.Regions) + len(d.Factories) + len(d.CollectionPoints) +
		len(d.Farmers) + len(d.FarmerPerformance) + len(d.WeatherObservations) +
		len(d.Documents) + len(d.CostEvents)
}

// WriteFiles serializes the dataset into dir, one file per entity type.
// Every file of the fixed set is written, empty types as [].
func (d *Dataset) WriteFiles(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	if err := writeEntityFile(dir, EntityRegions, d.Regions); err != nil {
		return err
	}
	if err := writeEntityFile(dir, EntityFactories, d.Factories); err != nil {
		return err
	}
	if err := writeEntityFile(dir, EntityCollectionPoints, d.CollectionPoints); err != nil {
		return err
	}
	if err := writeEntityFile(dir, EntityFarmers, d.Farmers); err != nil {
		return err
	}
	if err := writeEntityFile(dir, EntityFarmerPerformance, d.FarmerPerformance); err != nil {
		return err
	}
	if err := writeEntityFile(dir, EntityWeatherObservations, d.WeatherObservations); err != nil {
		return err
	}
	if err := writeEntityFile(dir, EntityDocuments, d.Documents); err != nil {
		return err
	}
	return writeEntityFile(dir, EntityCostEvents, d.CostEvents)
}

func writeEntityFile[T any](dir string, entity EntityType, records []T) error {
	if records == nil {
		records = []T{}
	}

	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", entity, err)
	}
	b = append(b, '\n')

	path := filepath.Join(dir, entity.FileName())
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", entity, err)
	}
	return nil
}

// RawDataset holds snapshot records before schema validation decodes them.
// Missing files read as empty, record-level decode errors are left to the
// validator so every offending record can be reported.
type RawDataset struct {
	Records map[EntityType][]json.RawMessage
}

// ReadFiles reads a snapshot directory on disk into raw per-entity record
// lists.
func ReadFiles(dir string) (*RawDataset, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("snapshot dir %s: not a directory", dir)
	}
	return ReadFS(os.DirFS(dir), ".")
}

// ReadFS reads a snapshot directory from any filesystem, including embedded
// ones. Missing entity files read as empty.
func ReadFS(fsys fs.FS, dir string) (*RawDataset, error) {
	raw := &RawDataset{
		Records: make(map[EntityType][]json.RawMessage, len(All())),
	}

	for _, entity := range All() {
		b, err := fs.ReadFile(fsys, path.Join(dir, entity.FileName()))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", entity.FileName(), err)
		}

		var records []json.RawMessage
		if err := json.Unmarshal(b, &records); err != nil {
			return nil, fmt.Errorf("parse %s: %w", entity.FileName(), err)
		}
		raw.Records[entity] = records
	}

	return raw, nil
}

// Decode unmarshals every raw record into its typed form. The first failure
// aborts; per-record error reporting is the validator's job, Decode is for
// trusted sources like the embedded builtin snapshot.
func (r *RawDataset) Decode() (*Dataset, error) {
	ds := &Dataset{}
	if err := decodeRecords(r, EntityRegions, &ds.Regions); err != nil {
		return nil, err
	}
	if err := decodeRecords(r, EntityFactories, &ds.Factories); err != nil {
		return nil, err
	}
	if err := decodeRecords(r, EntityCollectionPoints, &ds.CollectionPoints); err != nil {
		return nil, err
	}
	if err := decodeRecords(r, EntityFarmers, &ds.Farmers); err != nil {
		return nil, err
	}
	if err := decodeRecords(r, EntityFarmerPerformance, &ds.FarmerPerformance); err != nil {
		return nil, err
	}
	if err := decodeRecords(r, EntityWeatherObservations, &ds.WeatherObservations); err != nil {
		return nil, err
	}
	if err := decodeRecords(r, EntityDocuments, &ds.Documents); err != nil {
		return nil, err
	}
	if err := decodeRecords(r, EntityCostEvents, &ds.CostEvents); err != nil {
		return nil, err
	}
	return ds, nil
}

func decodeRecords[T any](r *RawDataset, entity EntityType, out *[]T) error {
	for i, rec := range r.Records[entity] {
		var v T
		if err := json.Unmarshal(rec, &v); err != nil {
			return fmt.Errorf("decode %s record %d: %w", entity, i, err)
		}
		*out = append(*out, v)
	}
	return nil
}

// Count returns the raw record count for one entity type.
func (r *RawDataset) Count(entity EntityType) int {
	return len(r.Records[entity])
}

// TotalRecords counts raw records across all entity types.
func (r *RawDataset) TotalRecords() int {
	total := 0
	for _, records := range r.Records {
		total += len(records)
	}
	return total
}

// RefSet is a set of known natural keys per entity type, used as the
// external reference side of referential validation.
type RefSet map[EntityType]map[string]bool

// Add records a natural key.
func (s RefSet) Add(entity EntityType, id string) {
	ids, ok := s[entity]
	if !ok {
		ids = make(map[string]bool)
		s[entity] = ids
	}
	ids[id] = true
}

// Has reports whether a natural key is present.
func (s RefSet) Has(entity EntityType, id string) bool {
	return s[entity][id]
}
