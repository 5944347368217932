// Package validate checks a snapshot batch before loading: schema first,
// across every record, then referential integrity against the union of
// same-batch identifiers and externally known ones.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	agronomydomain "github.com/farmerpower/platform/internal/agronomy/domain"
	costsdomain "github.com/farmerpower/platform/internal/costs/domain"
	"github.com/farmerpower/platform/internal/demodata/snapshot"
	documentdomain "github.com/farmerpower/platform/internal/document/domain"
	plantationdomain "github.com/farmerpower/platform/internal/plantation/domain"
	"github.com/farmerpower/platform/internal/seed"
	"go.uber.org/zap"
)

var (
	ErrSchemaValidation      = errors.New("schema_validation_failed")
	ErrReferentialValidation = errors.New("referential_validation_failed")
)

// Issue is one validation finding on one record.
type Issue struct {
	Entity snapshot.EntityType `json:"entity"`
	Key    string              `json:"key"`
	Field  string              `json:"field"`
	Reason string              `json:"reason"`
}

func (i Issue) String() string {
	if i.Field == "" {
		return fmt.Sprintf("%s[%s]: %s", i.Entity, i.Key, i.Reason)
	}
	return fmt.Sprintf("%s[%s]: %s: %s", i.Entity, i.Key, i.Field, i.Reason)
}

// Result is the outcome of one validation run. When schema issues exist the
// referential phase never ran and ReferentialIssues is empty.
type Result struct {
	Dataset           *snapshot.Dataset
	SchemaIssues      []Issue
	ReferentialIssues []Issue
}

func (r *Result) OK() bool {
	return len(r.SchemaIssues) == 0 && len(r.ReferentialIssues) == 0
}

// Issues returns all findings, schema first.
func (r *Result) Issues() []Issue {
	out := make([]Issue, 0, len(r.SchemaIssues)+len(r.ReferentialIssues))
	out = append(out, r.SchemaIssues...)
	return append(out, r.ReferentialIssues...)
}

func (r *Result) Err() error {
	switch {
	case len(r.SchemaIssues) > 0:
		return fmt.Errorf("%w: %d issue(s)", ErrSchemaValidation, len(r.SchemaIssues))
	case len(r.ReferentialIssues) > 0:
		return fmt.Errorf("%w: %d issue(s)", ErrReferentialValidation, len(r.ReferentialIssues))
	}
	return nil
}

// Validator checks snapshot batches. Construct once, use for many batches.
type Validator struct {
	log       *zap.Logger
	countries map[string]bool
}

func NewValidator(log *zap.Logger) *Validator {
	return NewValidatorWithCountries(log, nil)
}

// NewValidatorWithCountries validates region country codes against the given
// set, usually read from the countries reference table. A nil set falls back
// to the compiled-in seed countries, for callers running without a database.
func NewValidatorWithCountries(log *zap.Logger, countries map[string]bool) *Validator {
	if countries == nil {
		countries = seed.CountryCodeSet()
	}
	return &Validator{
		log:       log.Named("demodata.validate"),
		countries: countries,
	}
}

// Validate runs both phases over the batch. Phase one decodes every record
// and reports every schema offender; any schema issue aborts before phase
// two. Phase two walks entity types in dependency-level order and checks
// references against earlier-level batch identifiers plus external.
func (v *Validator) Validate(raw *snapshot.RawDataset, external snapshot.RefSet) *Result {
	res := &Result{Dataset: &snapshot.Dataset{}}

	v.checkSchema(raw, res)
	if len(res.SchemaIssues) > 0 {
		v.log.Warn("schema validation failed",
			zap.Int("issues", len(res.SchemaIssues)),
			zap.Int("records", raw.TotalRecords()))
		return res
	}

	v.checkReferences(res, external)
	if len(res.ReferentialIssues) > 0 {
		v.log.Warn("referential validation failed",
			zap.Int("issues", len(res.ReferentialIssues)))
		return res
	}

	v.log.Info("batch valid", zap.Int("records", res.Dataset.TotalRecords()))
	return res
}

func (r *Result) schema(entity snapshot.EntityType, key, field, reason string) {
	r.SchemaIssues = append(r.SchemaIssues, Issue{Entity: entity, Key: key, Field: field, Reason: reason})
}

func (r *Result) referential(entity snapshot.EntityType, key, field, reason string) {
	r.ReferentialIssues = append(r.ReferentialIssues, Issue{Entity: entity, Key: key, Field: field, Reason: reason})
}

func (v *Validator) checkSchema(raw *snapshot.RawDataset, res *Result) {
	ds := res.Dataset

	for i, rec := range raw.Records[snapshot.EntityRegions] {
		var r plantationdomain.Region
		if !decodeRecord(res, snapshot.EntityRegions, i, rec, &r) {
			continue
		}
		v.checkRegion(res, recordKey(r.Code, i), r)
		ds.Regions = append(ds.Regions, r)
	}
	for i, rec := range raw.Records[snapshot.EntityFactories] {
		var f plantationdomain.Factory
		if !decodeRecord(res, snapshot.EntityFactories, i, rec, &f) {
			continue
		}
		v.checkFactory(res, recordKey(f.Code, i), f)
		ds.Factories = append(ds.Factories, f)
	}
	for i, rec := range raw.Records[snapshot.EntityCollectionPoints] {
		var cp plantationdomain.CollectionPoint
		if !decodeRecord(res, snapshot.EntityCollectionPoints, i, rec, &cp) {
			continue
		}
		v.checkCollectionPoint(res, recordKey(cp.Code, i), cp)
		ds.CollectionPoints = append(ds.CollectionPoints, cp)
	}
	for i, rec := range raw.Records[snapshot.EntityFarmers] {
		var f plantationdomain.Farmer
		if !decodeRecord(res, snapshot.EntityFarmers, i, rec, &f) {
			continue
		}
		v.checkFarmer(res, recordKey(f.Code, i), f)
		ds.Farmers = append(ds.Farmers, f)
	}
	for i, rec := range raw.Records[snapshot.EntityFarmerPerformance] {
		var p agronomydomain.FarmerPerformance
		if !decodeRecord(res, snapshot.EntityFarmerPerformance, i, rec, &p) {
			continue
		}
		v.checkPerformance(res, recordKey(p.FarmerCode+"/"+p.PeriodMonth, i), p)
		ds.FarmerPerformance = append(ds.FarmerPerformance, p)
	}
	for i, rec := range raw.Records[snapshot.EntityWeatherObservations] {
		var w agronomydomain.WeatherObservation
		if !decodeRecord(res, snapshot.EntityWeatherObservations, i, rec, &w) {
			continue
		}
		key := recordKey(w.RegionCode+"/"+w.ObservedOn.Format("2006-01-02"), i)
		v.checkWeather(res, key, w)
		ds.WeatherObservations = append(ds.WeatherObservations, w)
	}
	for i, rec := range raw.Records[snapshot.EntityDocuments] {
		var d documentdomain.Document
		if !decodeRecord(res, snapshot.EntityDocuments, i, rec, &d) {
			continue
		}
		v.checkDocument(res, recordKey(d.Code, i), d)
		ds.Documents = append(ds.Documents, d)
	}
	seenRequestIDs := make(map[string]bool, raw.Count(snapshot.EntityCostEvents))
	for i, rec := range raw.Records[snapshot.EntityCostEvents] {
		var e costsdomain.CostEvent
		if !decodeRecord(res, snapshot.EntityCostEvents, i, rec, &e) {
			continue
		}
		v.checkCostEvent(res, recordKey(e.RequestID, i), e, seenRequestIDs)
		ds.CostEvents = append(ds.CostEvents, e)
	}
}

func decodeRecord[T any](res *Result, entity snapshot.EntityType, i int, rec json.RawMessage, out *T) bool {
	if err := json.Unmarshal(rec, out); err != nil {
		res.schema(entity, fmt.Sprintf("#%d", i), "", "invalid record: "+err.Error())
		return false
	}
	return true
}

// recordKey falls back to the record index when the natural key is blank.
func recordKey(key string, i int) string {
	if key == "" || key == "/" {
		return fmt.Sprintf("#%d", i)
	}
	return key
}

var (
	altitudeBands = map[string]bool{
		plantationdomain.AltitudeBandLowland:  true,
		plantationdomain.AltitudeBandMidland:  true,
		plantationdomain.AltitudeBandHighland: true,
	}
	soilTypes = map[string]bool{
		plantationdomain.SoilTypeVolcanicLoam: true,
		plantationdomain.SoilTypeClay:         true,
		plantationdomain.SoilTypeSandyLoam:    true,
		plantationdomain.SoilTypeLaterite:     true,
	}
	factoryStatuses = map[string]bool{
		plantationdomain.FactoryStatusActive:  true,
		plantationdomain.FactoryStatusDormant: true,
	}
	teaVarieties = map[string]bool{
		plantationdomain.TeaVarietySeedling: true,
		plantationdomain.TeaVarietyClonal:   true,
		plantationdomain.TeaVarietyPurple:   true,
	}
	docTypes = map[string]bool{
		documentdomain.DocTypeDeliveryReceipt: true,
		documentdomain.DocTypeIDCard:          true,
		documentdomain.DocTypeLandTitle:       true,
		documentdomain.DocTypeQualityCert:     true,
	}
	extractionStatuses = map[string]bool{
		documentdomain.ExtractionStatusPending:   true,
		documentdomain.ExtractionStatusExtracted: true,
		documentdomain.ExtractionStatusFailed:    true,
	}
)

func (v *Validator) checkRegion(res *Result, key string, r plantationdomain.Region) {
	e := snapshot.EntityRegions
	if r.Code == "" {
		res.schema(e, key, "code", "required")
	}
	if r.Name == "" {
		res.schema(e, key, "name", "required")
	}
	switch {
	case r.CountryCode == "":
		res.schema(e, key, "country_code", "required")
	case !v.countries[r.CountryCode]:
		res.schema(e, key, "country_code", fmt.Sprintf("unknown country code %q", r.CountryCode))
	}
	if !altitudeBands[r.AltitudeBand] {
		res.schema(e, key, "altitude_band", fmt.Sprintf("unknown altitude band %q", r.AltitudeBand))
	}
	if !soilTypes[r.SoilType] {
		res.schema(e, key, "soil_type", fmt.Sprintf("unknown soil type %q", r.SoilType))
	}
	if r.AvgAnnualRainfallMM < 0 {
		res.schema(e, key, "avg_annual_rainfall_mm", "must be >= 0")
	}
	if r.CentroidLat < -90 || r.CentroidLat > 90 {
		res.schema(e, key, "centroid_lat", "must be between -90 and 90")
	}
	if r.CentroidLng < -180 || r.CentroidLng > 180 {
		res.schema(e, key, "centroid_lng", "must be between -180 and 180")
	}
}

func (v *Validator) checkFactory(res *Result, key string, f plantationdomain.Factory) {
	e := snapshot.EntityFactories
	if f.Code == "" {
		res.schema(e, key, "code", "required")
	}
	if f.RegionCode == "" {
		res.schema(e, key, "region_code", "required")
	}
	if f.Name == "" {
		res.schema(e, key, "name", "required")
	}
	if f.CapacityKgPerDay <= 0 {
		res.schema(e, key, "capacity_kg_per_day", "must be > 0")
	}
	if f.CommissionedOn.IsZero() {
		res.schema(e, key, "commissioned_on", "required")
	}
	if !factoryStatuses[f.Status] {
		res.schema(e, key, "status", fmt.Sprintf("unknown status %q", f.Status))
	}
}

func (v *Validator) checkCollectionPoint(res *Result, key string, cp plantationdomain.CollectionPoint) {
	e := snapshot.EntityCollectionPoints
	if cp.Code == "" {
		res.schema(e, key, "code", "required")
	}
	if cp.FactoryCode == "" {
		res.schema(e, key, "factory_code", "required")
	}
	if cp.Name == "" {
		res.schema(e, key, "name", "required")
	}
	if cp.Latitude < -90 || cp.Latitude > 90 {
		res.schema(e, key, "latitude", "must be between -90 and 90")
	}
	if cp.Longitude < -180 || cp.Longitude > 180 {
		res.schema(e, key, "longitude", "must be between -180 and 180")
	}
	for i, fc := range cp.FarmerCodes {
		if fc == "" {
			res.schema(e, key, fmt.Sprintf("farmer_codes[%d]", i), "must not be empty")
		}
	}
}

func (v *Validator) checkFarmer(res *Result, key string, f plantationdomain.Farmer) {
	e := snapshot.EntityFarmers
	if f.Code == "" {
		res.schema(e, key, "code", "required")
	}
	if f.RegionCode == "" {
		res.schema(e, key, "region_code", "required")
	}
	if f.FullName == "" {
		res.schema(e, key, "full_name", "required")
	}
	if f.Phone == "" {
		res.schema(e, key, "phone", "required")
	}
	if f.FarmSizeHectares <= 0 {
		res.schema(e, key, "farm_size_hectares", "must be > 0")
	}
	if !teaVarieties[f.TeaVariety] {
		res.schema(e, key, "tea_variety", fmt.Sprintf("unknown tea variety %q", f.TeaVariety))
	}
	if f.EnrolledOn.IsZero() {
		res.schema(e, key, "enrolled_on", "required")
	}
	if f.Scenario == "" {
		res.schema(e, key, "scenario", "required")
	}
}

func (v *Validator) checkPerformance(res *Result, key string, p agronomydomain.FarmerPerformance) {
	e := snapshot.EntityFarmerPerformance
	if p.FarmerCode == "" {
		res.schema(e, key, "farmer_code", "required")
	}
	if _, err := time.Parse("2006-01", p.PeriodMonth); err != nil {
		res.schema(e, key, "period_month", fmt.Sprintf("%q is not a YYYY-MM month", p.PeriodMonth))
	}
	if p.DeliveriesCount < 0 {
		res.schema(e, key, "deliveries_count", "must be >= 0")
	}
	if p.TotalWeightKg < 0 {
		res.schema(e, key, "total_weight_kg", "must be >= 0")
	}
	if p.AvgQualityScore < 0 || p.AvgQualityScore > 100 {
		res.schema(e, key, "avg_quality_score", "must be between 0 and 100")
	}
	if p.RejectRatePct < 0 || p.RejectRatePct > 100 {
		res.schema(e, key, "reject_rate_pct", "must be between 0 and 100")
	}
	if p.EarningsUSD < 0 {
		res.schema(e, key, "earnings_usd", "must be >= 0")
	}
}

func (v *Validator) checkWeather(res *Result, key string, w agronomydomain.WeatherObservation) {
	e := snapshot.EntityWeatherObservations
	if w.RegionCode == "" {
		res.schema(e, key, "region_code", "required")
	}
	if w.ObservedOn.IsZero() {
		res.schema(e, key, "observed_on", "required")
	}
	if w.TempMaxC < w.TempMinC {
		res.schema(e, key, "temp_max_c", "must be >= temp_min_c")
	}
	if w.RainfallMM < 0 {
		res.schema(e, key, "rainfall_mm", "must be >= 0")
	}
	if w.HumidityPct < 0 || w.HumidityPct > 100 {
		res.schema(e, key, "humidity_pct", "must be between 0 and 100")
	}
}

func (v *Validator) checkDocument(res *Result, key string, d documentdomain.Document) {
	e := snapshot.EntityDocuments
	if d.Code == "" {
		res.schema(e, key, "code", "required")
	}
	if d.FarmerCode == "" {
		res.schema(e, key, "farmer_code", "required")
	}
	if d.FactoryCode != nil && *d.FactoryCode == "" {
		res.schema(e, key, "factory_code", "must not be empty when present")
	}
	if !docTypes[d.DocType] {
		res.schema(e, key, "doc_type", fmt.Sprintf("unknown doc type %q", d.DocType))
	}
	if d.StoragePath == "" {
		res.schema(e, key, "storage_path", "required")
	}
	if d.Pages < 1 {
		res.schema(e, key, "pages", "must be >= 1")
	}
	if d.UploadedAt.IsZero() {
		res.schema(e, key, "uploaded_at", "required")
	}
	if !extractionStatuses[d.ExtractionStatus] {
		res.schema(e, key, "extraction_status", fmt.Sprintf("unknown extraction status %q", d.ExtractionStatus))
	}
	if d.ExtractionStatus == documentdomain.ExtractionStatusExtracted && d.ExtractionConfidence == nil {
		res.schema(e, key, "extraction_confidence", "required when extraction_status is extracted")
	}
	if d.ExtractionConfidence != nil && (*d.ExtractionConfidence < 0 || *d.ExtractionConfidence > 1) {
		res.schema(e, key, "extraction_confidence", "must be between 0 and 1")
	}
}

func (v *Validator) checkCostEvent(res *Result, key string, ev costsdomain.CostEvent, seen map[string]bool) {
	e := snapshot.EntityCostEvents
	switch {
	case ev.RequestID == "":
		res.schema(e, key, "request_id", "required")
	case seen[ev.RequestID]:
		res.schema(e, key, "request_id", "duplicate within batch")
	default:
		seen[ev.RequestID] = true
	}
	if ev.OccurredAt.IsZero() {
		res.schema(e, key, "occurred_at", "required")
	}
	if ev.Service == "" {
		res.schema(e, key, "service", "required")
	}
	unit, known := costsdomain.UnitForCostType(ev.CostType)
	if !known {
		res.schema(e, key, "cost_type", fmt.Sprintf("unknown cost type %q", ev.CostType))
	} else if ev.Unit != unit {
		res.schema(e, key, "unit", fmt.Sprintf("must be %q for cost type %q", unit, ev.CostType))
	}
	if ev.Quantity <= 0 {
		res.schema(e, key, "quantity", "must be > 0")
	}
	if ev.AmountUSD < 0 {
		res.schema(e, key, "amount_usd", "must be >= 0")
	}
	if ev.FarmerCode != nil && *ev.FarmerCode == "" {
		res.schema(e, key, "farmer_code", "must not be empty when present")
	}
	if ev.FactoryCode != nil && *ev.FactoryCode == "" {
		res.schema(e, key, "factory_code", "must not be empty when present")
	}
}

// checkReferences walks dependency levels: a level's references resolve
// against external identifiers plus identifiers registered by earlier
// levels, never by its own or later levels.
func (v *Validator) checkReferences(res *Result, external snapshot.RefSet) {
	avail := snapshot.RefSet{}
	for entity, ids := range external {
		for id := range ids {
			avail.Add(entity, id)
		}
	}

	ds := res.Dataset

	// level 1: regions introduce identifiers and reference nothing
	for _, r := range ds.Regions {
		avail.Add(snapshot.EntityRegions, r.Code)
	}

	// level 2: factories, farmers and weather reference regions
	for _, f := range ds.Factories {
		if !avail.Has(snapshot.EntityRegions, f.RegionCode) {
			res.referential(snapshot.EntityFactories, f.Code, "region_code", fmt.Sprintf("unknown region %q", f.RegionCode))
		}
	}
	for _, f := range ds.Farmers {
		if !avail.Has(snapshot.EntityRegions, f.RegionCode) {
			res.referential(snapshot.EntityFarmers, f.Code, "region_code", fmt.Sprintf("unknown region %q", f.RegionCode))
		}
	}
	for _, w := range ds.WeatherObservations {
		if !avail.Has(snapshot.EntityRegions, w.RegionCode) {
			key := w.RegionCode + "/" + w.ObservedOn.Format("2006-01-02")
			res.referential(snapshot.EntityWeatherObservations, key, "region_code", fmt.Sprintf("unknown region %q", w.RegionCode))
		}
	}
	for _, f := range ds.Factories {
		avail.Add(snapshot.EntityFactories, f.Code)
	}
	for _, f := range ds.Farmers {
		avail.Add(snapshot.EntityFarmers, f.Code)
	}

	// level 3: collection points, performance, documents and cost events
	for _, cp := range ds.CollectionPoints {
		if !avail.Has(snapshot.EntityFactories, cp.FactoryCode) {
			res.referential(snapshot.EntityCollectionPoints, cp.Code, "factory_code", fmt.Sprintf("unknown factory %q", cp.FactoryCode))
		}
		for i, fc := range cp.FarmerCodes {
			if !avail.Has(snapshot.EntityFarmers, fc) {
				res.referential(snapshot.EntityCollectionPoints, cp.Code, fmt.Sprintf("farmer_codes[%d]", i), fmt.Sprintf("unknown farmer %q", fc))
			}
		}
	}
	for _, p := range ds.FarmerPerformance {
		if !avail.Has(snapshot.EntityFarmers, p.FarmerCode) {
			key := p.FarmerCode + "/" + p.PeriodMonth
			res.referential(snapshot.EntityFarmerPerformance, key, "farmer_code", fmt.Sprintf("unknown farmer %q", p.FarmerCode))
		}
	}
	for _, d := range ds.Documents {
		if !avail.Has(snapshot.EntityFarmers, d.FarmerCode) {
			res.referential(snapshot.EntityDocuments, d.Code, "farmer_code", fmt.Sprintf("unknown farmer %q", d.FarmerCode))
		}
		if d.FactoryCode != nil && !avail.Has(snapshot.EntityFactories, *d.FactoryCode) {
			res.referential(snapshot.EntityDocuments, d.Code, "factory_code", fmt.Sprintf("unknown factory %q", *d.FactoryCode))
		}
	}
	for _, ev := range ds.CostEvents {
		if ev.FarmerCode != nil && !avail.Has(snapshot.EntityFarmers, *ev.FarmerCode) {
			res.referential(snapshot.EntityCostEvents, ev.RequestID, "farmer_code", fmt.Sprintf("unknown farmer %q", *ev.FarmerCode))
		}
		if ev.FactoryCode != nil && !avail.Has(snapshot.EntityFactories, *ev.FactoryCode) {
			res.referential(snapshot.EntityCostEvents, ev.RequestID, "factory_code", fmt.Sprintf("unknown factory %q", *ev.FactoryCode))
		}
	}
}
