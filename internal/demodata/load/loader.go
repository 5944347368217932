// Package load applies validated snapshot batches to the database. Every
// record is an upsert keyed by the entity's natural identifier, so re-running
// the same batch never duplicates rows.
package load

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	agronomydomain "github.com/farmerpower/platform/internal/agronomy/domain"
	"github.com/farmerpower/platform/internal/cloudmetrics"
	costsdomain "github.com/farmerpower/platform/internal/costs/domain"
	"github.com/farmerpower/platform/internal/demodata/snapshot"
	documentdomain "github.com/farmerpower/platform/internal/document/domain"
	plantationdomain "github.com/farmerpower/platform/internal/plantation/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrLoadFailed is returned when any record in a file fails to apply. The
// loader finishes the failing file, reports every record error, then halts
// without touching later files. Nothing is rolled back; a re-run converges.
var ErrLoadFailed = errors.New("load_failed")

type action int

const (
	actionInserted action = iota
	actionUpdated
	actionSkipped
)

// FileReport is the per-entity-type outcome of a load.
type FileReport struct {
	Entity   snapshot.EntityType `json:"entity"`
	Total    int                 `json:"total"`
	Inserted int                 `json:"inserted"`
	Updated  int                 `json:"updated"`
	Skipped  int                 `json:"skipped"`
	Failed   int                 `json:"failed"`
	Errors   []string            `json:"errors,omitempty"`
}

func (fr *FileReport) apply(key string, act action, err error) {
	if err != nil {
		fr.Failed++
		fr.Errors = append(fr.Errors, fmt.Sprintf("%s: %v", key, err))
		return
	}
	switch act {
	case actionInserted:
		fr.Inserted++
	case actionUpdated:
		fr.Updated++
	default:
		fr.Skipped++
	}
}

// Report collects file reports in load order. A halted load carries reports
// up to and including the failing file.
type Report struct {
	Files []FileReport `json:"files"`
}

func (r *Report) Totals() (inserted, updated, skipped, failed int) {
	for _, f := range r.Files {
		inserted += f.Inserted
		updated += f.Updated
		skipped += f.Skipped
		failed += f.Failed
	}
	return inserted, updated, skipped, failed
}

func (r *Report) TotalRecords() int {
	total := 0
	for _, f := range r.Files {
		total += f.Total
	}
	return total
}

func (r *Report) HasFailures() bool {
	for _, f := range r.Files {
		if f.Failed > 0 {
			return true
		}
	}
	return false
}

// Loader writes batches record-by-record with no cross-record transaction.
type Loader struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	cloud *cloudmetrics.CloudMetrics
}

// NewLoader constructs a loader. cloud may be nil.
func NewLoader(db *gorm.DB, log *zap.Logger, genID *snowflake.Node, cloud *cloudmetrics.CloudMetrics) *Loader {
	return &Loader{
		db:    db,
		log:   log.Named("demodata.load"),
		genID: genID,
		cloud: cloud,
	}
}

// Load applies the dataset one entity type at a time, in dependency-level
// order. Record errors are collected per file; a file with failures halts
// the run after its report is complete.
func (l *Loader) Load(ctx context.Context, ds *snapshot.Dataset) (*Report, error) {
	report := &Report{}

	files := []struct {
		entity snapshot.EntityType
		run    func(context.Context) FileReport
	}{
		{snapshot.EntityRegions, func(ctx context.Context) FileReport {
			return l.loadRegions(ctx, ds.Regions)
		}},
		{snapshot.EntityFactories, func(ctx context.Context) FileReport {
			return l.loadFactories(ctx, ds.Factories)
		}},
		{snapshot.EntityFarmers, func(ctx context.Context) FileReport {
			return l.loadFarmers(ctx, ds.Farmers)
		}},
		{snapshot.EntityWeatherObservations, func(ctx context.Context) FileReport {
			return l.loadWeatherObservations(ctx, ds.WeatherObservations)
		}},
		{snapshot.EntityCollectionPoints, func(ctx context.Context) FileReport {
			return l.loadCollectionPoints(ctx, ds.CollectionPoints)
		}},
		{snapshot.EntityFarmerPerformance, func(ctx context.Context) FileReport {
			return l.loadFarmerPerformance(ctx, ds.FarmerPerformance)
		}},
		{snapshot.EntityDocuments, func(ctx context.Context) FileReport {
			return l.loadDocuments(ctx, ds.Documents)
		}},
		{snapshot.EntityCostEvents, func(ctx context.Context) FileReport {
			return l.loadCostEvents(ctx, ds.CostEvents)
		}},
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		fr := file.run(ctx)
		report.Files = append(report.Files, fr)

		l.log.Info("file applied",
			zap.String("entity", fr.Entity.String()),
			zap.Int("total", fr.Total),
			zap.Int("inserted", fr.Inserted),
			zap.Int("updated", fr.Updated),
			zap.Int("skipped", fr.Skipped),
			zap.Int("failed", fr.Failed))

		if l.cloud != nil {
			l.cloud.AddRecordsLoaded(fr.Entity.String(), fr.Inserted+fr.Updated)
		}

		if fr.Failed > 0 {
			return report, fmt.Errorf("%w: %s: %d of %d records failed", ErrLoadFailed, fr.Entity, fr.Failed, fr.Total)
		}
	}

	return report, nil
}

func (l *Loader) loadRegions(ctx context.Context, records []plantationdomain.Region) FileReport {
	fr := FileReport{Entity: snapshot.EntityRegions, Total: len(records)}
	for _, rec := range records {
		act, err := l.upsertRegion(ctx, rec)
		fr.apply(rec.Code, act, err)
	}
	return fr
}

func (l *Loader) upsertRegion(ctx context.Context, rec plantationdomain.Region) (action, error) {
	var existing plantationdomain.Region
	err := l.db.WithContext(ctx).Where("code = ?", rec.Code).First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]any{
			"name":                   rec.Name,
			"country_code":           rec.CountryCode,
			"centroid_lat":           rec.CentroidLat,
			"centroid_lng":           rec.CentroidLng,
			"altitude_band":          rec.AltitudeBand,
			"soil_type":              rec.SoilType,
			"avg_annual_rainfall_mm": rec.AvgAnnualRainfallMM,
			"metadata":               rec.Metadata,
		}
		if err := l.db.WithContext(ctx).Model(&plantationdomain.Region{}).
			Where("code = ?", rec.Code).Updates(updates).Error; err != nil {
			return 0, err
		}
		return actionUpdated, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec.ID = l.genID.Generate()
		return l.insert(ctx, &rec, conflictOn("code"))
	default:
		return 0, err
	}
}

func (l *Loader) loadFactories(ctx context.Context, records []plantationdomain.Factory) FileReport {
	fr := FileReport{Entity: snapshot.EntityFactories, Total: len(records)}
	for _, rec := range records {
		act, err := l.upsertFactory(ctx, rec)
		fr.apply(rec.Code, act, err)
	}
	return fr
}

func (l *Loader) upsertFactory(ctx context.Context, rec plantationdomain.Factory) (action, error) {
	var existing plantationdomain.Factory
	err := l.db.WithContext(ctx).Where("code = ?", rec.Code).First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]any{
			"region_code":         rec.RegionCode,
			"name":                rec.Name,
			"capacity_kg_per_day": rec.CapacityKgPerDay,
			"commissioned_on":     rec.CommissionedOn,
			"status":              rec.Status,
		}
		if err := l.db.WithContext(ctx).Model(&plantationdomain.Factory{}).
			Where("code = ?", rec.Code).Updates(updates).Error; err != nil {
			return 0, err
		}
		return actionUpdated, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec.ID = l.genID.Generate()
		return l.insert(ctx, &rec, conflictOn("code"))
	default:
		return 0, err
	}
}

func (l *Loader) loadFarmers(ctx context.Context, records []plantationdomain.Farmer) FileReport {
	fr := FileReport{Entity: snapshot.EntityFarmers, Total: len(records)}
	for _, rec := range records {
		act, err := l.upsertFarmer(ctx, rec)
		fr.apply(rec.Code, act, err)
	}
	return fr
}

func (l *Loader) upsertFarmer(ctx context.Context, rec plantationdomain.Farmer) (action, error) {
	var existing plantationdomain.Farmer
	err := l.db.WithContext(ctx).Where("code = ?", rec.Code).First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]any{
			"region_code":        rec.RegionCode,
			"full_name":          rec.FullName,
			"phone":              rec.Phone,
			"farm_size_hectares": rec.FarmSizeHectares,
			"tea_variety":        rec.TeaVariety,
			"enrolled_on":        rec.EnrolledOn,
			"scenario":           rec.Scenario,
		}
		if err := l.db.WithContext(ctx).Model(&plantationdomain.Farmer{}).
			Where("code = ?", rec.Code).Updates(updates).Error; err != nil {
			return 0, err
		}
		return actionUpdated, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec.ID = l.genID.Generate()
		return l.insert(ctx, &rec, conflictOn("code"))
	default:
		return 0, err
	}
}

func (l *Loader) loadWeatherObservations(ctx context.Context, records []agronomydomain.WeatherObservation) FileReport {
	fr := FileReport{Entity: snapshot.EntityWeatherObservations, Total: len(records)}
	for _, rec := range records {
		act, err := l.upsertWeatherObservation(ctx, rec)
		fr.apply(rec.RegionCode+"/"+rec.ObservedOn.Format("2006-01-02"), act, err)
	}
	return fr
}

func (l *Loader) upsertWeatherObservation(ctx context.Context, rec agronomydomain.WeatherObservation) (action, error) {
	var existing agronomydomain.WeatherObservation
	err := l.db.WithContext(ctx).
		Where("region_code = ? AND observed_on = ?", rec.RegionCode, rec.ObservedOn).
		First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]any{
			"temp_min_c":   rec.TempMinC,
			"temp_max_c":   rec.TempMaxC,
			"rainfall_mm":  rec.RainfallMM,
			"humidity_pct": rec.HumidityPct,
		}
		if err := l.db.WithContext(ctx).Model(&agronomydomain.WeatherObservation{}).
			Where("region_code = ? AND observed_on = ?", rec.RegionCode, rec.ObservedOn).
			Updates(updates).Error; err != nil {
			return 0, err
		}
		return actionUpdated, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec.ID = l.genID.Generate()
		return l.insert(ctx, &rec, conflictOn("region_code", "observed_on"))
	default:
		return 0, err
	}
}

func (l *Loader) loadCollectionPoints(ctx context.Context, records []plantationdomain.CollectionPoint) FileReport {
	fr := FileReport{Entity: snapshot.EntityCollectionPoints, Total: len(records)}
	for _, rec := range records {
		act, err := l.upsertCollectionPoint(ctx, rec)
		fr.apply(rec.Code, act, err)
	}
	return fr
}

func (l *Loader) upsertCollectionPoint(ctx context.Context, rec plantationdomain.CollectionPoint) (action, error) {
	if rec.FarmerCodes == nil {
		rec.FarmerCodes = datatypes.JSONSlice[string]{}
	}

	var existing plantationdomain.CollectionPoint
	err := l.db.WithContext(ctx).Where("code = ?", rec.Code).First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]any{
			"factory_code": rec.FactoryCode,
			"name":         rec.Name,
			"latitude":     rec.Latitude,
			"longitude":    rec.Longitude,
			"farmer_codes": rec.FarmerCodes,
		}
		if err := l.db.WithContext(ctx).Model(&plantationdomain.CollectionPoint{}).
			Where("code = ?", rec.Code).Updates(updates).Error; err != nil {
			return 0, err
		}
		return actionUpdated, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec.ID = l.genID.Generate()
		return l.insert(ctx, &rec, conflictOn("code"))
	default:
		return 0, err
	}
}

func (l *Loader) loadFarmerPerformance(ctx context.Context, records []agronomydomain.FarmerPerformance) FileReport {
	fr := FileReport{Entity: snapshot.EntityFarmerPerformance, Total: len(records)}
	for _, rec := range records {
		act, err := l.upsertFarmerPerformance(ctx, rec)
		fr.apply(rec.FarmerCode+"/"+rec.PeriodMonth, act, err)
	}
	return fr
}

func (l *Loader) upsertFarmerPerformance(ctx context.Context, rec agronomydomain.FarmerPerformance) (action, error) {
	var existing agronomydomain.FarmerPerformance
	err := l.db.WithContext(ctx).
		Where("farmer_code = ? AND period_month = ?", rec.FarmerCode, rec.PeriodMonth).
		First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]any{
			"deliveries_count":  rec.DeliveriesCount,
			"total_weight_kg":   rec.TotalWeightKg,
			"avg_quality_score": rec.AvgQualityScore,
			"reject_rate_pct":   rec.RejectRatePct,
			"earnings_usd":      rec.EarningsUSD,
		}
		if err := l.db.WithContext(ctx).Model(&agronomydomain.FarmerPerformance{}).
			Where("farmer_code = ? AND period_month = ?", rec.FarmerCode, rec.PeriodMonth).
			Updates(updates).Error; err != nil {
			return 0, err
		}
		return actionUpdated, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec.ID = l.genID.Generate()
		return l.insert(ctx, &rec, conflictOn("farmer_code", "period_month"))
	default:
		return 0, err
	}
}

func (l *Loader) loadDocuments(ctx context.Context, records []documentdomain.Document) FileReport {
	fr := FileReport{Entity: snapshot.EntityDocuments, Total: len(records)}
	for _, rec := range records {
		act, err := l.upsertDocument(ctx, rec)
		fr.apply(rec.Code, act, err)
	}
	return fr
}

func (l *Loader) upsertDocument(ctx context.Context, rec documentdomain.Document) (action, error) {
	var existing documentdomain.Document
	err := l.db.WithContext(ctx).Where("code = ?", rec.Code).First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]any{
			"farmer_code":           rec.FarmerCode,
			"factory_code":          rec.FactoryCode,
			"doc_type":              rec.DocType,
			"storage_path":          rec.StoragePath,
			"pages":                 rec.Pages,
			"uploaded_at":           rec.UploadedAt,
			"extraction_status":     rec.ExtractionStatus,
			"extraction_confidence": rec.ExtractionConfidence,
		}
		if err := l.db.WithContext(ctx).Model(&documentdomain.Document{}).
			Where("code = ?", rec.Code).Updates(updates).Error; err != nil {
			return 0, err
		}
		return actionUpdated, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec.ID = l.genID.Generate()
		return l.insert(ctx, &rec, conflictOn("code"))
	default:
		return 0, err
	}
}

func (l *Loader) loadCostEvents(ctx context.Context, records []costsdomain.CostEvent) FileReport {
	fr := FileReport{Entity: snapshot.EntityCostEvents, Total: len(records)}
	for _, rec := range records {
		act, err := l.upsertCostEvent(ctx, rec)
		fr.apply(rec.RequestID, act, err)
	}
	return fr
}

func (l *Loader) upsertCostEvent(ctx context.Context, rec costsdomain.CostEvent) (action, error) {
	var existing costsdomain.CostEvent
	err := l.db.WithContext(ctx).Where("request_id = ?", rec.RequestID).First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]any{
			"occurred_at":  rec.OccurredAt,
			"service":      rec.Service,
			"cost_type":    rec.CostType,
			"unit":         rec.Unit,
			"quantity":     rec.Quantity,
			"amount_usd":   rec.AmountUSD,
			"farmer_code":  rec.FarmerCode,
			"factory_code": rec.FactoryCode,
			"metadata":     rec.Metadata,
		}
		if err := l.db.WithContext(ctx).Model(&costsdomain.CostEvent{}).
			Where("request_id = ?", rec.RequestID).Updates(updates).Error; err != nil {
			return 0, err
		}
		return actionUpdated, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec.ID = l.genID.Generate()
		return l.insert(ctx, &rec, conflictOn("request_id"))
	default:
		return 0, err
	}
}

// insert creates the row, tolerating a concurrent writer having won the
// natural key race.
func (l *Loader) insert(ctx context.Context, rec any, onConflict clause.OnConflict) (action, error) {
	res := l.db.WithContext(ctx).Clauses(onConflict).Create(rec)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return actionSkipped, nil
	}
	return actionInserted, nil
}

func conflictOn(columns ...string) clause.OnConflict {
	cols := make([]clause.Column, len(columns))
	for i, c := range columns {
		cols[i] = clause.Column{Name: c}
	}
	return clause.OnConflict{Columns: cols, DoNothing: true}
}
