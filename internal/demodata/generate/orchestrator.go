package generate

import (
	"context"
	"fmt"

	"github.com/farmerpower/platform/internal/demodata/profile"
	"github.com/farmerpower/platform/internal/demodata/registry"
	"github.com/farmerpower/platform/internal/demodata/snapshot"
	documentdomain "github.com/farmerpower/platform/internal/document/domain"
	obscontext "github.com/farmerpower/platform/internal/observability/context"
	obslogger "github.com/farmerpower/platform/internal/observability/logger"
	"go.uber.org/zap"
)

// Orchestrator runs the entity builders in dependency order and collects
// their output into one dataset. Dispatch is a fixed stage table, so adding
// an entity type means adding a stage here and the compiler keeps us honest.
type Orchestrator struct {
	log *zap.Logger
}

func NewOrchestrator(log *zap.Logger) *Orchestrator {
	return &Orchestrator{log: log.Named("demodata.generate")}
}

type stageFunc func(context.Context, *Builder, *snapshot.Dataset) (int, error)

// Generate builds the full dataset for a profile. The same profile, seed
// and starting registry always yield byte-identical output.
func (o *Orchestrator) Generate(ctx context.Context, prof profile.Profile, seed int64, reg *registry.Registry) (*snapshot.Dataset, error) {
	if err := prof.Validate(); err != nil {
		return nil, fmt.Errorf("profile %q: %w", prof.Name, err)
	}

	b := NewBuilder(seed, reg, prof)
	ds := &snapshot.Dataset{}

	stages := []struct {
		entity snapshot.EntityType
		run    stageFunc
	}{
		{snapshot.EntityRegions, o.buildRegions},
		{snapshot.EntityFactories, o.buildFactories},
		{snapshot.EntityCollectionPoints, o.buildCollectionPoints},
		{snapshot.EntityFarmers, o.buildFarmers},
		{snapshot.EntityFarmerPerformance, o.buildFarmerPerformance},
		{snapshot.EntityWeatherObservations, o.buildWeatherObservations},
		{snapshot.EntityDocuments, o.buildDocuments},
		{snapshot.EntityCostEvents, o.buildCostEvents},
	}

	runID := obscontext.NewRunID()
	ctx = obscontext.WithRunID(ctx, runID)
	log := obslogger.WithRun(o.log, runID)

	log.Info("generating dataset",
		zap.String("profile", prof.Name),
		zap.Int64("seed", seed))

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		added, err := stage.run(ctx, b, ds)
		if err != nil {
			return nil, fmt.Errorf("generate %s: %w", stage.entity, err)
		}
		log.Debug("stage complete",
			zap.String("entity", stage.entity.String()),
			zap.Int("records", added))
	}

	log.Info("dataset generated", zap.Int("total_records", ds.TotalRecords()))
	return ds, nil
}

func (o *Orchestrator) buildRegions(_ context.Context, b *Builder, ds *snapshot.Dataset) (int, error) {
	for i := 0; i < b.prof.Counts.Regions; i++ {
		ds.Regions = append(ds.Regions, b.BuildRegion())
	}
	return len(ds.Regions), nil
}

func (o *Orchestrator) buildFactories(_ context.Context, b *Builder, ds *snapshot.Dataset) (int, error) {
	for i := 0; i < b.prof.Counts.Factories; i++ {
		factory, err := b.BuildFactory()
		if err != nil {
			return 0, err
		}
		ds.Factories = append(ds.Factories, factory)
	}
	return len(ds.Factories), nil
}

func (o *Orchestrator) buildCollectionPoints(_ context.Context, b *Builder, ds *snapshot.Dataset) (int, error) {
	for i := 0; i < b.prof.Counts.CollectionPoints; i++ {
		cp, err := b.BuildCollectionPoint()
		if err != nil {
			return 0, err
		}
		ds.CollectionPoints = append(ds.CollectionPoints, cp)
	}
	return len(ds.CollectionPoints), nil
}

// buildFarmers also wires collection point membership, which can only
// happen once farmer codes exist.
func (o *Orchestrator) buildFarmers(_ context.Context, b *Builder, ds *snapshot.Dataset) (int, error) {
	farmers, err := b.BuildFarmers(b.prof.Counts.Farmers)
	if err != nil {
		return 0, err
	}
	ds.Farmers = farmers
	b.AssignFarmers(ds.CollectionPoints, ds.Factories, ds.Farmers)
	return len(ds.Farmers), nil
}

func (o *Orchestrator) buildFarmerPerformance(ctx context.Context, b *Builder, ds *snapshot.Dataset) (int, error) {
	months := b.prof.Counts.PerformanceMonths
	for _, farmer := range ds.Farmers {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		ds.FarmerPerformance = append(ds.FarmerPerformance, b.BuildPerformanceSeries(farmer, months)...)
	}
	return len(ds.FarmerPerformance), nil
}

func (o *Orchestrator) buildWeatherObservations(_ context.Context, b *Builder, ds *snapshot.Dataset) (int, error) {
	days := b.prof.Counts.WeatherDays
	for _, region := range ds.Regions {
		ds.WeatherObservations = append(ds.WeatherObservations, b.BuildWeatherSeries(region, days)...)
	}
	return len(ds.WeatherObservations), nil
}

func (o *Orchestrator) buildDocuments(ctx context.Context, b *Builder, ds *snapshot.Dataset) (int, error) {
	per := b.prof.Counts.DocumentsPerFarmer
	for _, farmer := range ds.Farmers {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		code := farmer.Code
		for i := 0; i < per; i++ {
			doc, err := b.BuildDocument(func(d *documentdomain.Document) {
				d.FarmerCode = code
			})
			if err != nil {
				return 0, err
			}
			ds.Documents = append(ds.Documents, doc)
		}
	}
	return len(ds.Documents), nil
}

func (o *Orchestrator) buildCostEvents(ctx context.Context, b *Builder, ds *snapshot.Dataset) (int, error) {
	for i := 0; i < b.prof.Counts.CostEvents; i++ {
		if i%500 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		ds.CostEvents = append(ds.CostEvents, b.BuildCostEvent())
	}
	return len(ds.CostEvents), nil
}
