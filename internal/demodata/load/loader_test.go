package load

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	costsdomain "github.com/farmerpower/platform/internal/costs/domain"
	"github.com/farmerpower/platform/internal/demodata/generate"
	"github.com/farmerpower/platform/internal/demodata/profile"
	"github.com/farmerpower/platform/internal/demodata/registry"
	"github.com/farmerpower/platform/internal/demodata/snapshot"
	documentdomain "github.com/farmerpower/platform/internal/document/domain"
	"github.com/farmerpower/platform/internal/migration"
	plantationdomain "github.com/farmerpower/platform/internal/plantation/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestLoader(t *testing.T, name string) (*Loader, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewLoader(db, zap.NewNop(), node, nil), db
}

func smallDataset(t *testing.T) *snapshot.Dataset {
	t.Helper()

	prof := profile.Profile{
		Name: "loader-test",
		DateRange: profile.DateRange{
			From: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC),
		},
		Counts: profile.Counts{
			Regions:            1,
			Factories:          1,
			CollectionPoints:   1,
			Farmers:            3,
			PerformanceMonths:  2,
			WeatherDays:        3,
			DocumentsPerFarmer: 1,
			CostEvents:         5,
		},
		Scenarios: []profile.ScenarioWeight{{Name: profile.ScenarioSteady, Weight: 1}},
	}

	ds, err := generate.NewOrchestrator(zap.NewNop()).
		Generate(context.Background(), prof, 42, registry.New())
	require.NoError(t, err)
	return ds
}

func TestLoadInsertsAllRecords(t *testing.T) {
	loader, db := newTestLoader(t, "load-insert")
	ds := smallDataset(t)

	report, err := loader.Load(context.Background(), ds)
	require.NoError(t, err)

	inserted, updated, skipped, failed := report.Totals()
	assert.Equal(t, ds.TotalRecords(), inserted)
	assert.Zero(t, updated)
	assert.Zero(t, skipped)
	assert.Zero(t, failed)
	assert.False(t, report.HasFailures())
	assert.Len(t, report.Files, 8)

	var farmers, events int64
	require.NoError(t, db.Model(&plantationdomain.Farmer{}).Count(&farmers).Error)
	require.NoError(t, db.Model(&costsdomain.CostEvent{}).Count(&events).Error)
	assert.EqualValues(t, 3, farmers)
	assert.EqualValues(t, 5, events)
}

func TestReloadConvergesWithoutDuplicates(t *testing.T) {
	loader, db := newTestLoader(t, "load-reload")
	ds := smallDataset(t)

	_, err := loader.Load(context.Background(), ds)
	require.NoError(t, err)

	report, err := loader.Load(context.Background(), ds)
	require.NoError(t, err)

	inserted, updated, _, failed := report.Totals()
	assert.Zero(t, inserted)
	assert.Equal(t, ds.TotalRecords(), updated)
	assert.Zero(t, failed)

	var farmers, perf, events int64
	require.NoError(t, db.Table("farmers").Count(&farmers).Error)
	require.NoError(t, db.Table("farmer_performance").Count(&perf).Error)
	require.NoError(t, db.Table("cost_events").Count(&events).Error)
	assert.EqualValues(t, len(ds.Farmers), farmers)
	assert.EqualValues(t, len(ds.FarmerPerformance), perf)
	assert.EqualValues(t, len(ds.CostEvents), events)
}

func TestLoadAppliesChangedValues(t *testing.T) {
	loader, db := newTestLoader(t, "load-update")
	ds := smallDataset(t)

	_, err := loader.Load(context.Background(), ds)
	require.NoError(t, err)

	ds.Farmers[0].FullName = "Renamed Farmer"
	ds.CostEvents[0].AmountUSD = 9.99

	_, err = loader.Load(context.Background(), ds)
	require.NoError(t, err)

	var farmer plantationdomain.Farmer
	require.NoError(t, db.Where("code = ?", ds.Farmers[0].Code).First(&farmer).Error)
	assert.Equal(t, "Renamed Farmer", farmer.FullName)

	var event costsdomain.CostEvent
	require.NoError(t, db.Where("request_id = ?", ds.CostEvents[0].RequestID).First(&event).Error)
	assert.InDelta(t, 9.99, event.AmountUSD, 1e-9)
}

func TestLoadHaltsAfterFailingFile(t *testing.T) {
	loader, db := newTestLoader(t, "load-halt")
	ds := smallDataset(t)

	require.NoError(t, db.Migrator().DropTable(&documentdomain.Document{}))

	report, err := loader.Load(context.Background(), ds)
	require.ErrorIs(t, err, ErrLoadFailed)

	// everything before documents loaded, nothing after
	require.Len(t, report.Files, 7)
	last := report.Files[len(report.Files)-1]
	assert.Equal(t, snapshot.EntityDocuments, last.Entity)
	assert.Equal(t, len(ds.Documents), last.Failed)
	assert.Len(t, last.Errors, len(ds.Documents))

	var events int64
	require.NoError(t, db.Table("cost_events").Count(&events).Error)
	assert.Zero(t, events)

	// earlier files stay applied; a re-run converges once the table is back
	var farmers int64
	require.NoError(t, db.Table("farmers").Count(&farmers).Error)
	assert.EqualValues(t, len(ds.Farmers), farmers)

	require.NoError(t, db.Migrator().CreateTable(&documentdomain.Document{}))
	report, err = loader.Load(context.Background(), ds)
	require.NoError(t, err)
	_, updated, _, _ := report.Totals()
	assert.Equal(t, ds.TotalRecords()-len(ds.Documents)-len(ds.CostEvents), updated)
}
