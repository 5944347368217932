package generate

import (
	"context"
	"testing"
	"time"

	"github.com/farmerpower/platform/internal/demodata/profile"
	"github.com/farmerpower/platform/internal/demodata/registry"
	"github.com/farmerpower/platform/internal/demodata/snapshot"
	plantationdomain "github.com/farmerpower/platform/internal/plantation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testProfile() profile.Profile {
	return profile.Profile{
		Name: "test",
		DateRange: profile.DateRange{
			From: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		},
		Counts: profile.Counts{
			Regions:            2,
			Factories:          3,
			CollectionPoints:   4,
			Farmers:            12,
			PerformanceMonths:  3,
			WeatherDays:        7,
			DocumentsPerFarmer: 2,
			CostEvents:         40,
		},
		Scenarios: []profile.ScenarioWeight{
			{Name: profile.ScenarioTopPerformer, Weight: 0.25},
			{Name: profile.ScenarioSteady, Weight: 0.5},
			{Name: profile.ScenarioDeclining, Weight: 0.25},
		},
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	orch := NewOrchestrator(zap.NewNop())
	prof := testProfile()

	first, err := orch.Generate(context.Background(), prof, 42, registry.New())
	require.NoError(t, err)

	second, err := orch.Generate(context.Background(), prof, 42, registry.New())
	require.NoError(t, err)

	assert.Equal(t, first, second)

	third, err := orch.Generate(context.Background(), prof, 43, registry.New())
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestGenerateRespectsProfileCounts(t *testing.T) {
	orch := NewOrchestrator(zap.NewNop())
	prof := testProfile()

	ds, err := orch.Generate(context.Background(), prof, 7, registry.New())
	require.NoError(t, err)

	assert.Len(t, ds.Regions, 2)
	assert.Len(t, ds.Factories, 3)
	assert.Len(t, ds.CollectionPoints, 4)
	assert.Len(t, ds.Farmers, 12)
	assert.Len(t, ds.FarmerPerformance, 12*3)
	assert.Len(t, ds.WeatherObservations, 2*7)
	assert.Len(t, ds.Documents, 12*2)
	assert.Len(t, ds.CostEvents, 40)
}

func TestGenerateProducesNoDanglingReferences(t *testing.T) {
	orch := NewOrchestrator(zap.NewNop())

	ds, err := orch.Generate(context.Background(), testProfile(), 99, registry.New())
	require.NoError(t, err)

	regions := map[string]bool{}
	for _, r := range ds.Regions {
		regions[r.Code] = true
	}
	factories := map[string]bool{}
	for _, f := range ds.Factories {
		assert.Truef(t, regions[f.RegionCode], "factory %s references unknown region %s", f.Code, f.RegionCode)
		factories[f.Code] = true
	}
	farmers := map[string]bool{}
	for _, f := range ds.Farmers {
		assert.Truef(t, regions[f.RegionCode], "farmer %s references unknown region %s", f.Code, f.RegionCode)
		farmers[f.Code] = true
	}
	for _, cp := range ds.CollectionPoints {
		assert.Truef(t, factories[cp.FactoryCode], "collection point %s references unknown factory %s", cp.Code, cp.FactoryCode)
		for _, fc := range cp.FarmerCodes {
			assert.Truef(t, farmers[fc], "collection point %s lists unknown farmer %s", cp.Code, fc)
		}
	}
	for _, p := range ds.FarmerPerformance {
		assert.True(t, farmers[p.FarmerCode])
	}
	for _, w := range ds.WeatherObservations {
		assert.True(t, regions[w.RegionCode])
	}
	for _, d := range ds.Documents {
		assert.True(t, farmers[d.FarmerCode])
		if d.FactoryCode != nil {
			assert.True(t, factories[*d.FactoryCode])
		}
	}
	seen := map[string]bool{}
	for _, e := range ds.CostEvents {
		require.NotEmpty(t, e.RequestID)
		assert.Falsef(t, seen[e.RequestID], "duplicate request id %s", e.RequestID)
		seen[e.RequestID] = true
		if e.FarmerCode != nil {
			assert.True(t, farmers[*e.FarmerCode])
		}
		if e.FactoryCode != nil {
			assert.True(t, factories[*e.FactoryCode])
		}
	}
}

func TestGenerateAssignsEveryFarmerToACollectionPoint(t *testing.T) {
	orch := NewOrchestrator(zap.NewNop())

	ds, err := orch.Generate(context.Background(), testProfile(), 3, registry.New())
	require.NoError(t, err)

	assigned := map[string]bool{}
	for _, cp := range ds.CollectionPoints {
		for _, fc := range cp.FarmerCodes {
			assigned[fc] = true
		}
	}
	for _, f := range ds.Farmers {
		assert.Truef(t, assigned[f.Code], "farmer %s not assigned to any collection point", f.Code)
	}
}

func TestBuildersFailFastOnMissingUpstream(t *testing.T) {
	prof := testProfile()

	tests := []struct {
		name  string
		build func(b *Builder) error
	}{
		{"factory without regions", func(b *Builder) error {
			_, err := b.BuildFactory()
			return err
		}},
		{"collection point without factories", func(b *Builder) error {
			_, err := b.BuildCollectionPoint()
			return err
		}},
		{"farmer without regions", func(b *Builder) error {
			_, err := b.BuildFarmer()
			return err
		}},
		{"document without farmers", func(b *Builder) error {
			_, err := b.BuildDocument()
			return err
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBuilder(1, registry.New(), prof)
			require.ErrorIs(t, tc.build(b), ErrMissingUpstream)
		})
	}
}

func TestBuilderDrawsExternallyRegisteredIDs(t *testing.T) {
	reg := registry.New()
	reg.Register(snapshot.EntityRegions, "nyeri-highlands")

	b := NewBuilder(5, reg, testProfile())

	factory, err := b.BuildFactory()
	require.NoError(t, err)
	assert.Equal(t, "nyeri-highlands", factory.RegionCode)
}

func TestBuildFarmersScenarioDistribution(t *testing.T) {
	prof := testProfile()
	prof.Scenarios = []profile.ScenarioWeight{
		{Name: profile.ScenarioTopPerformer, Weight: 0.25},
		{Name: profile.ScenarioSteady, Weight: 0.25},
		{Name: profile.ScenarioErratic, Weight: 0.5},
	}

	reg := registry.New()
	b := NewBuilder(11, reg, prof)
	b.BuildRegion()

	farmers, err := b.BuildFarmers(10)
	require.NoError(t, err)
	require.Len(t, farmers, 10)

	byScenario := map[string]int{}
	for _, f := range farmers {
		byScenario[f.Scenario]++
	}
	// floors are 2/2/5; the leftover farmer goes to the first-listed scenario
	assert.Equal(t, 3, byScenario[profile.ScenarioTopPerformer])
	assert.Equal(t, 2, byScenario[profile.ScenarioSteady])
	assert.Equal(t, 5, byScenario[profile.ScenarioErratic])
}

func TestOverridesWinOverGeneratedValues(t *testing.T) {
	reg := registry.New()
	b := NewBuilder(2, reg, testProfile())

	region := b.BuildRegion(func(r *plantationdomain.Region) {
		r.Code = "custom-region"
		r.Name = "Custom Region"
	})

	assert.Equal(t, "custom-region", region.Code)
	assert.Equal(t, "Custom Region", region.Name)
	assert.True(t, reg.Has(snapshot.EntityRegions, "custom-region"))
}

func TestGeneratedCodesAreUniquePerEntity(t *testing.T) {
	reg := registry.New()
	b := NewBuilder(8, reg, testProfile())

	seen := map[string]bool{}
	for i := 0; i < 30; i++ {
		region := b.BuildRegion()
		require.Falsef(t, seen[region.Code], "duplicate region code %s", region.Code)
		seen[region.Code] = true
	}
}

func TestPerformanceSeriesShape(t *testing.T) {
	prof := testProfile()
	b := NewBuilder(4, registry.New(), prof)

	farmer := plantationdomain.Farmer{Code: "wanjiku-kamau", Scenario: profile.ScenarioTopPerformer}
	series := b.BuildPerformanceSeries(farmer, 6)
	require.Len(t, series, 6)

	assert.Equal(t, "2025-01", series[0].PeriodMonth)
	assert.Equal(t, "2025-06", series[5].PeriodMonth)

	for i, p := range series {
		assert.Equal(t, "wanjiku-kamau", p.FarmerCode)
		assert.GreaterOrEqual(t, p.AvgQualityScore, 80.0)
		assert.GreaterOrEqual(t, p.EarningsUSD, 0.0)
		if i > 0 {
			assert.Greater(t, p.PeriodMonth, series[i-1].PeriodMonth)
		}
	}
}

func TestWeatherSeriesCoversTrailingDays(t *testing.T) {
	prof := testProfile()
	b := NewBuilder(4, registry.New(), prof)

	region := plantationdomain.Region{Code: "nandi-hills", AltitudeBand: plantationdomain.AltitudeBandHighland}
	series := b.BuildWeatherSeries(region, 5)
	require.Len(t, series, 5)

	for i, w := range series {
		assert.Equal(t, "nandi-hills", w.RegionCode)
		assert.Greater(t, w.TempMaxC, w.TempMinC)
		want := prof.DateRange.To.AddDate(0, 0, -(4 - i))
		assert.Equal(t, want.Format("2006-01-02"), w.ObservedOn.Format("2006-01-02"))
	}
}

func TestCostEventAmountsFollowRateCard(t *testing.T) {
	b := NewBuilder(21, registry.New(), testProfile())

	for i := 0; i < 50; i++ {
		e := b.BuildCostEvent()
		switch e.CostType {
		case "llm":
			assert.InDelta(t, e.Quantity*0.000002, e.AmountUSD, 1e-9)
		case "document":
			assert.InDelta(t, e.Quantity*0.01, e.AmountUSD, 1e-9)
		case "embedding":
			assert.InDelta(t, e.Quantity*0.0001, e.AmountUSD, 1e-9)
		case "sms":
			assert.InDelta(t, e.Quantity*0.0075, e.AmountUSD, 1e-9)
		default:
			t.Fatalf("unexpected cost type %s", e.CostType)
		}
	}
}

func TestGenerateStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orch := NewOrchestrator(zap.NewNop())
	_, err := orch.Generate(ctx, testProfile(), 1, registry.New())
	require.ErrorIs(t, err, context.Canceled)
}
