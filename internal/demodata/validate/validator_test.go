package validate

import (
	"encoding/json"
	"testing"
	"time"

	agronomydomain "github.com/farmerpower/platform/internal/agronomy/domain"
	costsdomain "github.com/farmerpower/platform/internal/costs/domain"
	"github.com/farmerpower/platform/internal/demodata/snapshot"
	documentdomain "github.com/farmerpower/platform/internal/document/domain"
	plantationdomain "github.com/farmerpower/platform/internal/plantation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func validDataset() *snapshot.Dataset {
	conf := 0.91
	return &snapshot.Dataset{
		Regions: []plantationdomain.Region{{
			Code:                "nyeri-highlands",
			Name:                "Nyeri Highlands",
			CountryCode:         "KE",
			CentroidLat:         -0.42,
			CentroidLng:         36.95,
			AltitudeBand:        "highland",
			SoilType:            "volcanic-loam",
			AvgAnnualRainfallMM: 1900,
		}},
		Factories: []plantationdomain.Factory{{
			Code:             "gathuthi-tea-factory",
			RegionCode:       "nyeri-highlands",
			Name:             "Gathuthi Tea Factory",
			CapacityKgPerDay: 24000,
			CommissionedOn:   date(1998, 5, 1),
			Status:           "active",
		}},
		CollectionPoints: []plantationdomain.CollectionPoint{{
			Code:        "gatitu-collection-point",
			FactoryCode: "gathuthi-tea-factory",
			Name:        "Gatitu Collection Point",
			Latitude:    -0.41,
			Longitude:   36.93,
			FarmerCodes: datatypes.JSONSlice[string]{"wanjiku-kamau"},
		}},
		Farmers: []plantationdomain.Farmer{{
			Code:             "wanjiku-kamau",
			RegionCode:       "nyeri-highlands",
			FullName:         "Wanjiku Kamau",
			Phone:            "+254712345678",
			FarmSizeHectares: 1.2,
			TeaVariety:       "seedling",
			EnrolledOn:       date(2021, 3, 15),
			Scenario:         "steady",
		}},
		FarmerPerformance: []agronomydomain.FarmerPerformance{{
			FarmerCode:      "wanjiku-kamau",
			PeriodMonth:     "2025-03",
			DeliveriesCount: 14,
			TotalWeightKg:   420.5,
			AvgQualityScore: 83.1,
			RejectRatePct:   2.4,
			EarningsUSD:     146.2,
		}},
		WeatherObservations: []agronomydomain.WeatherObservation{{
			RegionCode:  "nyeri-highlands",
			ObservedOn:  date(2025, 3, 10),
			TempMinC:    11.2,
			TempMaxC:    22.8,
			RainfallMM:  4.6,
			HumidityPct: 71,
		}},
		Documents: []documentdomain.Document{{
			Code:                 "doc-0a1b2c3d",
			FarmerCode:           "wanjiku-kamau",
			DocType:              "delivery_receipt",
			StoragePath:          "s3://farmerpower-documents/wanjiku-kamau/doc-0a1b2c3d.pdf",
			Pages:                1,
			UploadedAt:           time.Date(2025, 3, 12, 9, 30, 0, 0, time.UTC),
			ExtractionStatus:     "extracted",
			ExtractionConfidence: &conf,
		}},
		CostEvents: []costsdomain.CostEvent{{
			RequestID:  "req-00000000000000aa",
			OccurredAt: time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC),
			Service:    "doc-intake",
			CostType:   "document",
			Unit:       "pages",
			Quantity:   1,
			AmountUSD:  0.01,
		}},
	}
}

// rawFromDataset round-trips through the snapshot file format, the same
// path the CLI takes.
func rawFromDataset(t *testing.T, ds *snapshot.Dataset) *snapshot.RawDataset {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, ds.WriteFiles(dir))
	raw, err := snapshot.ReadFiles(dir)
	require.NoError(t, err)
	return raw
}

func TestValidateCleanBatch(t *testing.T) {
	v := NewValidator(zap.NewNop())

	res := v.Validate(rawFromDataset(t, validDataset()), snapshot.RefSet{})

	require.NoError(t, res.Err())
	assert.True(t, res.OK())
	assert.Empty(t, res.Issues())
	assert.Equal(t, 8, res.Dataset.TotalRecords())
}

func TestSchemaPhaseReportsEveryOffender(t *testing.T) {
	ds := validDataset()
	ds.Regions[0].CountryCode = "XX"
	ds.Farmers[0].FarmSizeHectares = 0
	ds.CostEvents = append(ds.CostEvents,
		costsdomain.CostEvent{
			RequestID:  "req-00000000000000bb",
			OccurredAt: time.Date(2025, 3, 13, 8, 0, 0, 0, time.UTC),
			Service:    "alerts",
			CostType:   "sms",
			Unit:       "tokens",
			Quantity:   2,
			AmountUSD:  0.015,
		},
		costsdomain.CostEvent{
			RequestID:  "req-00000000000000aa",
			OccurredAt: time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC),
			Service:    "doc-intake",
			CostType:   "document",
			Unit:       "pages",
			Quantity:   3,
			AmountUSD:  0.03,
		},
	)

	v := NewValidator(zap.NewNop())
	res := v.Validate(rawFromDataset(t, ds), snapshot.RefSet{})

	require.Error(t, res.Err())
	require.ErrorIs(t, res.Err(), ErrSchemaValidation)

	assert.Len(t, res.SchemaIssues, 4)
	assert.Contains(t, res.SchemaIssues, Issue{
		Entity: snapshot.EntityRegions, Key: "nyeri-highlands",
		Field: "country_code", Reason: `unknown country code "XX"`,
	})
	assert.Contains(t, res.SchemaIssues, Issue{
		Entity: snapshot.EntityFarmers, Key: "wanjiku-kamau",
		Field: "farm_size_hectares", Reason: "must be > 0",
	})
	assert.Contains(t, res.SchemaIssues, Issue{
		Entity: snapshot.EntityCostEvents, Key: "req-00000000000000bb",
		Field: "unit", Reason: `must be "messages" for cost type "sms"`,
	})
	assert.Contains(t, res.SchemaIssues, Issue{
		Entity: snapshot.EntityCostEvents, Key: "req-00000000000000aa",
		Field: "request_id", Reason: "duplicate within batch",
	})

	// schema failure aborts before the referential phase
	assert.Empty(t, res.ReferentialIssues)
}

func TestReferentialPhaseFindsDanglingRefs(t *testing.T) {
	ds := validDataset()
	ds.Farmers[0].RegionCode = "ghost-region"

	v := NewValidator(zap.NewNop())
	res := v.Validate(rawFromDataset(t, ds), snapshot.RefSet{})

	require.ErrorIs(t, res.Err(), ErrReferentialValidation)
	assert.Empty(t, res.SchemaIssues)

	// the farmer's own code still registers, so dependents do not cascade
	require.Len(t, res.ReferentialIssues, 1)
	assert.Equal(t, Issue{
		Entity: snapshot.EntityFarmers, Key: "wanjiku-kamau",
		Field: "region_code", Reason: `unknown region "ghost-region"`,
	}, res.ReferentialIssues[0])
}

func TestReferentialPhaseUsesExternalRefs(t *testing.T) {
	ds := &snapshot.Dataset{
		Factories: []plantationdomain.Factory{{
			Code:             "momul-tea-factory",
			RegionCode:       "kericho-plateau",
			Name:             "Momul Tea Factory",
			CapacityKgPerDay: 30000,
			CommissionedOn:   date(1982, 1, 1),
			Status:           "active",
		}},
	}

	v := NewValidator(zap.NewNop())

	res := v.Validate(rawFromDataset(t, ds), snapshot.RefSet{})
	require.ErrorIs(t, res.Err(), ErrReferentialValidation)

	external := snapshot.RefSet{}
	external.Add(snapshot.EntityRegions, "kericho-plateau")

	res = v.Validate(rawFromDataset(t, ds), external)
	require.NoError(t, res.Err())
}

func TestUndecodableRecordReportedByIndex(t *testing.T) {
	raw := &snapshot.RawDataset{Records: map[snapshot.EntityType][]json.RawMessage{
		snapshot.EntityRegions: {
			json.RawMessage(`{"code": 123}`),
		},
	}}

	v := NewValidator(zap.NewNop())
	res := v.Validate(raw, snapshot.RefSet{})

	require.Len(t, res.SchemaIssues, 1)
	assert.Equal(t, "#0", res.SchemaIssues[0].Key)
	assert.Contains(t, res.SchemaIssues[0].Reason, "invalid record")
}

func TestIssueString(t *testing.T) {
	issue := Issue{
		Entity: snapshot.EntityFarmers, Key: "wanjiku-kamau",
		Field: "region_code", Reason: `unknown region "ghost-region"`,
	}
	assert.Equal(t, `farmers[wanjiku-kamau]: region_code: unknown region "ghost-region"`, issue.String())
}
