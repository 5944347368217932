package refdata_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/farmerpower/platform/internal/demodata/refdata"
	"github.com/farmerpower/platform/internal/demodata/snapshot"
	"github.com/farmerpower/platform/internal/demodata/validate"
	"github.com/farmerpower/platform/internal/migration"
	plantationdomain "github.com/farmerpower/platform/internal/plantation/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestBuiltinSnapshotIsSelfConsistent(t *testing.T) {
	raw, err := refdata.Builtin()
	require.NoError(t, err)

	res := validate.NewValidator(zap.NewNop()).Validate(raw, snapshot.RefSet{})
	for _, issue := range res.Issues() {
		t.Errorf("builtin snapshot issue: %s", issue)
	}
	require.NoError(t, res.Err())

	assert.Len(t, res.Dataset.Regions, 3)
	assert.Len(t, res.Dataset.Factories, 4)
	assert.Len(t, res.Dataset.CollectionPoints, 6)
	assert.Len(t, res.Dataset.Farmers, 8)
}

func TestBuiltinRefsCoverReferencableTypes(t *testing.T) {
	refs, err := refdata.BuiltinRefs()
	require.NoError(t, err)

	assert.True(t, refs.Has(snapshot.EntityRegions, "nyeri-highlands"))
	assert.True(t, refs.Has(snapshot.EntityFactories, "momul-tea-factory"))
	assert.True(t, refs.Has(snapshot.EntityFarmers, "wanjiku-kamau"))
	assert.False(t, refs.Has(snapshot.EntityCollectionPoints, "gatitu-collection-point"))
}

func TestRefsFromDBReadsPersistedCodes(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", "refdata-db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(db))

	require.NoError(t, db.Create(&plantationdomain.Region{
		ID:           1,
		Code:         "nyeri-highlands",
		Name:         "Nyeri Highlands",
		CountryCode:  "KE",
		AltitudeBand: "highland",
		SoilType:     "volcanic-loam",
	}).Error)

	refs, err := refdata.RefsFromDB(context.Background(), db)
	require.NoError(t, err)

	assert.True(t, refs.Has(snapshot.EntityRegions, "nyeri-highlands"))
	assert.False(t, refs.Has(snapshot.EntityFactories, "momul-tea-factory"))
}
