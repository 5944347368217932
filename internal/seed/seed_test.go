package seed_test

import (
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/farmerpower/platform/internal/migration"
	plantationdomain "github.com/farmerpower/platform/internal/plantation/domain"
	"github.com/farmerpower/platform/internal/seed"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSeedDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(db))
	return db
}

func TestEnsureReferenceDataIsIdempotent(t *testing.T) {
	db := newSeedDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	require.NoError(t, seed.EnsureReferenceData(db, node))

	var countryCount, regionCount, factoryCount int64
	require.NoError(t, db.Table("countries").Count(&countryCount).Error)
	require.NoError(t, db.Table("regions").Count(&regionCount).Error)
	require.NoError(t, db.Table("factories").Count(&factoryCount).Error)
	assert.Equal(t, int64(20), countryCount)
	assert.Equal(t, int64(3), regionCount)
	assert.Equal(t, int64(4), factoryCount)

	require.NoError(t, seed.EnsureReferenceData(db, node))

	var again int64
	require.NoError(t, db.Table("regions").Count(&again).Error)
	assert.Equal(t, regionCount, again)
}

func TestEnsureReferenceDataKeepsEditedRows(t *testing.T) {
	db := newSeedDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	require.NoError(t, seed.EnsureReferenceData(db, node))
	require.NoError(t, db.Model(&plantationdomain.Region{}).
		Where("code = ?", "nyeri-highlands").
		Update("name", "Nyeri Highlands Renamed").Error)

	require.NoError(t, seed.EnsureReferenceData(db, node))

	var region plantationdomain.Region
	require.NoError(t, db.Where("code = ?", "nyeri-highlands").First(&region).Error)
	assert.Equal(t, "Nyeri Highlands Renamed", region.Name)
}

func TestEnsureReferenceDataRequiresHandles(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	assert.Error(t, seed.EnsureReferenceData(nil, node))
	assert.Error(t, seed.EnsureReferenceData(newSeedDB(t), nil))
}

func TestCountryCodeSet(t *testing.T) {
	set := seed.CountryCodeSet()

	assert.True(t, set["KE"])
	assert.True(t, set["DE"])
	assert.False(t, set["XX"])
	assert.Len(t, set, 20)
}
