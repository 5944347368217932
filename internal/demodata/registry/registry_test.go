package registry

import (
	"testing"

	"github.com/farmerpower/platform/internal/demodata/snapshot"
	"github.com/stretchr/testify/assert"
)

func TestRegisterAndLookup(t *testing.T) {
	reg := New()

	reg.Register(snapshot.EntityRegions, "nyeri-highlands")
	reg.Register(snapshot.EntityRegions, "kericho-plateau")
	reg.Register(snapshot.EntityFarmers, "wanjiku-kamau")

	assert.True(t, reg.Has(snapshot.EntityRegions, "nyeri-highlands"))
	assert.False(t, reg.Has(snapshot.EntityRegions, "wanjiku-kamau"))
	assert.Equal(t, 2, reg.Count(snapshot.EntityRegions))
	assert.Equal(t, 1, reg.Count(snapshot.EntityFarmers))
	assert.Equal(t, 0, reg.Count(snapshot.EntityFactories))
}

func TestAllIDsIsSorted(t *testing.T) {
	reg := New()

	reg.Register(snapshot.EntityFarmers, "otieno-odhiambo")
	reg.Register(snapshot.EntityFarmers, "chebet-langat")
	reg.Register(snapshot.EntityFarmers, "kipchoge-rotich")

	assert.Equal(t,
		[]string{"chebet-langat", "kipchoge-rotich", "otieno-odhiambo"},
		reg.AllIDs(snapshot.EntityFarmers),
	)
}

func TestRegisterIsIdempotent(t *testing.T) {
	reg := New()

	reg.Register(snapshot.EntityFactories, "gathuthi-tea-factory")
	reg.Register(snapshot.EntityFactories, "gathuthi-tea-factory")

	assert.Equal(t, 1, reg.Count(snapshot.EntityFactories))
}

func TestReset(t *testing.T) {
	reg := New()

	reg.Register(snapshot.EntityRegions, "nandi-hills")
	reg.Register(snapshot.EntityFarmers, "mutua-musyoka")
	reg.Reset()

	assert.Equal(t, 0, reg.Count(snapshot.EntityRegions))
	assert.Equal(t, 0, reg.Count(snapshot.EntityFarmers))
	assert.Empty(t, reg.AllIDs(snapshot.EntityRegions))
}
