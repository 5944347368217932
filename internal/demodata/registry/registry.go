// Package registry tracks which natural keys have been generated so far,
// keyed by entity type. Builders consult it so cross-references never
// dangle inside a batch.
package registry

import (
	"sort"

	"github.com/farmerpower/platform/internal/demodata/snapshot"
)

// Registry is an explicit object passed through every builder call.
// Generation is sequential within one run; the registry is not safe for
// concurrent use. Independent runs construct fresh registries, Reset exists
// for reuse inside one.
type Registry struct {
	ids map[snapshot.EntityType]map[string]bool
}

func New() *Registry {
	return &Registry{
		ids: make(map[snapshot.EntityType]map[string]bool),
	}
}

// Register records a generated natural key.
func (r *Registry) Register(entity snapshot.EntityType, id string) {
	set, ok := r.ids[entity]
	if !ok {
		set = make(map[string]bool)
		r.ids[entity] = set
	}
	set[id] = true
}

// Has reports whether a key was registered for the entity type.
func (r *Registry) Has(entity snapshot.EntityType, id string) bool {
	return r.ids[entity][id]
}

// AllIDs returns the registered keys for an entity type, sorted so seeded
// runs draw references in a reproducible order.
func (r *Registry) AllIDs(entity snapshot.EntityType) []string {
	set := r.ids[entity]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns how many keys are registered for an entity type.
func (r *Registry) Count(entity snapshot.EntityType) int {
	return len(r.ids[entity])
}

// Reset empties the registry for all entity types.
func (r *Registry) Reset() {
	r.ids = make(map[snapshot.EntityType]map[string]bool)
}
