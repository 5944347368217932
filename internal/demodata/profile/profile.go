// Package profile loads declarative generation profiles: how much synthetic
// data to produce, over which date range, with which scenario mix. Built-in
// profiles ship embedded; a profile directory can override by name.
package profile

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

//go:embed profiles/*.yml
var builtinProfiles embed.FS

const builtinDir = "profiles"

// Scenario archetypes shape how generated farmers and their performance
// history vary within one batch.
const (
	ScenarioTopPerformer = "top_performer"
	ScenarioSteady       = "steady"
	ScenarioDeclining    = "declining"
	ScenarioErratic      = "erratic"
)

var (
	ErrUnknownProfile   = errors.New("unknown_profile")
	ErrInvalidDateRange = errors.New("invalid_date_range")
	ErrInvalidCounts    = errors.New("invalid_counts")
	ErrInvalidScenarios = errors.New("invalid_scenario_weights")
)

type Profile struct {
	Name        string           `mapstructure:"name"`
	Description string           `mapstructure:"description"`
	Seed        int64            `mapstructure:"seed"`
	DateRange   DateRange        `mapstructure:"date_range"`
	Counts      Counts           `mapstructure:"counts"`
	Scenarios   []ScenarioWeight `mapstructure:"scenarios"`
}

type DateRange struct {
	From time.Time `mapstructure:"from"`
	To   time.Time `mapstructure:"to"`
}

// Days returns the number of calendar days the range spans, inclusive.
func (r DateRange) Days() int {
	return int(r.To.Sub(r.From).Hours()/24) + 1
}

type Counts struct {
	Regions            int `mapstructure:"regions"`
	Factories          int `mapstructure:"factories"`
	CollectionPoints   int `mapstructure:"collection_points"`
	Farmers            int `mapstructure:"farmers"`
	PerformanceMonths  int `mapstructure:"performance_months"`
	WeatherDays        int `mapstructure:"weather_days"`
	DocumentsPerFarmer int `mapstructure:"documents_per_farmer"`
	CostEvents         int `mapstructure:"cost_events"`
}

type ScenarioWeight struct {
	Name   string  `mapstructure:"name"`
	Weight float64 `mapstructure:"weight"`
}

// Load resolves a profile by name. When dir is non-empty a matching file
// there wins over the embedded profile of the same name.
func Load(name, dir string) (Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Profile{}, fmt.Errorf("%w: empty name", ErrUnknownProfile)
	}

	data, err := resolve(name, dir)
	if err != nil {
		return Profile{}, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return Profile{}, fmt.Errorf("parse profile %q: %w", name, err)
	}

	var p Profile
	decodeDates := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeHookFunc("2006-01-02"),
	))
	if err := v.Unmarshal(&p, decodeDates); err != nil {
		return Profile{}, fmt.Errorf("decode profile %q: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}

	if err := p.Validate(); err != nil {
		return Profile{}, fmt.Errorf("profile %q: %w", name, err)
	}
	return p, nil
}

func resolve(name, dir string) ([]byte, error) {
	if dir != "" {
		for _, ext := range []string{".yml", ".yaml"} {
			data, err := os.ReadFile(filepath.Join(dir, name+ext))
			if err == nil {
				return data, nil
			}
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read profile %q: %w", name, err)
			}
		}
	}

	data, err := builtinProfiles.ReadFile(builtinDir + "/" + name + ".yml")
	if err == nil {
		return data, nil
	}

	known, namesErr := Names(dir)
	if namesErr != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownProfile, name, strings.Join(known, ", "))
}

// Names lists the available profile names, embedded plus dir overrides.
func Names(dir string) ([]string, error) {
	seen := make(map[string]bool)

	entries, err := fs.Glob(builtinProfiles, builtinDir+"/*.yml")
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		seen[strings.TrimSuffix(filepath.Base(entry), ".yml")] = true
	}

	if dir != "" {
		for _, pattern := range []string{"*.yml", "*.yaml"} {
			matches, err := filepath.Glob(filepath.Join(dir, pattern))
			if err != nil {
				return nil, err
			}
			for _, match := range matches {
				base := filepath.Base(match)
				seen[strings.TrimSuffix(base, filepath.Ext(base))] = true
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Validate checks the profile is internally consistent before generation.
func (p Profile) Validate() error {
	if p.DateRange.From.IsZero() || p.DateRange.To.IsZero() {
		return fmt.Errorf("%w: from and to are required", ErrInvalidDateRange)
	}
	if p.DateRange.To.Before(p.DateRange.From) {
		return fmt.Errorf("%w: to precedes from", ErrInvalidDateRange)
	}

	c := p.Counts
	for _, n := range []int{
		c.Regions, c.Factories, c.CollectionPoints, c.Farmers,
		c.PerformanceMonths, c.WeatherDays, c.DocumentsPerFarmer, c.CostEvents,
	} {
		if n < 0 {
			return fmt.Errorf("%w: counts must be non-negative", ErrInvalidCounts)
		}
	}
	if c.Factories > 0 && c.Regions == 0 {
		return fmt.Errorf("%w: factories need at least one region", ErrInvalidCounts)
	}
	if c.Farmers > 0 && c.Regions == 0 {
		return fmt.Errorf("%w: farmers need at least one region", ErrInvalidCounts)
	}
	if c.CollectionPoints > 0 && c.Factories == 0 {
		return fmt.Errorf("%w: collection points need at least one factory", ErrInvalidCounts)
	}

	if len(p.Scenarios) == 0 {
		return fmt.Errorf("%w: at least one scenario is required", ErrInvalidScenarios)
	}
	sum := 0.0
	for _, s := range p.Scenarios {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("%w: scenario name is required", ErrInvalidScenarios)
		}
		if s.Weight < 0 || math.IsNaN(s.Weight) || math.IsInf(s.Weight, 0) {
			return fmt.Errorf("%w: weight for %q must be non-negative", ErrInvalidScenarios, s.Name)
		}
		sum += s.Weight
	}
	if sum <= 0 || sum > 1+1e-9 {
		return fmt.Errorf("%w: weights must sum to at most 1, got %.3f", ErrInvalidScenarios, sum)
	}

	return nil
}

// ScenarioCounts distributes n records across the scenario list by weight:
// floor of weight*n per scenario, remainder to the first-listed scenario.
func (p Profile) ScenarioCounts(n int) map[string]int {
	counts := make(map[string]int, len(p.Scenarios))
	assigned := 0
	for _, s := range p.Scenarios {
		c := int(math.Floor(s.Weight * float64(n)))
		counts[s.Name] = c
		assigned += c
	}
	if len(p.Scenarios) > 0 && n > assigned {
		counts[p.Scenarios[0].Name] += n - assigned
	}
	return counts
}
