package costwatch

import (
	"time"
)

// Config controls worker intervals, the rollup window and the spend alert.
type Config struct {
	RunInterval      time.Duration
	RollupWindowDays int
	JobTimeout       time.Duration

	// DailySpendAlertUSD of zero disables the spend alert.
	DailySpendAlertUSD float64

	LockKey string
	LockTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:      time.Minute,
		RollupWindowDays: 3,
		JobTimeout:       30 * time.Second,
		LockKey:          "farmerpower:costwatch:run",
		LockTTL:          2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.RollupWindowDays <= 0 {
		c.RollupWindowDays = defaults.RollupWindowDays
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockKey == "" {
		c.LockKey = defaults.LockKey
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
