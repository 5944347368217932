package config

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// RateCard maps a cost_type to its USD price per unit. Ingest uses it to
// derive amount_usd when a producer reports quantity only.
type RateCard struct {
	USDPerUnit map[string]float64 `mapstructure:"usdPerUnit"`
}

func DefaultRateCard() RateCard {
	return RateCard{
		USDPerUnit: map[string]float64{
			"llm":       0.000002, // per token
			"document":  0.01,     // per page
			"embedding": 0.0001,   // per query
			"sms":       0.0075,   // per message
		},
	}
}

func (rc RateCard) Rate(costType string) (float64, bool) {
	rate, ok := rc.USDPerUnit[strings.ToLower(strings.TrimSpace(costType))]
	return rate, ok
}

type RateCardHolder struct {
	current atomic.Value // holds RateCard
}

func NewRateCardHolder() (*RateCardHolder, error) {
	v := viper.New()

	v.SetConfigName("rates")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/farmerpower/config")
	v.AddConfigPath("/etc/farmerpower")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultRateCard()
		v.SetDefault("rates.usdPerUnit", defaults.USDPerUnit)
	}

	var card RateCard
	if err := v.UnmarshalKey("rates", &card); err != nil {
		return nil, err
	}
	if len(card.USDPerUnit) == 0 {
		card = DefaultRateCard()
	}
	if err := validateRateCard(card); err != nil {
		return nil, err
	}

	holder := &RateCardHolder{}
	holder.current.Store(card)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated RateCard
		if err := v.UnmarshalKey("rates", &updated); err != nil {
			log.Printf("[rate-card] reload failed: %v", err)
			return
		}
		if err := validateRateCard(updated); err != nil {
			log.Printf("[rate-card] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[rate-card] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *RateCardHolder) Get() RateCard {
	return h.current.Load().(RateCard)
}

func validateRateCard(card RateCard) error {
	if len(card.USDPerUnit) == 0 {
		return errors.New("rates.usdPerUnit cannot be empty")
	}
	for costType, rate := range card.USDPerUnit {
		if strings.TrimSpace(costType) == "" {
			return errors.New("rates.usdPerUnit has an empty cost type")
		}
		if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
			return fmt.Errorf("rate for %q must be a non-negative number", costType)
		}
	}
	return nil
}
