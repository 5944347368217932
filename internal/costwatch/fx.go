package costwatch

import (
	"context"
	"strings"

	"github.com/farmerpower/platform/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("costwatch",
	fx.Provide(ProvideConfig),
	fx.Provide(ProvideLocker),
	fx.Provide(NewNotifier),
	fx.Provide(New),
	fx.Invoke(RunWorker),
)

// ProvideConfig maps the env-driven worker settings onto the worker config.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:        cfg.Worker.RunInterval,
		RollupWindowDays:   cfg.Worker.RollupWindowDays,
		DailySpendAlertUSD: cfg.Worker.DailySpendAlertUSD,
		LockTTL:            cfg.Worker.LockTTL,
	}.withDefaults()
}

// ProvideLocker builds the replica lock when a Redis address is configured.
// Returns nil otherwise; the worker then runs unlocked.
func ProvideLocker(cfg config.Config) *Locker {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
	})
	return NewLocker(client)
}

func RunWorker(lc fx.Lifecycle, w *Worker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, cancel := context.WithCancel(context.Background())

			go w.RunForever(runCtx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
