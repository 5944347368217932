// Package costwatch keeps platform cost accounting fresh: it recomputes the
// recent daily rollups from raw cost events and raises an alert when today's
// spend crosses the configured threshold. One worker goroutine ticks RunOnce;
// an optional Redis lock keeps multiple replicas from working the same tick.
package costwatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farmerpower/platform/internal/cloudmetrics"
	"github.com/farmerpower/platform/internal/clock"
	costsdomain "github.com/farmerpower/platform/internal/costs/domain"
	obsmetrics "github.com/farmerpower/platform/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_worker_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	Costs      costsdomain.Service
	Clock      clock.Clock
	Notifier   Notifier
	Locker     *Locker                    `optional:"true"`
	Cloud      *cloudmetrics.CloudMetrics `optional:"true"`
	ObsMetrics *obsmetrics.Metrics        `optional:"true"`
	Config     Config                     `optional:"true"`
}

type Worker struct {
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	costs      costsdomain.Service
	notifier   Notifier
	locker     *Locker
	cloud      *cloudmetrics.CloudMetrics
	obsMetrics *obsmetrics.Metrics

	// lastAlertDay suppresses repeat notifications for a day already
	// alerted by this process; the threshold check itself runs every tick.
	lastAlertDay time.Time
}

func New(p Params) (*Worker, error) {
	if p.Log == nil || p.Costs == nil || p.Clock == nil || p.Notifier == nil {
		return nil, ErrInvalidConfig
	}
	return &Worker{
		log:        p.Log.Named("costwatch").With(zap.String("component", "costwatch")),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		costs:      p.Costs,
		notifier:   p.Notifier,
		locker:     p.Locker,
		cloud:      p.Cloud,
		obsMetrics: p.ObsMetrics,
	}, nil
}

func (w *Worker) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := w.ensureJobRun(ctx, name)
	if owner {
		w.logJobStart(ctx, run)
	}
	workerMetrics := obsmetrics.Worker()
	workerMetrics.IncJobRun(name)

	err := fn(ctx)
	workerMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		w.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// Deadline and cancellation are soft: warn, let the next tick catch up.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		workerMetrics.IncJobTimeout(name)
	}
	workerMetrics.IncJobError(name, err)
	if isTimeout {
		w.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes every job in order. With a locker configured, a run
// already claimed by another replica is skipped without error.
func (w *Worker) RunOnce(parent context.Context) error {
	release, ok, err := w.acquireRunLock(parent)
	if err != nil {
		obsmetrics.Worker().IncLockAcquire("run", obsmetrics.LockOutcomeError)
		w.log.Warn("run lock unavailable, skipping tick", zap.Error(err))
		return nil
	}
	if !ok {
		obsmetrics.Worker().IncLockAcquire("run", obsmetrics.LockOutcomeHeld)
		w.log.Debug("run lock held by another replica, skipping tick")
		return nil
	}
	if release != nil {
		obsmetrics.Worker().IncLockAcquire("run", obsmetrics.LockOutcomeAcquired)
		defer release()
	}

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{"cost_rollup", w.RollupJob},
		{"spend_alert", w.SpendAlertJob},
	}

	var runErr error
	for _, job := range jobs {
		runErr = errors.Join(runErr, w.runJob(parent, job.Name, w.cfg.JobTimeout, job.Run))
	}
	return runErr
}

// acquireRunLock claims the replica lock. Without a locker the run proceeds
// unlocked and release is nil.
func (w *Worker) acquireRunLock(ctx context.Context) (func(), bool, error) {
	if w.locker == nil {
		return nil, true, nil
	}

	token, ok, err := w.locker.TryLock(ctx, w.cfg.LockKey, w.cfg.LockTTL)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// Release on a fresh context so a cancelled run still frees the lock.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.locker.Release(releaseCtx, w.cfg.LockKey, token); err != nil {
			w.log.Warn("run lock release failed", zap.Error(err))
		}
	}
	return release, true, nil
}

// RunForever ticks RunOnce until the context is cancelled.
func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(w.cfg.RunInterval)
	workerMetrics := obsmetrics.Worker()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			workerMetrics.ObserveRunLoopLag(runLag)
		}
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("worker run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(w.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RollupJob recomputes the rollup rows for the recent window, oldest day
// first so today's totals land last. Failed days are joined and reported;
// remaining days still run.
func (w *Worker) RollupJob(ctx context.Context) error {
	ctx, run, owner := w.ensureJobRun(ctx, "cost_rollup")
	if owner {
		w.logJobStart(ctx, run)
		defer w.logJobFinish(ctx, run)
	}

	today := w.clock.Now().UTC().Truncate(24 * time.Hour)
	workerMetrics := obsmetrics.Worker()
	var jobErr error

	for i := w.cfg.RollupWindowDays - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			jobErr = errors.Join(jobErr, ctx.Err())
			break
		}

		day := today.AddDate(0, 0, -i)
		rows, err := w.costs.RecomputeDay(ctx, day)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			w.logJobError(ctx, run, "rollup.day.failed", "cost_rollup", err,
				zap.Time("day", day),
			)
			continue
		}
		run.AddProcessed(rows)
		workerMetrics.AddBatchProcessed("cost_rollup", "rollup_rows", rows)
	}

	outcome := "ok"
	if jobErr != nil {
		outcome = "error"
	}
	w.cloud.IncRollupRun(outcome)

	return jobErr
}

// SpendAlertJob compares today's rollup total against the configured
// threshold and posts one notification per over-threshold day.
func (w *Worker) SpendAlertJob(ctx context.Context) error {
	ctx, run, owner := w.ensureJobRun(ctx, "spend_alert")
	if owner {
		w.logJobStart(ctx, run)
		defer w.logJobFinish(ctx, run)
	}

	spend, err := w.costs.DailySpendTotal(ctx, w.clock.Now())
	if err != nil {
		w.logJobError(ctx, run, "spend.total.failed", "spend_alert", err)
		return err
	}
	w.cloud.SetDailySpendUSD(spend.TotalAmountUSD)

	threshold := w.cfg.DailySpendAlertUSD
	if threshold <= 0 || spend.TotalAmountUSD <= threshold {
		return nil
	}
	if w.lastAlertDay.Equal(spend.Day) {
		return nil
	}

	alert := SpendAlert{
		Day:            spend.Day,
		TotalAmountUSD: spend.TotalAmountUSD,
		ThresholdUSD:   threshold,
	}
	if err := w.notifier.Notify(ctx, alert); err != nil {
		w.logJobError(ctx, run, "spend.alert.failed", "spend_alert", err,
			zap.Time("day", spend.Day),
			zap.Float64("total_amount_usd", spend.TotalAmountUSD),
		)
		return err
	}

	w.lastAlertDay = spend.Day
	run.AddProcessed(1)
	w.obsMetrics.RecordSpendAlert(ctx, w.notifier.Channel())
	w.logger(ctx).Warn("daily spend over threshold",
		zap.Time("day", spend.Day),
		zap.Float64("total_amount_usd", spend.TotalAmountUSD),
		zap.Float64("threshold_usd", threshold),
	)
	return nil
}
