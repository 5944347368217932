package costwatch

import (
	"context"
	"time"

	obscontext "github.com/farmerpower/platform/internal/observability/context"
	obslogger "github.com/farmerpower/platform/internal/observability/logger"
	obsmetrics "github.com/farmerpower/platform/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun tracks one job execution: run ID, processed and error counts.
// It rides the context so nested helpers update the owning run.
type jobRun struct {
	job            string
	runID          string
	startedAt      time.Time
	processedCount int
	errorCount     int
}

type jobRunKey struct{}

func (r *jobRun) AddProcessed(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.processedCount += count
}

func (r *jobRun) IncError() {
	if r == nil {
		return
	}
	r.errorCount++
}

func (w *Worker) ensureJobRun(ctx context.Context, job string) (context.Context, *jobRun, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing := jobRunFromContext(ctx); existing != nil {
		return ctx, existing, false
	}
	run := &jobRun{
		job:       job,
		runID:     obscontext.NewRunID(),
		startedAt: time.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithRunID(ctx, run.runID)
	ctx = obscontext.WithJob(ctx, job)
	ctx = obscontext.WithActor(ctx, "worker", "costwatch")
	return ctx, run, true
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if ctx == nil {
		return nil
	}
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok {
		return run
	}
	return nil
}

func (w *Worker) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, w.log)
}

func (w *Worker) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	w.logger(ctx).Info("job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
	)
}

func (w *Worker) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", time.Since(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processedCount),
		zap.Int("error_count", run.errorCount),
	}
	log := w.logger(ctx)
	if run.errorCount > 0 {
		log.Warn("job.finish", fields...)
		return
	}
	log.Info("job.finish", fields...)
}

func (w *Worker) logJobError(ctx context.Context, run *jobRun, msg string, job string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	if run != nil {
		run.IncError()
	}
	baseFields := []zap.Field{
		zap.String("job", job),
		zap.String("error_type", obsmetrics.ClassifyJobErrorType(err)),
		zap.String("error", err.Error()),
		zap.Bool("retryable", obsmetrics.IsJobErrorRetryable(err)),
	}
	w.logger(ctx).Error(msg, append(baseFields, fields...)...)
}
