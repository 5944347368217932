package costwatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/farmerpower/platform/internal/clock"
	costsdomain "github.com/farmerpower/platform/internal/costs/domain"
	obsmetrics "github.com/farmerpower/platform/internal/observability/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

// mockCostsSvc covers the two calls the worker makes; the rest of the costs
// interface is unused here.
type mockCostsSvc struct {
	recomputeDays []time.Time
	recomputeErr  error
	rowsPerDay    int
	spendTotal    float64
	spendErr      error
}

func (m *mockCostsSvc) Ingest(context.Context, costsdomain.CreateCostEventRequest) (*costsdomain.CostEvent, error) {
	return nil, errors.New("not used")
}

func (m *mockCostsSvc) List(context.Context, costsdomain.ListCostEventsRequest) (costsdomain.ListCostEventsResponse, error) {
	return costsdomain.ListCostEventsResponse{}, nil
}

func (m *mockCostsSvc) RecomputeDay(ctx context.Context, day time.Time) (int, error) {
	if m.recomputeErr != nil {
		return 0, m.recomputeErr
	}
	m.recomputeDays = append(m.recomputeDays, day)
	return m.rowsPerDay, nil
}

func (m *mockCostsSvc) DailySpendTotal(ctx context.Context, day time.Time) (costsdomain.DailySpend, error) {
	if m.spendErr != nil {
		return costsdomain.DailySpend{}, m.spendErr
	}
	return costsdomain.DailySpend{
		Day:            day.UTC().Truncate(24 * time.Hour),
		TotalAmountUSD: m.spendTotal,
	}, nil
}

type recordingNotifier struct {
	alerts []SpendAlert
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, alert SpendAlert) error {
	if n.err != nil {
		return n.err
	}
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *recordingNotifier) Channel() string { return "recording" }

func newTestWorker(t *testing.T, costs costsdomain.Service, notifier Notifier, clk clock.Clock, cfg Config) *Worker {
	t.Helper()
	w, err := New(Params{
		Log:      zap.NewNop(),
		Costs:    costs,
		Clock:    clk,
		Notifier: notifier,
		Config:   cfg,
	})
	if err != nil {
		t.Fatalf("New worker: %v", err)
	}
	return w
}

// resetWorkerMetrics gives each test a private prometheus registry so the
// package-level worker metrics singleton never double-registers.
func resetWorkerMetrics(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	obsmetrics.ResetWorkerMetricsForTest()
	obsmetrics.WorkerWithConfig(obsmetrics.Config{ServiceName: "farmerpower", Environment: "test"})
	t.Cleanup(restore)
	return registry
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Params{}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := resetWorkerMetrics(t)

	w := newTestWorker(t, &mockCostsSvc{}, &recordingNotifier{}, clock.NewFakeClock(time.Time{}), Config{})
	err := w.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "farmerpower",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, registry, "farmerpower_worker_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": "farmerpower",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.JobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "farmerpower_worker_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestRollupJobCoversRecentWindowOldestFirst(t *testing.T) {
	resetWorkerMetrics(t)

	costs := &mockCostsSvc{rowsPerDay: 2}
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC))
	w := newTestWorker(t, costs, &recordingNotifier{}, clk, Config{RollupWindowDays: 3})

	if err := w.RollupJob(context.Background()); err != nil {
		t.Fatalf("RollupJob: %v", err)
	}

	want := []time.Time{
		time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	}
	if len(costs.recomputeDays) != len(want) {
		t.Fatalf("expected %d recomputed days, got %d", len(want), len(costs.recomputeDays))
	}
	for i, day := range want {
		if !costs.recomputeDays[i].Equal(day) {
			t.Errorf("day %d: expected %v, got %v", i, day, costs.recomputeDays[i])
		}
	}
}

func TestSpendAlertNotifiesOncePerDayOverThreshold(t *testing.T) {
	resetWorkerMetrics(t)

	costs := &mockCostsSvc{spendTotal: 125.5}
	notifier := &recordingNotifier{}
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	w := newTestWorker(t, costs, notifier, clk, Config{DailySpendAlertUSD: 100})

	if err := w.SpendAlertJob(context.Background()); err != nil {
		t.Fatalf("SpendAlertJob: %v", err)
	}
	if err := w.SpendAlertJob(context.Background()); err != nil {
		t.Fatalf("SpendAlertJob second run: %v", err)
	}
	if len(notifier.alerts) != 1 {
		t.Fatalf("expected one alert for the day, got %d", len(notifier.alerts))
	}

	alert := notifier.alerts[0]
	if alert.TotalAmountUSD != 125.5 {
		t.Errorf("expected total 125.5, got %v", alert.TotalAmountUSD)
	}
	if alert.ThresholdUSD != 100 {
		t.Errorf("expected threshold 100, got %v", alert.ThresholdUSD)
	}
	if !alert.Day.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected day 2025-03-10, got %v", alert.Day)
	}

	clk.Advance(24 * time.Hour)
	if err := w.SpendAlertJob(context.Background()); err != nil {
		t.Fatalf("SpendAlertJob next day: %v", err)
	}
	if len(notifier.alerts) != 2 {
		t.Fatalf("expected a fresh alert after the day rolled over, got %d", len(notifier.alerts))
	}
}

func TestSpendAlertDisabledWithoutThreshold(t *testing.T) {
	resetWorkerMetrics(t)

	costs := &mockCostsSvc{spendTotal: 9999}
	notifier := &recordingNotifier{}
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	w := newTestWorker(t, costs, notifier, clk, Config{})

	if err := w.SpendAlertJob(context.Background()); err != nil {
		t.Fatalf("SpendAlertJob: %v", err)
	}
	if len(notifier.alerts) != 0 {
		t.Fatalf("expected no alerts with a zero threshold, got %d", len(notifier.alerts))
	}
}

func TestSpendAlertBelowThresholdStaysQuiet(t *testing.T) {
	resetWorkerMetrics(t)

	costs := &mockCostsSvc{spendTotal: 42}
	notifier := &recordingNotifier{}
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	w := newTestWorker(t, costs, notifier, clk, Config{DailySpendAlertUSD: 100})

	if err := w.SpendAlertJob(context.Background()); err != nil {
		t.Fatalf("SpendAlertJob: %v", err)
	}
	if len(notifier.alerts) != 0 {
		t.Fatalf("expected no alerts below the threshold, got %d", len(notifier.alerts))
	}
}

func TestSpendAlertSurfacesNotifierFailure(t *testing.T) {
	resetWorkerMetrics(t)

	costs := &mockCostsSvc{spendTotal: 500}
	notifier := &recordingNotifier{err: errors.New("webhook down")}
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	w := newTestWorker(t, costs, notifier, clk, Config{DailySpendAlertUSD: 100})

	if err := w.SpendAlertJob(context.Background()); err == nil {
		t.Fatal("expected notifier failure to surface")
	}

	// The day stays unmarked so the next tick retries the notification.
	notifier.err = nil
	if err := w.SpendAlertJob(context.Background()); err != nil {
		t.Fatalf("SpendAlertJob retry: %v", err)
	}
	if len(notifier.alerts) != 1 {
		t.Fatalf("expected the retry to deliver the alert, got %d", len(notifier.alerts))
	}
}

func TestRunOnceJoinsJobErrors(t *testing.T) {
	resetWorkerMetrics(t)

	costs := &mockCostsSvc{recomputeErr: errors.New("rollup exploded"), spendTotal: 10}
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	w := newTestWorker(t, costs, &recordingNotifier{}, clk, Config{RollupWindowDays: 2, DailySpendAlertUSD: 100})

	err := w.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected the rollup failure to surface")
	}
	if !strings.Contains(err.Error(), "cost_rollup") {
		t.Fatalf("expected the failing job in the error, got %v", err)
	}
}

func TestRunForeverTicksUntilCancelled(t *testing.T) {
	resetWorkerMetrics(t)

	costs := &mockCostsSvc{rowsPerDay: 1}
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	w := newTestWorker(t, costs, &recordingNotifier{}, clk, Config{
		RunInterval:      10 * time.Millisecond,
		RollupWindowDays: 1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.RunForever(ctx)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}

	if len(costs.recomputeDays) < 2 {
		t.Fatalf("expected at least two ticks to run, got %d", len(costs.recomputeDays))
	}
}

func TestNilLockerRunsUnlocked(t *testing.T) {
	w := newTestWorker(t, &mockCostsSvc{}, &recordingNotifier{}, clock.NewFakeClock(time.Time{}), Config{})

	release, ok, err := w.acquireRunLock(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected unlocked run, got ok=%v err=%v", ok, err)
	}
	if release != nil {
		t.Fatal("expected no release func without a locker")
	}
}

func TestNewLockerRequiresClient(t *testing.T) {
	if NewLocker(nil) != nil {
		t.Fatal("expected nil locker without a redis client")
	}
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetWorkerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
