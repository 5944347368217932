package costwatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/farmerpower/platform/internal/config"
	obstracing "github.com/farmerpower/platform/internal/observability/tracing"
	"go.uber.org/zap"
)

const notifyTimeout = 10 * time.Second

// SpendAlert is the payload posted when a day's spend crosses the threshold.
type SpendAlert struct {
	Day            time.Time `json:"day"`
	TotalAmountUSD float64   `json:"total_amount_usd"`
	ThresholdUSD   float64   `json:"threshold_usd"`
	Service        string    `json:"service"`
	Environment    string    `json:"environment"`
}

// Notifier delivers spend alerts. Implementations must be safe to call from
// the worker loop and should not retry internally; the worker re-evaluates
// every tick. Channel names the delivery mechanism for metric labels.
type Notifier interface {
	Notify(ctx context.Context, alert SpendAlert) error
	Channel() string
}

// NewNotifier selects the webhook notifier when a URL is configured and the
// no-op notifier otherwise.
func NewNotifier(cfg config.Config, log *zap.Logger) Notifier {
	url := cfg.Worker.AlertWebhookURL
	if url == "" {
		return NoopNotifier{}
	}
	n := NewWebhookNotifier(url, log)
	n.service = cfg.AppName
	n.environment = cfg.Environment
	return n
}

// NoopNotifier drops alerts. The default when no webhook is configured; the
// over-threshold condition still lands in logs and cloud metrics.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, SpendAlert) error { return nil }

func (NoopNotifier) Channel() string { return "noop" }

// WebhookNotifier posts the alert as JSON to a configured endpoint.
type WebhookNotifier struct {
	url         string
	service     string
	environment string
	client      *http.Client
	log         *zap.Logger
}

func NewWebhookNotifier(url string, log *zap.Logger) *WebhookNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookNotifier{
		url:    url,
		client: obstracing.WrapHTTPClient(&http.Client{Timeout: notifyTimeout}),
		log:    log.Named("costwatch.notifier"),
	}
}

func (n *WebhookNotifier) Channel() string { return "webhook" }

func (n *WebhookNotifier) Notify(ctx context.Context, alert SpendAlert) error {
	if alert.Service == "" {
		alert.Service = n.service
	}
	if alert.Environment == "" {
		alert.Environment = n.environment
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal spend alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post spend alert: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("spend alert webhook returned status %d", resp.StatusCode)
	}

	n.log.Info("spend alert delivered",
		zap.Time("day", alert.Day),
		zap.Float64("total_amount_usd", alert.TotalAmountUSD),
		zap.Float64("threshold_usd", alert.ThresholdUSD),
	)
	return nil
}
