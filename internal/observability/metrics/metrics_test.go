package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("channel", "webhook"),
		attribute.String("farmer_id", "f-123"),
		attribute.String("cost_type", "llm"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "farmer_id" {
			t.Fatal("expected farmer_id to be dropped")
		}
	}
}

func TestNewBuildsInstrumentsOnNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "farmerpower"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	if m == nil {
		t.Fatal("expected instruments")
	}

	// Nil receivers and noop providers must both be safe to record on.
	m.RecordCostIngest(context.Background(), "llm")
	m.RecordSpendAlert(context.Background(), "webhook")
	var nilMetrics *Metrics
	nilMetrics.RecordCostIngest(context.Background(), "llm")
}
