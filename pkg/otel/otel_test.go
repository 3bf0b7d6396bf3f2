package otel

import (
	"context"
	"errors"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("test-service")

	if config.ServiceName != "test-service" {
		t.Errorf("Expected service name 'test-service', got '%s'", config.ServiceName)
	}

	if config.ServiceVersion == "" {
		t.Error("Service version should not be empty")
	}

	if config.Enabled() {
		t.Error("Tracing should be disabled without a collector endpoint")
	}

	if config.SamplingRate < 0.0 || config.SamplingRate > 1.0 {
		t.Errorf("Sampling rate out of bounds: %.2f", config.SamplingRate)
	}
}

func TestInitTracerDisabled(t *testing.T) {
	tp, err := InitTracer(context.Background(), DefaultConfig("test-service"))
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}
	if tp != nil {
		t.Error("Expected nil provider when tracing is disabled")
	}
	if err := Shutdown(context.Background(), tp); err != nil {
		t.Errorf("Shutdown of nil provider failed: %v", err)
	}

	var nilConfig *Config
	if nilConfig.Enabled() {
		t.Error("nil config should be disabled")
	}
}

func TestPredictionAttributes(t *testing.T) {
	attrs := PredictionAttributes("2024-03-01", "gradient_boosting")

	if len(attrs) != 2 {
		t.Errorf("Expected 2 attributes, got %d", len(attrs))
	}

	found := false
	for _, attr := range attrs {
		if attr.Key == AttrTargetDate && attr.Value.AsString() == "2024-03-01" {
			found = true
			break
		}
	}
	if !found {
		t.Error("target date attribute not found")
	}
}

func TestTrainingAttributes(t *testing.T) {
	attrs := TrainingAttributes(292, []string{"gradient_boosting", "random_forest"})

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Value.AsInt64() != 292 {
		t.Errorf("Expected 292 rows, got %d", attrs[0].Value.AsInt64())
	}
	if got := attrs[1].Value.AsStringSlice(); len(got) != 2 {
		t.Errorf("Expected 2 models, got %v", got)
	}
}

func TestStartSpanNoop(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test-span", AttrModel.String("random_forest"))
	defer span.End()

	if ctx == nil {
		t.Fatal("context should not be nil")
	}

	// Must not panic on the no-op span
	RecordError(span, errors.New("boom"), "training failed")
	RecordError(span, nil, "")
	RecordError(nil, errors.New("boom"), "")
}
