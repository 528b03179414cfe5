package telemetry_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/constrictor/constrictor/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"
	cfg.Metrics.Enabled = false

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	ctx = telemetry.WithRequestContext(ctx, "req-1", "reanalysis-era5-pressure-levels")

	telemetry.FromContext(ctx).Debug("ready")
	fmt.Println(telemetry.FromTelemetryContext(ctx) == tel)

	// Output: true
}

// Example_eventPublishing demonstrates subscribing to estimate events.
func Example_eventPublishing() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = false
	cfg.Events.EnableAsync = false

	tel, _ := telemetry.NewTelemetry(cfg)

	var mu sync.Mutex
	var seen []string
	tel.Events.Subscribe(func(event telemetry.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, event.Type)
	}, telemetry.FilterByType(telemetry.EventTypeEstimateRejected))

	_ = tel.Events.PublishEstimateCompleted(telemetry.EstimateSummary{RequestID: "r1", DatasetID: "d", Granules: 2, Allowed: true})
	_ = tel.Events.PublishEstimateRejected(telemetry.EstimateSummary{RequestID: "r2", DatasetID: "d", Reason: "cost limits exceeded"})

	// Shutdown waits for subscribers.
	_ = tel.Shutdown(context.Background())

	fmt.Println(seen)

	// Output: [estimate.rejected]
}

// Example_instrumentedOperation demonstrates using the InstrumentedContext helper.
func Example_instrumentedOperation() {
	tel := telemetry.Nop()
	ctx := tel.WithContext(context.Background())

	ic := telemetry.StartOperation(ctx, telemetry.SpanConstraintsApply,
		telemetry.AttrDatasetID.String("example"),
	)
	ic.Logger.Info("narrowing form")
	ic.End(nil)

	fmt.Println("done")

	// Output: done
}
