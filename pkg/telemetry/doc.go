// Package telemetry provides observability for the estimation service.
//
// It integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing behind one
// Telemetry value that travels in the request context.
//
// # Usage
//
// Initialize telemetry at startup and put it in the context:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Logging
//
// Loggers are scoped with request and dataset fields and carried in the context:
//
//	ctx = telemetry.WithRequestContext(ctx, requestID, datasetID)
//	telemetry.FromContext(ctx).Info("estimating")
//
// Logs go to stderr by default so command output on stdout stays machine readable.
//
// # Tracing
//
// Engine operations open spans named constraints.apply, costing.estimate and
// policy.evaluate. StartOperation opens the span, scopes a logger and starts a
// timer; End records the outcome:
//
//	ic := telemetry.StartOperation(ctx, telemetry.SpanCostingEstimate,
//	    telemetry.AttrDatasetID.String(datasetID))
//	defer func() { ic.End(err) }()
//
// Exporters: otlp (gRPC), stdout, none.
//
// # Metrics
//
// All metrics use the configured namespace (default "constrictor"):
//
//   - estimates_total{dataset,origin,outcome}
//   - estimate_duration_seconds{operation}
//   - estimated_granules
//   - form_states_total{dataset}
//   - cost_limit_rejections_total{dataset,cost_id}
//   - errors_by_class_total{class}, errors_by_code_total{code}
//   - datasets_loaded
//
// When metrics are disabled every recorder is a no-op.
//
// # Events
//
// EventPublisher delivers estimate.completed, estimate.rejected,
// form_state.computed, catalogue.reloaded and policy.violation events to
// subscribers, synchronously or through a buffer flushed by size and interval.
// Shutdown drains the buffer and waits for subscribers, so audit sinks see
// every event published before it.
package telemetry
