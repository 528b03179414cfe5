package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/constrictor/constrictor/pkg/telemetry"
)

// AuditSubscriber returns an event subscriber that records estimate events.
// Other events are ignored. Errors are reported to onError, which may be nil.
func (s *SQLiteStore) AuditSubscriber(ctx context.Context, onError func(error)) telemetry.EventSubscriber {
	return func(event telemetry.Event) {
		if event.Type != telemetry.EventTypeEstimateCompleted && event.Type != telemetry.EventTypeEstimateRejected {
			return
		}

		rec := estimateRecordFromEvent(event)
		if err := s.RecordEstimate(ctx, rec); err != nil && onError != nil {
			onError(err)
		}
	}
}

// AuditFilter selects the events AuditSubscriber records.
func AuditFilter() telemetry.EventFilter {
	return telemetry.FilterByType(telemetry.EventTypeEstimateCompleted, telemetry.EventTypeEstimateRejected)
}

func estimateRecordFromEvent(event telemetry.Event) *EstimateRecord {
	rec := &EstimateRecord{
		ID:        event.RequestID,
		DatasetID: event.DatasetID,
		CreatedAt: event.Timestamp,
	}
	if rec.ID == "" {
		rec.ID = event.ID
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	data := event.Data
	rec.Origin, _ = data["origin"].(string)
	rec.Granules, _ = data["granules"].(int64)
	rec.CostID, _ = data["cost_id"].(string)
	rec.Cost, _ = data["cost"].(float64)
	rec.CostLimit, _ = data["limit"].(float64)
	rec.Allowed, _ = data["allowed"].(bool)
	rec.Reason, _ = data["reason"].(string)

	if req, ok := data["request"]; ok && req != nil {
		if b, err := json.Marshal(req); err == nil {
			rec.Request = string(b)
		}
	}

	return rec
}
