package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a notable occurrence in the estimation service.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// RequestID is the associated request, if applicable.
	RequestID string `json:"request_id,omitempty"`

	// DatasetID is the associated dataset, if applicable.
	DatasetID string `json:"dataset_id,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeEstimateCompleted = "estimate.completed"
	EventTypeEstimateRejected  = "estimate.rejected"
	EventTypeFormStateComputed = "form_state.computed"
	EventTypeCatalogueReloaded = "catalogue.reloaded"
	EventTypePolicyViolation   = "policy.violation"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EstimateSummary is the payload of estimate events.
type EstimateSummary struct {
	RequestID string
	DatasetID string
	Origin    string
	Granules  int64
	CostID    string
	Cost      float64
	Limit     float64
	Allowed   bool
	Reason    string
	Request   map[string][]string
}

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers, optionally through a buffer.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	deliveries  sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config: cfg,
		buffer: make(chan Event, cfg.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	select {
	case <-ep.ctx.Done():
		return fmt.Errorf("event publisher stopped")
	default:
	}

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishEstimateCompleted publishes an accepted estimate.
func (ep *EventPublisher) PublishEstimateCompleted(s EstimateSummary) error {
	return ep.Publish(Event{
		Type:      EventTypeEstimateCompleted,
		Source:    "engine",
		RequestID: s.RequestID,
		DatasetID: s.DatasetID,
		Message:   fmt.Sprintf("Estimate %s on %s: %d granules", s.RequestID, s.DatasetID, s.Granules),
		Level:     EventLevelInfo,
		Data:      estimateData(s),
	})
}

// PublishEstimateRejected publishes an estimate that failed admission.
func (ep *EventPublisher) PublishEstimateRejected(s EstimateSummary) error {
	return ep.Publish(Event{
		Type:      EventTypeEstimateRejected,
		Source:    "engine",
		RequestID: s.RequestID,
		DatasetID: s.DatasetID,
		Message:   fmt.Sprintf("Estimate %s on %s rejected: %s", s.RequestID, s.DatasetID, s.Reason),
		Level:     EventLevelWarning,
		Data:      estimateData(s),
	})
}

func estimateData(s EstimateSummary) map[string]interface{} {
	return map[string]interface{}{
		"origin":   s.Origin,
		"granules": s.Granules,
		"cost_id":  s.CostID,
		"cost":     s.Cost,
		"limit":    s.Limit,
		"allowed":  s.Allowed,
		"reason":   s.Reason,
		"request":  s.Request,
	}
}

// PublishFormStateComputed publishes a form narrowing.
func (ep *EventPublisher) PublishFormStateComputed(requestID, datasetID string, selected int) error {
	return ep.Publish(Event{
		Type:      EventTypeFormStateComputed,
		Source:    "engine",
		RequestID: requestID,
		DatasetID: datasetID,
		Message:   fmt.Sprintf("Form state for %s with %d selected parameters", datasetID, selected),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"selected": selected,
		},
	})
}

// PublishCatalogueReloaded publishes a catalogue reload.
func (ep *EventPublisher) PublishCatalogueReloaded(source string, datasets int) error {
	return ep.Publish(Event{
		Type:    EventTypeCatalogueReloaded,
		Source:  "catalogue",
		Message: fmt.Sprintf("Catalogue reloaded from %s: %d datasets", source, datasets),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"source":   source,
			"datasets": datasets,
		},
	})
}

// PublishPolicyViolation publishes a policy violation.
func (ep *EventPublisher) PublishPolicyViolation(requestID, datasetID, policyName, reason string) error {
	return ep.Publish(Event{
		Type:      EventTypePolicyViolation,
		Source:    "policy_engine",
		RequestID: requestID,
		DatasetID: datasetID,
		Message:   fmt.Sprintf("Policy violation on %s: %s - %s", datasetID, policyName, reason),
		Level:     EventLevelError,
		Data: map[string]interface{}{
			"policy": policyName,
			"reason": reason,
		},
	})
}

// Subscribe adds a new event subscriber. A nil filter accepts every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents batches buffered events and delivers them on size or interval.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	interval := ep.config.FlushInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]Event, 0, ep.config.MaxBatchSize)
	flush := func() {
		for _, event := range batch {
			ep.deliverEvent(event)
		}
		batch = batch[:0]
	}

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			if len(batch) >= ep.config.MaxBatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
				default:
					flush()
					return
				}
			}
		}
	}
}

// deliverEvent hands an event to every matching subscriber.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		ep.deliveries.Add(1)
		go func(fn EventSubscriber) {
			defer ep.deliveries.Done()
			fn(event)
		}(entry.subscriber)
	}
}

// Shutdown drains buffered events and waits for subscribers to return.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	if ep.cancel != nil {
		ep.cancel()
	}

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		ep.deliveries.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByDatasetID creates a filter that only allows events for one dataset.
func FilterByDatasetID(datasetID string) EventFilter {
	return func(event Event) bool {
		return event.DatasetID == datasetID
	}
}
