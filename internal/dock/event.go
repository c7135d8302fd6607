package dock

import (
	"fmt"
	"slices"
	"time"

	"rundock/pkg/cloudevent"
)

// Event types for run lifecycle callbacks
const (
	EventTypePairStart   = "rundock.pair.start"
	EventTypePairExit    = "rundock.pair.exit"
	EventTypeRunComplete = "rundock.run.complete"
)

// Callback configures progress-event delivery for a run.
type Callback struct {
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
	Key    string   `yaml:"key,omitempty"` // HMAC signing key
}

// FilteredEvents returns true if the event type should be sent based on the filter.
// If the filter is empty, all events are allowed.
func FilteredEvents(eventType string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	return slices.Contains(filter, eventType)
}

// EventBuilder builds CloudEvents for docking run lifecycle events.
type EventBuilder struct {
	source  string
	subject string
}

// NewEventBuilder creates a new EventBuilder. The subject identifies the run
// (typically the ligand file base name).
func NewEventBuilder(subject, source string) *EventBuilder {
	return &EventBuilder{
		source:  source,
		subject: subject,
	}
}

// Build creates a new CloudEvent with the given type and data.
func (b *EventBuilder) Build(eventType string, data map[string]any) *cloudevent.CloudEvent {
	eventID := fmt.Sprintf("%s-%d", b.subject, time.Now().UnixNano())
	return cloudevent.New(eventType, b.source, b.subject, eventID, data)
}

// BuildPairStartEvent creates an event for the start of one (instance, site) pair.
func (b *EventBuilder) BuildPairStartEvent(inst Instance, site BindingSite) *cloudevent.CloudEvent {
	data := map[string]any{
		"instance": inst.Name,
		"program":  inst.Program,
		"site":     site.Label,
	}
	return b.Build(EventTypePairStart, data)
}

// BuildPairExitEvent creates an event for the completion of one pair.
func (b *EventBuilder) BuildPairExitEvent(res PairResult) *cloudevent.CloudEvent {
	data := map[string]any{
		"instance": res.Instance,
		"program":  res.Program,
		"site":     res.Site,
		"state":    res.State,
		"nposes":   res.Poses,
	}
	if res.Err != nil {
		data["error"] = res.Err.Error()
	}
	return b.Build(EventTypePairExit, data)
}

// BuildRunCompleteEvent creates an event for the end of the whole run.
func (b *EventBuilder) BuildRunCompleteEvent(poses int, shifts []int, elapsed time.Duration) *cloudevent.CloudEvent {
	data := map[string]any{
		"nposes":         poses,
		"shifts":         shifts,
		"elapsedSeconds": elapsed.Seconds(),
	}
	return b.Build(EventTypeRunComplete, data)
}
