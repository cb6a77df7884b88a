package domain

import "time"

// EventType discriminates live-update event payloads on the pub/sub channel.
type EventType string

const (
	EventTypeLiveData     EventType = "live_data"
	EventTypeDeviceStatus EventType = "device_status"
	EventTypeAlarmUpdate  EventType = "alarm_update"
)

// LiveDataEvent carries one processed reading to live subscribers.
type LiveDataEvent struct {
	Type       EventType `json:"type"`
	RegisterID uint      `json:"register_id"`
	Value      float64   `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
	Label      *string   `json:"label,omitempty"`

	// Text carries STRING register payloads, forwarded for live display only
	Text *string `json:"text,omitempty"`
}

// NewLiveDataEvent builds a live_data payload from a processed value.
func NewLiveDataEvent(registerID uint, p Processed, ts time.Time) LiveDataEvent {
	ev := LiveDataEvent{
		Type:       EventTypeLiveData,
		RegisterID: registerID,
		Timestamp:  ts,
		Label:      p.Label,
	}
	if p.Value.Kind == ValueText {
		text := p.Value.Text
		ev.Text = &text
	} else {
		ev.Value = p.Value.Num
	}
	return ev
}

// DeviceStatusEvent announces an online/offline transition. Emitted on
// transition only, never on every tick.
type DeviceStatusEvent struct {
	Type     EventType    `json:"type"`
	DeviceID uint         `json:"device_id"`
	Status   DeviceStatus `json:"status"`
}

// AlarmUpdateEvent announces an episode being raised, cleared or acknowledged.
type AlarmUpdateEvent struct {
	Type      EventType     `json:"type"`
	EpisodeID uint          `json:"episode_id"`
	RuleName  string        `json:"rule_name,omitempty"`
	Severity  AlarmSeverity `json:"severity,omitempty"`
	Status    EpisodeStatus `json:"status"`
	Cleared   bool          `json:"cleared,omitempty"`
}

// EventPublisher is the outbound pub/sub port for live updates. The engine
// treats publish failures as non-fatal: a lost live update never aborts a
// poll cycle.
type EventPublisher interface {
	PublishLiveData(ev LiveDataEvent) error
	PublishDeviceStatus(ev DeviceStatusEvent) error
	PublishAlarm(ev AlarmUpdateEvent) error
}
