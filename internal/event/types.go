package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "build.progress", "builder.log")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeBuildInvalidated = "build.invalidated"
	TypeBuildProgress    = "build.progress"
	TypeBuildDone        = "build.done"
	TypeBuildError       = "build.error"
	TypeBuilderLog       = "builder.log"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Build Cycle Events
// -----------------------------------------------------------------------------

// BuildInvalidatedEvent is emitted when a platform's builder starts a new
// build cycle. From this point until the matching done or error event, asset
// requests for the platform wait instead of reading the cache.
type BuildInvalidatedEvent struct {
	baseEvent
	Platform string
	Reason   string // "initial", "invalid" or "watchRun"
}

// NewBuildInvalidatedEvent creates a BuildInvalidatedEvent.
func NewBuildInvalidatedEvent(platform, reason string) BuildInvalidatedEvent {
	return BuildInvalidatedEvent{
		baseEvent: newBaseEvent(TypeBuildInvalidated),
		Platform:  platform,
		Reason:    reason,
	}
}

// BuildProgressEvent reports progress of an in-flight build.
type BuildProgressEvent struct {
	baseEvent
	Platform  string
	Total     int
	Completed int
	Message   string
}

// NewBuildProgressEvent creates a BuildProgressEvent.
func NewBuildProgressEvent(platform string, total, completed int, message string) BuildProgressEvent {
	return BuildProgressEvent{
		baseEvent: newBaseEvent(TypeBuildProgress),
		Platform:  platform,
		Total:     total,
		Completed: completed,
		Message:   message,
	}
}

// Fraction returns Completed/Total clamped to [0, 1]; 0 when Total is unknown.
func (e BuildProgressEvent) Fraction() float64 {
	if e.Total <= 0 {
		return 0
	}
	f := float64(e.Completed) / float64(e.Total)
	return min(max(f, 0), 1)
}

// BuildDoneEvent is emitted after a successful build has replaced the
// platform's asset cache.
type BuildDoneEvent struct {
	baseEvent
	Platform   string
	AssetCount int
	Stats      map[string]any
}

// NewBuildDoneEvent creates a BuildDoneEvent.
func NewBuildDoneEvent(platform string, assetCount int, stats map[string]any) BuildDoneEvent {
	return BuildDoneEvent{
		baseEvent:  newBaseEvent(TypeBuildDone),
		Platform:   platform,
		AssetCount: assetCount,
		Stats:      stats,
	}
}

// BuildErrorEvent is emitted when a build cycle fails or the builder exits.
type BuildErrorEvent struct {
	baseEvent
	Platform string
	Err      error
}

// NewBuildErrorEvent creates a BuildErrorEvent.
func NewBuildErrorEvent(platform string, err error) BuildErrorEvent {
	return BuildErrorEvent{
		baseEvent: newBaseEvent(TypeBuildError),
		Platform:  platform,
		Err:       err,
	}
}

// -----------------------------------------------------------------------------
// Builder Output Events
// -----------------------------------------------------------------------------

// BuilderLogEvent carries one structured log entry emitted by a builder
// process on stdout or stderr.
type BuilderLogEvent struct {
	baseEvent
	Platform string
	Level    string // "debug", "info", "warn", "error", "success", "progress"
	Issuer   string
	Message  []any
}

// NewBuilderLogEvent creates a BuilderLogEvent.
func NewBuilderLogEvent(platform, level, issuer string, message []any) BuilderLogEvent {
	return BuilderLogEvent{
		baseEvent: newBaseEvent(TypeBuilderLog),
		Platform:  platform,
		Level:     level,
		Issuer:    issuer,
		Message:   message,
	}
}

// PlatformOf returns the platform an event concerns, or "" for events not
// tied to a platform.
func PlatformOf(e Event) string {
	switch ev := e.(type) {
	case BuildInvalidatedEvent:
		return ev.Platform
	case BuildProgressEvent:
		return ev.Platform
	case BuildDoneEvent:
		return ev.Platform
	case BuildErrorEvent:
		return ev.Platform
	case BuilderLogEvent:
		return ev.Platform
	default:
		return ""
	}
}
