package builder

import (
	"github.com/spf13/cast"
)

// Message is one event from a builder process. The concrete type is one of
// Started, Progress, Failed or Done.
type Message interface {
	isMessage()
}

// Reasons carried by Started.
const (
	// ReasonInitial marks the first build after a process starts.
	ReasonInitial = "initial"
	// ReasonWatchRun marks a rebuild the bundler scheduled on its own.
	ReasonWatchRun = "watchRun"
	// ReasonInvalid marks a rebuild caused by a source change.
	ReasonInvalid = "invalid"
)

// Started opens a build cycle.
type Started struct {
	Reason string
}

// Progress reports how far the current cycle has got.
type Progress struct {
	Total     int
	Completed int
	Message   string
}

// Failed ends the current cycle with an error. The error is usually a
// *errors.BuildError.
type Failed struct {
	Err error
}

// Done ends the current cycle successfully with its complete output.
type Done struct {
	Assets []Asset
	Stats  Stats
}

func (Started) isMessage()  {}
func (Progress) isMessage() {}
func (Failed) isMessage()   {}
func (Done) isMessage()     {}

// Asset is one output file of a build.
type Asset struct {
	Filename string
	Data     []byte
	Info     map[string]any
}

// Stats is the free-form build summary reported alongside Done.
type Stats map[string]any

// GetInt returns the integer stat under key, or 0.
func (s Stats) GetInt(key string) int {
	return cast.ToInt(s[key])
}

// GetString returns the string stat under key, or "".
func (s Stats) GetString(key string) string {
	return cast.ToString(s[key])
}

// IsTerminal reports whether m ends a build cycle.
func IsTerminal(m Message) bool {
	switch m.(type) {
	case Failed, Done:
		return true
	default:
		return false
	}
}
