package host

import (
	"time"

	"github.com/lawnchairsociety/tilecollapse/internal/wfc"
)

// EventType names a host event on the wire.
type EventType string

const (
	EventResolved  EventType = "resolved"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
	EventStarted   EventType = "started"
	EventReset     EventType = "reset"
)

// Event is what subscribers receive. Fields not relevant to Type are zero.
type Event struct {
	Type      EventType `json:"type"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Artwork   string    `json:"artwork,omitempty"`
	Rotation  int       `json:"rotation"`
	Forced    bool      `json:"forced,omitempty"`
	Seed      uint64    `json:"seed,omitempty"`
	Collapsed int       `json:"collapsed,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func resolvedEvent(c wfc.ResolvedCell) Event {
	return Event{
		Type:     EventResolved,
		X:        c.X,
		Y:        c.Y,
		Artwork:  string(c.Artwork),
		Rotation: c.Rotation,
		Forced:   c.Forced,
	}
}

// Resolution is one collapsed cell in a run record, in resolution order.
type Resolution struct {
	X        int
	Y        int
	Artwork  string
	Rotation int
	Forced   bool
}

// FailureInfo locates the contradiction that ended a failed run.
type FailureInfo struct {
	X      int
	Y      int
	Reason string
}

// RunRecord is the stored summary of one finished run.
type RunRecord struct {
	ID          int64
	Seed        uint64
	Width       int
	Height      int
	CellSize    float64
	Palette     string
	Fingerprint string
	State       string
	Collapsed   int
	Elapsed     time.Duration
	Failure     *FailureInfo
	Resolutions []Resolution
	CreatedAt   time.Time
}

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(rec *RunRecord) (int64, error)
}
