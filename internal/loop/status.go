package loop

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Match is the most recent successful recognition.
type Match struct {
	Identity string    `json:"identity"`
	Distance float64   `json:"distance"`
	At       time.Time `json:"at"`
}

// Status is the snapshot published after every loop iteration.
type Status struct {
	Active           bool          `json:"active"`
	Identity         string        `json:"identity,omitempty"`
	Remaining        time.Duration `json:"-"`
	RemainingSeconds int           `json:"remaining_seconds"`
	Backend          string        `json:"backend"`
	FramesCaptured   uint64        `json:"frames_captured"`
	FrameFailures    uint64        `json:"frame_failures"`
	LastMatch        *Match        `json:"last_match,omitempty"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Text is the one-line status shown to the user.
func (s Status) Text() string {
	if !s.Active {
		return "searching"
	}
	return fmt.Sprintf("checked in: %s (%ds)", s.Identity, s.RemainingSeconds)
}

// Board holds the latest Status. The loop publishes, readers such as the
// status server load; neither blocks the other.
type Board struct {
	current atomic.Pointer[Status]
}

// NewBoard returns a board holding an idle status.
func NewBoard() *Board {
	b := &Board{}
	b.current.Store(&Status{})
	return b
}

// Publish replaces the snapshot.
func (b *Board) Publish(s Status) {
	b.current.Store(&s)
}

// Load returns the latest snapshot.
func (b *Board) Load() Status {
	if s := b.current.Load(); s != nil {
		return *s
	}
	return Status{}
}
