package pipeline

import (
	"time"

	"github.com/macropower/prodmatch/pkg/match"
	"github.com/macropower/prodmatch/pkg/result"
)

// Trigger identifies what started a cycle.
type Trigger string

const (
	// TriggerWatch is a filesystem change.
	TriggerWatch Trigger = "watch"
	// TriggerManual is an explicit request, such as the once command or an
	// MCP tool call.
	TriggerManual Trigger = "manual"
)

// Output is the outcome of one cycle.
type Output struct {
	Timestamp time.Time
	Error     error
	Summary   *result.Summary
	Partition *match.Partition
	CycleID   string
	Trigger   Trigger
}

// Event is sent to subscribers. It is one of [EventStart] or [EventEnd].
type Event any

type (
	// EventStart indicates that a cycle has started.
	EventStart struct {
		CycleID string
		Trigger Trigger
	}

	// EventEnd indicates that a cycle has ended, successfully or not.
	EventEnd Output
)
