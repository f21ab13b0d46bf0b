// Package progress defines the event stream emitted by scrape runs and
// cleanup cycles, and the hub that fans events out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageRunHeartbeat  Stage = "RUN_HEARTBEAT"
	StageRunDone       Stage = "RUN_DONE"
	StageRunError      Stage = "RUN_ERROR"
	StageSourceStart   Stage = "SOURCE_START"
	StageSourceDone    Stage = "SOURCE_DONE"
	StageSourceSkipped Stage = "SOURCE_SKIPPED"
	StageSourceError   Stage = "SOURCE_ERROR"
	StageCleanupStart  Stage = "CLEANUP_START"
	StageCleanupDone   Stage = "CLEANUP_DONE"
)

// Event captures one milestone inside a run. Source-scoped stages carry the
// unit name plus record counts; run-scoped stages leave them zero.
type Event struct {
	// RunID ties every event of one run together, in 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Source names the scrape unit for SOURCE_* stages.
	Source string
	// Records counts the records produced by the unit or run.
	Records int64
	// Applied counts the records the store accepted.
	Applied int64
	// Dur captures execution latency for done/error stages.
	Dur time.Duration
	// Note carries low-volume context such as error text or a skip reason.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunHeartbeat, StageRunDone, StageRunError,
		StageCleanupStart, StageCleanupDone:
	case StageSourceStart, StageSourceDone, StageSourceSkipped, StageSourceError:
		if e.Source == "" {
			return fmt.Errorf("stage %s requires a source", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
