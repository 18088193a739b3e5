package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StagePageCommitted Stage = "PAGE_COMMITTED"
	StagePageRetry     Stage = "PAGE_RETRY"
	StageEnrichMiss    Stage = "ENRICH_MISS"
	StageRunDone       Stage = "RUN_DONE"
	StageRunError      Stage = "RUN_ERROR"
)

// Event captures a single moment of a harvest run.
type Event struct {
	// RunID identifies the run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Subject is the forum being harvested.
	Subject string
	// ItemID names the record an ENRICH_MISS refers to.
	ItemID string
	// Records is the number of records committed by a page.
	Records int64
	// Total is the collection size after the event.
	Total int64
	// Watermark is the cursor the page was requested with.
	Watermark string
	// Attempt counts consecutive failures of the current page.
	Attempt int
	// State is the terminal state carried by RUN_DONE.
	State string
	// Dur is the page latency, retry pause or run wall time.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
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
	if e.Subject == "" {
		return errors.New("subject is required")
	}
	switch e.Stage {
	case StageRunStart, StagePageCommitted, StagePageRetry, StageRunError:
	case StageEnrichMiss:
		if e.ItemID == "" {
			return errors.New("enrich miss requires item id")
		}
	case StageRunDone:
		if e.State == "" {
			return errors.New("run done requires state")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
