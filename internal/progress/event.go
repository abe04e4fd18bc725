// Package progress defines the event stream emitted by capture orchestrators
// and the hub that fans events out to sinks. The job store remains the source
// of truth; events exist for observers (logs, metrics, external topics) and
// their delivery is best-effort.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/pagesnap/pagesnap/internal/capture"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart      Stage = "JOB_START"
	StageDiscoveryDone Stage = "DISCOVERY_DONE"
	StageUnitDone      Stage = "UNIT_DONE"
	StageJobCompleted  Stage = "JOB_COMPLETED"
	StageJobError      Stage = "JOB_ERROR"
	StageJobCancelled  Stage = "JOB_CANCELLED"
)

// Terminal reports whether the stage ends a job.
func (s Stage) Terminal() bool {
	switch s {
	case StageJobCompleted, StageJobError, StageJobCancelled:
		return true
	default:
		return false
	}
}

// Event captures one milestone of a capture job.
type Event struct {
	// JobID identifies the job run.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// URL is the page for unit events, the seed for job events.
	URL string
	// Device scopes unit events to an emulation profile.
	Device capture.Device
	// Progress is the percentage persisted alongside unit completions.
	Progress int
	// UnitsDone / UnitsTotal describe matrix position for unit events and
	// discovery totals.
	UnitsDone  int
	UnitsTotal int
	// Bytes carries the captured image size for unit events.
	Bytes int64
	// Dur captures render latency for units and wall time for job ends.
	Dur time.Duration
	// Note attaches low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageDiscoveryDone, StageJobCompleted, StageJobError, StageJobCancelled:
	case StageUnitDone:
		if e.Device == "" {
			return errors.New("unit done requires device")
		}
		if e.URL == "" {
			return errors.New("unit done requires url")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
