// Package progress defines the event structures emitted by crawl cycles.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageCycleStart Stage = "CYCLE_START"
	StageCycleDone  Stage = "CYCLE_DONE"
	StageCycleError Stage = "CYCLE_ERROR"
	StageFetchStart Stage = "FETCH_START"
	StageFetchDone  Stage = "FETCH_DONE"
	StageMerge      Stage = "ENTITY_MERGE"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single milestone of crawl cycle progress.
type Event struct {
	// CycleID identifies one crawl cycle run.
	CycleID string `json:"cycle_id"`
	// EntityID is the graph entity the cycle works on.
	EntityID string `json:"entity_id,omitempty"`
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time `json:"ts"`
	// Stage denotes which lifecycle or fetch milestone occurred.
	Stage Stage `json:"stage"`
	// Site optionally scopes fetch events to a host label.
	Site string `json:"site,omitempty"`
	// URL is the optional page URL; it should not contain credentials.
	URL string `json:"url,omitempty"`
	// Bytes carries the response size delta for the fetch.
	Bytes int64 `json:"bytes,omitempty"`
	// StatusClass groups HTTP response codes (2xx, 3xx, etc).
	StatusClass StatusClass `json:"status_class,omitempty"`
	// Dur captures execution latency for fetches and cycle completions.
	Dur time.Duration `json:"dur,omitempty"`
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string `json:"note,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.CycleID == "" {
		return errors.New("cycle id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCycleStart, StageCycleDone, StageCycleError, StageMerge:
	case StageFetchStart:
		if e.Site == "" {
			return errors.New("fetch start requires site")
		}
	case StageFetchDone:
		if e.Site == "" {
			return errors.New("fetch done requires site")
		}
		if e.StatusClass == "" {
			return errors.New("fetch done requires status class")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
