// Package event defines scan telemetry events and the store port that
// persists them. Events carry summaries only; raw scanned text and
// matched spans never leave the pipeline.
package event

import (
	"context"
	"time"
)

// Event summarizes one scan decision.
type Event struct {
	// Timestamp is when the scan completed.
	Timestamp time.Time `json:"timestamp"`
	// RequestID correlates the event with proxy request logs.
	RequestID string `json:"request_id,omitempty"`
	// Identity is the caller the scan was attributed to.
	Identity string `json:"identity,omitempty"`
	// Direction is "input" or "output".
	Direction string `json:"direction"`
	// Decision is the policy outcome: "allow", "warn", "redact", "block".
	Decision string `json:"decision"`
	// Scanners lists the scanners whose findings caused the decision.
	Scanners []string `json:"scanners,omitempty"`
	// FindingCount is the number of findings that survived policy filters.
	FindingCount int `json:"finding_count"`
	// Categories is a comma-separated list of finding categories.
	Categories string `json:"categories,omitempty"`
	// DurationMicros is the scan duration in microseconds.
	DurationMicros int64 `json:"duration_micros"`
}

// Store persists telemetry events.
type Store interface {
	// Append stores events. Implementations handle batching.
	Append(ctx context.Context, events ...Event) error

	// Close releases resources.
	Close() error
}
