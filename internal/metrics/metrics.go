// Package metrics tracks pipeline-wide operational counters and serves
// them, together with the supervisor's process snapshot, over a small
// JSON status endpoint (see server.go). The reference deployment has
// no Prometheus scraper in front of it, so counters are plain atomics
// rather than a client_golang registry — see DESIGN.md for why.
package metrics

import "sync/atomic"

// Counters are the pipeline-wide totals, updated by Add as each role's
// periodic self-report arrives over the control socket. A single
// instance lives in the supervisor process for the pipeline's lifetime;
// no producer/worker/sender process writes these fields directly, since
// each runs in its own OS process and never shares this pointer.
type Counters struct {
	EventsProduced  atomic.Uint64
	EventsProcessed atomic.Uint64
	AnalyzerErrors  atomic.Uint64
	FramesSent      atomic.Uint64
}

// Snapshot is a point-in-time, JSON-friendly copy of Counters.
type Snapshot struct {
	EventsProduced  uint64 `json:"events_produced"`
	EventsProcessed uint64 `json:"events_processed"`
	AnalyzerErrors  uint64 `json:"analyzer_errors"`
	FramesSent      uint64 `json:"frames_sent"`
}

// Snapshot reads all counters without blocking writers.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		EventsProduced:  c.EventsProduced.Load(),
		EventsProcessed: c.EventsProcessed.Load(),
		AnalyzerErrors:  c.AnalyzerErrors.Load(),
		FramesSent:      c.FramesSent.Load(),
	}
}

// Add folds delta into the running totals. Producer, worker and sender
// each run as a separate OS process and never hold this *Counters by
// reference, so delta arrives as a periodic self-report over the
// control socket (internal/command.Reporter) rather than a direct
// field write.
func (c *Counters) Add(delta Snapshot) {
	c.EventsProduced.Add(delta.EventsProduced)
	c.EventsProcessed.Add(delta.EventsProcessed)
	c.AnalyzerErrors.Add(delta.AnalyzerErrors)
	c.FramesSent.Add(delta.FramesSent)
}
