package worker

import (
	"log/slog"
	"sync/atomic"
)

// throughputLogInterval is how many processed events elapse between
// throughput log lines (supplements original_source's worker loop,
// which logs a running processed-event counter).
const throughputLogInterval = 1000

// Stats holds a worker's lifetime counters, grounded on the teacher's
// internal/pipeline.Metrics shape generalized from packet fields to
// ripflow's event and analyzer fields.
type Stats struct {
	Received       atomic.Uint64
	Processed      atomic.Uint64
	AnalyzerErrors atomic.Uint64
}

func (s *Stats) logThroughput(log *slog.Logger) {
	processed := s.Processed.Load()
	if processed%throughputLogInterval == 0 {
		log.Info("worker throughput",
			"received", s.Received.Load(),
			"processed", processed,
			"analyzer_errors", s.AnalyzerErrors.Load(),
		)
	}
}
