package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/jalas-labs/ripflow/internal/metrics"
)

// reportInterval is how often a child process pushes its local counter
// delta back to the supervisor. Short enough that `ripflow status`
// reflects a running pipeline within a couple of seconds, long enough
// that it never competes meaningfully with the fabric for CPU.
const reportInterval = 2 * time.Second

// ReportParams is the payload a producer/worker/sender sends on
// "report": the increase in its local counters since the last report.
// Every producer/worker/sender runs as its own OS process, so this is
// the only way its counts ever reach the supervisor's metrics.Counters.
type ReportParams struct {
	EventsProduced  uint64 `json:"events_produced"`
	EventsProcessed uint64 `json:"events_processed"`
	AnalyzerErrors  uint64 `json:"analyzer_errors"`
	FramesSent      uint64 `json:"frames_sent"`
}

// Snapshot converts ReportParams into the metrics.Snapshot shape
// Counters.Add expects.
func (p ReportParams) Snapshot() metrics.Snapshot {
	return metrics.Snapshot{
		EventsProduced:  p.EventsProduced,
		EventsProcessed: p.EventsProcessed,
		AnalyzerErrors:  p.AnalyzerErrors,
		FramesSent:      p.FramesSent,
	}
}

// Reporter periodically calls "report" against a supervisor's control
// socket, computing each call's delta from whatever cumulative counts
// the caller's Run loop is already tracking locally.
type Reporter struct {
	client *UDSClient
}

// NewReporter creates a reporter that dials socketPath on every report.
// An empty socketPath disables reporting: Run returns immediately.
func NewReporter(socketPath string) *Reporter {
	if socketPath == "" {
		return &Reporter{}
	}
	return &Reporter{client: NewUDSClient(socketPath, 1*time.Second)}
}

// Run blocks calling counts every reportInterval and sending the
// cumulative-to-delta difference as a "report" command, until ctx is
// done. A failed report (supervisor not listening yet, socket gone
// during shutdown) is logged and skipped rather than treated as fatal:
// losing one counter update is never worth killing the process over.
func (r *Reporter) Run(ctx context.Context, counts func() ReportParams) {
	if r.client == nil {
		return
	}

	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	var last ReportParams
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := counts()
			delta := ReportParams{
				EventsProduced:  current.EventsProduced - last.EventsProduced,
				EventsProcessed: current.EventsProcessed - last.EventsProcessed,
				AnalyzerErrors:  current.AnalyzerErrors - last.AnalyzerErrors,
				FramesSent:      current.FramesSent - last.FramesSent,
			}
			last = current

			if _, err := r.client.Call(ctx, "report", delta); err != nil {
				slog.Debug("counter report failed", "error", err)
			}
		}
	}
}
