package core

import (
	"errors"
	"testing"
	"time"
)

func TestRawEventZeroValue(t *testing.T) {
	var ev RawEvent
	if ev.Macropulse != 0 {
		t.Errorf("zero value Macropulse = %d, want 0", ev.Macropulse)
	}
	if !ev.Timestamp.IsZero() {
		t.Errorf("zero value Timestamp = %v, want zero", ev.Timestamp)
	}
	if ev.Data != nil {
		t.Errorf("zero value Data = %v, want nil", ev.Data)
	}
	if ev.Miscellaneous != nil {
		t.Errorf("zero value Miscellaneous = %v, want nil", ev.Miscellaneous)
	}
}

func TestAnalyzedBatchFanout(t *testing.T) {
	now := time.Now()
	batch := AnalyzedBatch{
		Properties: []AnalyzedProperty{
			{OutputIndex: 0, Name: "projection-x", Timestamp: now, Data: []float64{1, 2, 3}},
			{OutputIndex: 1, Name: "sum", Timestamp: now, Data: 6.0},
		},
	}
	if len(batch.Properties) != 2 {
		t.Fatalf("len(Properties) = %d, want 2", len(batch.Properties))
	}
	seen := map[int]bool{}
	for _, p := range batch.Properties {
		seen[p.OutputIndex] = true
	}
	for _, idx := range []int{0, 1} {
		if !seen[idx] {
			t.Errorf("output index %d missing from batch", idx)
		}
	}
}

func TestSentinelErrorIdentity(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"config error", &ConfigError{Field: "workers", Reason: "must be > 0"}, ErrConfigError},
		{"source timeout", &SourceTimeout{Source: "file", Timeout: "5s"}, ErrSourceTimeout},
		{"analyzer fault", &AnalyzerFault{Analyzer: "projector", Cause: errors.New("boom")}, ErrAnalyzerFault},
		{"transport fault", &TransportFault{Address: "ipc://source", Cause: errors.New("broken pipe")}, ErrTransportFault},
		{"sink fault", &SinkFault{Sink: "console", Cause: errors.New("closed")}, ErrSinkFault},
		{"restart budget exhausted", &RestartBudgetExhausted{Process: "worker-0", Count: 3}, ErrRestartBudgetExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("errors.Is(%v, %v) = false, want true", tt.err, tt.want)
			}
		})
	}
}

func TestAnalyzerFaultWrapsCause(t *testing.T) {
	cause := errors.New("division by zero")
	fault := &AnalyzerFault{Analyzer: "projector", Cause: cause}
	if !errors.Is(fault, cause) {
		t.Errorf("errors.Is(fault, cause) = false, want true")
	}
	if !errors.Is(fault, ErrAnalyzerFault) {
		t.Errorf("errors.Is(fault, ErrAnalyzerFault) = false, want true")
	}
}

func TestConfigErrorMessage(t *testing.T) {
	err := &ConfigError{Field: "n_outputs", Reason: "analyzer must declare at least one output"}
	want := "ripflow: invalid configuration: n_outputs: analyzer must declare at least one output"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
