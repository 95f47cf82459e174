package analyzer

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jalas-labs/ripflow/internal/config"
	"github.com/jalas-labs/ripflow/internal/core"
)

// crashAfterAnalyzer is a single-output passthrough analyzer that
// returns an AnalyzerFault once it has handled more than crashAfter
// events, simulating an analysis routine that degrades under sustained
// load. It exists to drive the supervisor's restart-policy tests
// (spec.md scenario S2) without needing a real analysis failure mode.
type crashAfterAnalyzer struct {
	fakeLoad   time.Duration
	crashAfter int64
	calls      atomic.Int64
}

// crashAfterConfig is the typed shape of crashAfterAnalyzer's config
// map, decoded via config.DecodeCapability so a YAML-sourced
// "fake_load: 10ms" string lands in FakeLoad as a time.Duration instead
// of needing a hand-rolled type assertion per field.
type crashAfterConfig struct {
	CrashAfter int           `mapstructure:"crash_after"`
	FakeLoad   time.Duration `mapstructure:"fake_load"`
}

func newCrashAfterAnalyzer(cfg map[string]any) (Analyzer, error) {
	var decoded crashAfterConfig
	decoded.CrashAfter = -1
	if err := config.DecodeCapability(cfg, &decoded); err != nil {
		return nil, &core.ConfigError{Field: "crash-after", Reason: err.Error()}
	}

	return &crashAfterAnalyzer{
		crashAfter: int64(decoded.CrashAfter),
		fakeLoad:   decoded.FakeLoad,
	}, nil
}

func (*crashAfterAnalyzer) NOutputs() int { return 1 }

func (a *crashAfterAnalyzer) Run(event core.RawEvent) (core.AnalyzedBatch, error) {
	if a.fakeLoad > 0 {
		time.Sleep(a.fakeLoad)
	}

	calls := a.calls.Add(1)
	if a.crashAfter >= 0 && calls > a.crashAfter {
		return core.AnalyzedBatch{}, &core.AnalyzerFault{
			Analyzer: "crash-after",
			Cause:    fmt.Errorf("simulated fault after %d calls", calls),
		}
	}

	return core.AnalyzedBatch{
		Properties: []core.AnalyzedProperty{
			{OutputIndex: 0, Macropulse: event.Macropulse, Timestamp: event.Timestamp, Name: event.Name, Data: event.Data},
		},
	}, nil
}
