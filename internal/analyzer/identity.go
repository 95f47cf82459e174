package analyzer

import "github.com/jalas-labs/ripflow/internal/core"

// identityAnalyzer passes each RawEvent through to its single output
// unchanged. Used as the default analyzer and as a baseline in tests
// exercising the producer/worker/sender wiring without any real
// analysis logic in the way.
type identityAnalyzer struct{}

func newIdentityAnalyzer(_ map[string]any) (Analyzer, error) {
	return identityAnalyzer{}, nil
}

func (identityAnalyzer) NOutputs() int { return 1 }

func (identityAnalyzer) Run(event core.RawEvent) (core.AnalyzedBatch, error) {
	return core.AnalyzedBatch{
		Properties: []core.AnalyzedProperty{
			{
				OutputIndex:   0,
				Macropulse:    event.Macropulse,
				Timestamp:     event.Timestamp,
				Name:          event.Name,
				Data:          event.Data,
				Miscellaneous: event.Miscellaneous,
			},
		},
	}, nil
}
