package analyzer

import "github.com/jalas-labs/ripflow/internal/core"

// projectionAnalyzer is the reference two-output analyzer: given a 2D
// image (a [][]float64 frame), output 0 is the column-wise sum
// projection (image.sum(axis=0) in the original) and output 1 is the
// scalar total sum. Events whose Data is not a [][]float64 are passed
// through unanalyzed on output 0 and produce no output-1 property,
// matching the original's tolerant behavior for malformed frames.
type projectionAnalyzer struct{}

func newProjectionAnalyzer(_ map[string]any) (Analyzer, error) {
	return projectionAnalyzer{}, nil
}

func (projectionAnalyzer) NOutputs() int { return 2 }

func (projectionAnalyzer) Run(event core.RawEvent) (core.AnalyzedBatch, error) {
	image, ok := event.Data.([][]float64)
	if !ok || len(image) == 0 {
		return core.AnalyzedBatch{
			Properties: []core.AnalyzedProperty{
				{OutputIndex: 0, Macropulse: event.Macropulse, Timestamp: event.Timestamp, Name: event.Name, Data: event.Data, Type: "projection"},
			},
		}, nil
	}

	cols := len(image[0])
	projection := make([]float64, cols)
	var total float64
	for _, row := range image {
		for c, v := range row {
			if c < cols {
				projection[c] += v
				total += v
			}
		}
	}

	return core.AnalyzedBatch{
		Properties: []core.AnalyzedProperty{
			{
				OutputIndex: 0,
				Macropulse:  event.Macropulse,
				Timestamp:   event.Timestamp,
				Name:        event.Name + "-projection",
				Data:        projection,
				Type:        "projection",
			},
			{
				OutputIndex: 1,
				Macropulse:  event.Macropulse,
				Timestamp:   event.Timestamp,
				Name:        event.Name + "-sum",
				Data:        total,
				Type:        "scalar",
			},
		},
	}, nil
}
