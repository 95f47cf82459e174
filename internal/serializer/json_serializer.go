package serializer

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/jalas-labs/ripflow/internal/core"
)

// jsonSerializer renders an AnalyzedProperty as a JSON object. Numeric
// payloads shaped like a flattened array (the Go analogue of a numpy
// ndarray crossing a serialization boundary) are passed through
// encoding/json's native slice support; the one adjustment this
// serializer makes on top of encoding/json is replacing non-finite
// floats (NaN, +/-Inf) with null, since encoding/json rejects them
// outright and acquisition data routinely contains them (saturated
// detector channels, a projection over an all-zero frame).
type jsonSerializer struct{}

func newJSONSerializer(_ map[string]any) (Serializer, error) {
	return jsonSerializer{}, nil
}

func (jsonSerializer) Serialize(prop core.AnalyzedProperty) ([]byte, error) {
	doc := map[string]any{
		"name":       prop.Name,
		"macropulse": prop.Macropulse,
		"timestamp":  prop.Timestamp,
		"data":       sanitizeFloats(prop.Data),
	}
	if prop.Type != "" {
		doc["type"] = prop.Type
	}
	if len(prop.Miscellaneous) > 0 {
		doc["miscellaneous"] = prop.Miscellaneous
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("serializer: json encode: %w", err)
	}
	return b, nil
}

// sanitizeFloats walks the common shapes a numeric payload takes on
// (scalar, flat slice, slice of slices) and replaces any NaN/Inf value
// with nil so the result always round-trips through encoding/json.
func sanitizeFloats(v any) any {
	switch d := v.(type) {
	case float64:
		return sanitizeFloat64(d)
	case float32:
		return sanitizeFloat64(float64(d))
	case []float64:
		out := make([]any, len(d))
		for i, f := range d {
			out[i] = sanitizeFloat64(f)
		}
		return out
	case []float32:
		out := make([]any, len(d))
		for i, f := range d {
			out[i] = sanitizeFloat64(float64(f))
		}
		return out
	case [][]float64:
		out := make([]any, len(d))
		for i, row := range d {
			out[i] = sanitizeFloats(row)
		}
		return out
	default:
		return v
	}
}

func sanitizeFloat64(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
