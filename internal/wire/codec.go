// Package wire implements the msgpack encoding of RawEvents carried from
// the producer to the workers on the internal ingress channel. Egress
// frames are produced by the sink's serializer, not by this package.
package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/jalas-labs/ripflow/internal/core"
)

// EncodeEvent serializes a RawEvent for transmission from the producer to
// a worker's ingress channel.
func EncodeEvent(ev core.RawEvent) ([]byte, error) {
	b, err := msgpack.Marshal(&ev)
	if err != nil {
		return nil, fmt.Errorf("wire: encode event: %w", err)
	}
	return b, nil
}

// DecodeEvent is the inverse of EncodeEvent. Data is restored to the
// concrete numeric shape analyzers expect (see restoreNumericShape):
// msgpack decodes an `any` field generically, and a raw []interface{}
// would fail every analyzer's type assertion.
func DecodeEvent(b []byte) (core.RawEvent, error) {
	var ev core.RawEvent
	if err := msgpack.Unmarshal(b, &ev); err != nil {
		return core.RawEvent{}, fmt.Errorf("wire: decode event: %w", err)
	}
	ev.Data = restoreNumericShape(ev.Data)
	return ev, nil
}

// EncodeProperty serializes a single AnalyzedProperty with msgpack. The
// worker does not use it on its egress path (it sends the sink
// serializer's output there). OutputIndex is carried by the channel
// itself, not the payload, so it is not part of the wire form produced
// here.
func EncodeProperty(p core.AnalyzedProperty) ([]byte, error) {
	b, err := msgpack.Marshal(&p)
	if err != nil {
		return nil, fmt.Errorf("wire: encode property: %w", err)
	}
	return b, nil
}

// DecodeProperty is the inverse of EncodeProperty.
func DecodeProperty(b []byte) (core.AnalyzedProperty, error) {
	var p core.AnalyzedProperty
	if err := msgpack.Unmarshal(b, &p); err != nil {
		return core.AnalyzedProperty{}, fmt.Errorf("wire: decode property: %w", err)
	}
	p.Data = restoreNumericShape(p.Data)
	return p, nil
}

// restoreNumericShape undoes msgpack's generic decode of an `any` field:
// an array decodes as []interface{} regardless of what concrete slice
// type was encoded, and a 2-D array decodes as []interface{} of
// []interface{}. Every built-in analyzer expects Data to come back as
// either []float64 or [][]float64 when it was encoded as one, so this
// walks the decoded shape once and rebuilds the concrete type. Anything
// that isn't a uniform numeric array (scalars, strings, maps) passes
// through unchanged.
func restoreNumericShape(v any) any {
	items, ok := v.([]interface{})
	if !ok || len(items) == 0 {
		return v
	}

	rows := make([][]float64, len(items))
	allRows := true
	for i, item := range items {
		row, ok := toFloat64Slice(item)
		if !ok {
			allRows = false
			break
		}
		rows[i] = row
	}
	if allRows {
		return rows
	}

	if flat, ok := toFloat64Slice(items); ok {
		return flat
	}
	return v
}

func toFloat64Slice(v interface{}) ([]float64, bool) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]float64, len(items))
	for i, item := range items {
		f, ok := toFloat64(item)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}
