// Package serializer turns an AnalyzedProperty's opaque Data payload
// into the byte frame a sink connector transmits externally.
package serializer

import "github.com/jalas-labs/ripflow/internal/core"

// Serializer converts one AnalyzedProperty into bytes. Used by the
// worker, never by the sender: heavy transforms parallelize across
// workers, and senders stay pure I/O multiplexers.
type Serializer interface {
	Serialize(prop core.AnalyzedProperty) ([]byte, error)
}

// Factory constructs a named Serializer from a free-form config map, the
// same shape every connector/analyzer factory in this module takes.
type Factory func(cfg map[string]any) (Serializer, error)

var registry = map[string]Factory{}

// Register adds a named serializer factory. Panics on duplicate
// registration, matching the fail-fast style of this module's other
// capability registries: a name collision is a programming error, not a
// runtime condition to recover from.
func Register(name string, f Factory) {
	if _, exists := registry[name]; exists {
		panic("serializer: factory already registered: " + name)
	}
	registry[name] = f
}

// Get resolves a registered serializer factory by name.
func Get(name string) (Factory, bool) {
	f, ok := registry[name]
	return f, ok
}

func init() {
	Register("json", newJSONSerializer)
}
