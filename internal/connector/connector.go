// Package connector defines the source and sink capabilities a user
// injects into a pipeline, plus the built-in implementations used for
// tests and the reference deployment.
package connector

import (
	"context"

	"github.com/jalas-labs/ripflow/internal/core"
	"github.com/jalas-labs/ripflow/internal/serializer"
)

// Source is the capability the producer process drives. Connect must be
// idempotent: the producer calls it exactly once per process lifetime,
// but a restarted producer calls it again in the fresh process.
// GetData blocks until an event is available or ctx's deadline elapses,
// in which case it returns an error wrapping core.ErrSourceTimeout.
type Source interface {
	Connect() error
	GetData(ctx context.Context) (core.RawEvent, error)
}

// Sink is the capability each sender process drives. ConnectSubprocess
// must be called exactly once, inside the spawned sender process, and
// binds whatever external transport the sink uses for output idx. Send
// never blocks on a slow external subscriber.
type Sink interface {
	ConnectSubprocess(idx int) error
	Send(frame []byte) error
	Serializer() serializer.Serializer
}

// SourceFactory constructs a named Source from a free-form config map.
type SourceFactory func(cfg map[string]any) (Source, error)

// SinkFactory constructs a named Sink from a free-form config map.
type SinkFactory func(cfg map[string]any) (Sink, error)

var (
	sourceRegistry = map[string]SourceFactory{}
	sinkRegistry   = map[string]SinkFactory{}
)

// RegisterSource adds a named source factory. Panics on duplicate
// registration.
func RegisterSource(name string, f SourceFactory) {
	if _, exists := sourceRegistry[name]; exists {
		panic("connector: source factory already registered: " + name)
	}
	sourceRegistry[name] = f
}

// GetSourceFactory resolves a registered source factory by name.
func GetSourceFactory(name string) (SourceFactory, bool) {
	f, ok := sourceRegistry[name]
	return f, ok
}

// RegisterSink adds a named sink factory. Panics on duplicate
// registration.
func RegisterSink(name string, f SinkFactory) {
	if _, exists := sinkRegistry[name]; exists {
		panic("connector: sink factory already registered: " + name)
	}
	sinkRegistry[name] = f
}

// GetSinkFactory resolves a registered sink factory by name.
func GetSinkFactory(name string) (SinkFactory, bool) {
	f, ok := sinkRegistry[name]
	return f, ok
}

func init() {
	RegisterSource("memory", newMemorySource)
	RegisterSink("console", newConsoleSink)
	RegisterSink("tcp-pub", newPubSink)
}
