// Package analyzer defines the injected analysis capability a worker
// invokes once per RawEvent, plus the built-in analyzers used for
// testing and for the reference projection pipeline.
package analyzer

import "github.com/jalas-labs/ripflow/internal/core"

// Analyzer is the capability a worker process runs against every
// RawEvent it pulls off the ingress channel. NOutputs is fixed for the
// lifetime of the pipeline and determines the sender count K; every
// property Run returns must carry an OutputIndex in [0, K), which the
// worker enforces. An index may receive no property for a given event —
// the sender simply sees nothing that tick.
type Analyzer interface {
	NOutputs() int
	Run(event core.RawEvent) (core.AnalyzedBatch, error)
}

// Factory constructs a named Analyzer from a free-form config map.
type Factory func(cfg map[string]any) (Analyzer, error)

var registry = map[string]Factory{}

// Register adds a named analyzer factory. Panics on duplicate
// registration: a name collision here is a build-time programming
// error, not something a running pipeline should tolerate.
func Register(name string, f Factory) {
	if _, exists := registry[name]; exists {
		panic("analyzer: factory already registered: " + name)
	}
	registry[name] = f
}

// Get resolves a registered analyzer factory by name.
func Get(name string) (Factory, bool) {
	f, ok := registry[name]
	return f, ok
}

func init() {
	Register("identity", newIdentityAnalyzer)
	Register("crash-after", newCrashAfterAnalyzer)
	Register("projection", newProjectionAnalyzer)
}
