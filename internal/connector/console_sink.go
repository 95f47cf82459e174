package connector

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jalas-labs/ripflow/internal/config"
	"github.com/jalas-labs/ripflow/internal/core"
	"github.com/jalas-labs/ripflow/internal/serializer"
)

// consoleSink writes each frame to stdout, one line per frame, prefixed
// with its output index. Grounded on the original STDOUTSinkConnector:
// a trivial sink used for local runs and tests where standing up a real
// external subscriber isn't worth the ceremony.
type consoleSink struct {
	serializer serializer.Serializer
	connected  atomic.Bool
	idx        int

	mu sync.Mutex
}

// consoleSinkConfig is the typed shape of consoleSink's config map,
// decoded via config.DecodeCapability.
type consoleSinkConfig struct {
	Serializer string `mapstructure:"serializer"`
}

func newConsoleSink(cfg map[string]any) (Sink, error) {
	var decoded consoleSinkConfig
	if err := config.DecodeCapability(cfg, &decoded); err != nil {
		return nil, &core.ConfigError{Field: "serializer", Reason: err.Error()}
	}

	name := decoded.Serializer
	if name == "" {
		name = "json"
	}
	factory, ok := serializer.Get(name)
	if !ok {
		return nil, &core.ConfigError{Field: "serializer", Reason: fmt.Sprintf("unknown serializer %q", name)}
	}
	ser, err := factory(nil)
	if err != nil {
		return nil, err
	}
	return &consoleSink{serializer: ser}, nil
}

func (s *consoleSink) ConnectSubprocess(idx int) error {
	if !s.connected.CompareAndSwap(false, true) {
		return &core.SinkFault{Sink: "console", Cause: fmt.Errorf("ConnectSubprocess called more than once")}
	}
	s.idx = idx
	return nil
}

func (s *consoleSink) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("[sender %d] %s\n", s.idx, frame)
	return nil
}

func (s *consoleSink) Serializer() serializer.Serializer { return s.serializer }
