package connector

import (
	"fmt"
	"sync/atomic"

	"github.com/jalas-labs/ripflow/internal/config"
	"github.com/jalas-labs/ripflow/internal/core"
	"github.com/jalas-labs/ripflow/internal/fabric"
	"github.com/jalas-labs/ripflow/internal/serializer"
)

// pubSink publishes every frame on a TCP PUB socket bound at
// tcp://*:<basePort+idx>, the reference external output transport named
// in spec.md §4.1. ConnectSubprocess binds the socket; it is an error to
// call it more than once, matching the sink contract's idempotency note.
type pubSink struct {
	basePort   int
	serializer serializer.Serializer

	connected atomic.Bool
	ctx       *fabric.Context
	channel   fabric.Channel
}

// pubSinkConfig is the typed shape of pubSink's config map, decoded via
// config.DecodeCapability. BasePort defaults to -1 (absent) so a missing
// or non-numeric value is rejected rather than silently binding port 0.
type pubSinkConfig struct {
	BasePort   int    `mapstructure:"base_port"`
	Serializer string `mapstructure:"serializer"`
}

func newPubSink(cfg map[string]any) (Sink, error) {
	decoded := pubSinkConfig{BasePort: -1}
	if err := config.DecodeCapability(cfg, &decoded); err != nil {
		return nil, &core.ConfigError{Field: "base_port", Reason: err.Error()}
	}
	if decoded.BasePort < 0 {
		return nil, &core.ConfigError{Field: "base_port", Reason: "must be a non-negative int"}
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

	return &pubSink{basePort: decoded.BasePort, serializer: ser}, nil
}

func (s *pubSink) ConnectSubprocess(idx int) error {
	if !s.connected.CompareAndSwap(false, true) {
		return &core.SinkFault{Sink: "tcp-pub", Cause: fmt.Errorf("ConnectSubprocess called more than once")}
	}

	s.ctx = fabric.CreateContext("")
	address := fmt.Sprintf("tcp://*:%d", s.basePort+idx)
	ch, err := s.ctx.CreateChannel(fabric.ChannelSpec{Role: fabric.PubBind, Address: address})
	if err != nil {
		return &core.SinkFault{Sink: "tcp-pub", Cause: err}
	}
	s.channel = ch
	return nil
}

func (s *pubSink) Send(frame []byte) error {
	if s.channel == nil {
		return &core.SinkFault{Sink: "tcp-pub", Cause: fmt.Errorf("ConnectSubprocess not called")}
	}
	if err := s.channel.Send(frame); err != nil {
		return &core.SinkFault{Sink: "tcp-pub", Cause: err}
	}
	return nil
}

func (s *pubSink) Serializer() serializer.Serializer { return s.serializer }
