package connector

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jalas-labs/ripflow/internal/config"
	"github.com/jalas-labs/ripflow/internal/core"
)

// itemDelay is the pacing delay between successive events, matching the
// original reference source connector's per-item delay.
const itemDelay = 50 * time.Millisecond

// exhaustedPollInterval is how often an exhausted memorySource checks
// whether its caller has given up waiting for more data that will never
// come, rather than returning immediately and letting the producer spin.
const exhaustedPollInterval = 1 * time.Second

// memorySource replays a fixed sequence of events, one per GetData call,
// pacing them by itemDelay. Once the sequence is exhausted it blocks
// until ctx is done, at which point GetData returns a SourceTimeout —
// this is the built-in source used by tests driving the producer/worker
// wiring without any real acquisition hardware.
type memorySource struct {
	events []core.RawEvent
	cursor atomic.Int64
	name   string
}

// memorySourceConfig is the typed shape of memorySource's config map,
// decoded via config.DecodeCapability.
type memorySourceConfig struct {
	Events []core.RawEvent `mapstructure:"events"`
}

func newMemorySource(cfg map[string]any) (Source, error) {
	var decoded memorySourceConfig
	if err := config.DecodeCapability(cfg, &decoded); err != nil {
		return nil, &core.ConfigError{Field: "events", Reason: err.Error()}
	}
	return &memorySource{events: decoded.Events, name: "memory"}, nil
}

func (s *memorySource) Connect() error { return nil }

func (s *memorySource) GetData(ctx context.Context) (core.RawEvent, error) {
	idx := s.cursor.Add(1) - 1
	if int(idx) < len(s.events) {
		select {
		case <-time.After(itemDelay):
		case <-ctx.Done():
			return core.RawEvent{}, &core.SourceTimeout{Source: s.name, Timeout: ctx.Err().Error()}
		}
		return s.events[idx], nil
	}

	for {
		select {
		case <-ctx.Done():
			return core.RawEvent{}, &core.SourceTimeout{Source: s.name, Timeout: "sequence exhausted"}
		case <-time.After(exhaustedPollInterval):
		}
	}
}
