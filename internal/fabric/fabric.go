// Package fabric implements the internal message fabric's abstract
// factory (context / channel / cleanup) and its two concrete
// transports: length-prefixed Unix domain socket streams for
// PUSH/PULL, and broadcast-on-connect TCP for PUB/SUB.
package fabric

import (
	"fmt"
	"sync"

	"github.com/jalas-labs/ripflow/internal/core"
)

// Role is one of the six channel roles a ChannelSpec may declare.
type Role int

const (
	PushBind Role = iota
	PullConnect
	PullBind
	PushConnect
	PubBind
	SubConnect
)

func (r Role) String() string {
	switch r {
	case PushBind:
		return "push-bind"
	case PullConnect:
		return "pull-connect"
	case PullBind:
		return "pull-bind"
	case PushConnect:
		return "push-connect"
	case PubBind:
		return "pub-bind"
	case SubConnect:
		return "sub-connect"
	default:
		return "unknown"
	}
}

// ChannelSpec describes one endpoint to create within a Context.
type ChannelSpec struct {
	Role    Role
	Address string
	Extra   map[string]any
}

// Channel is a bound or connected fabric endpoint. Which of Send/Receive
// is meaningful depends on the role the channel was created with; callers
// are expected to know which side they opened.
type Channel interface {
	Send(frame []byte) error
	Receive() ([]byte, error)
	Close() error
}

// Context is the per-process fabric root. It tracks every channel it has
// created so Cleanup can best-effort close all of them at once, mirroring
// the create_context/create_channel/cleanup abstract factory.
type Context struct {
	baseDir string

	mu       sync.Mutex
	channels []Channel
}

// CreateContext opens a fabric context rooted at baseDir, the directory
// under which internal Unix domain sockets for this process are placed.
func CreateContext(baseDir string) *Context {
	return &Context{baseDir: baseDir}
}

// CreateChannel realizes spec as a concrete channel within ctx.
func (c *Context) CreateChannel(spec ChannelSpec) (Channel, error) {
	if spec.Address == "" {
		return nil, &core.ConfigError{Field: "address", Reason: "channel address must not be empty"}
	}

	var ch Channel
	var err error
	switch spec.Role {
	case PushBind, PullBind:
		ch, err = newStreamChannel(c.baseDir, spec, true)
	case PullConnect, PushConnect:
		ch, err = newStreamChannel(c.baseDir, spec, false)
	case PubBind:
		ch, err = newBroadcastChannel(spec, true)
	case SubConnect:
		ch, err = newBroadcastChannel(spec, false)
	default:
		return nil, &core.ConfigError{Field: "role", Reason: fmt.Sprintf("unknown channel role %d", spec.Role)}
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.channels = append(c.channels, ch)
	c.mu.Unlock()
	return ch, nil
}

// Cleanup best-effort closes every channel this context has created. It
// never returns an error: a child tearing down after a fault must not
// fail a second time on its own cleanup path.
func (c *Context) Cleanup() {
	c.mu.Lock()
	channels := c.channels
	c.channels = nil
	c.mu.Unlock()

	for _, ch := range channels {
		_ = ch.Close()
	}
}
