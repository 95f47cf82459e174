// Package command implements the local control plane: a small JSON-RPC
// protocol spoken over the Unix socket named in config.ControlConfig,
// letting the `ripflow status` and `ripflow stop` subcommands talk to
// a running supervisor without sharing its address space.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jalas-labs/ripflow/internal/metrics"
	"github.com/jalas-labs/ripflow/internal/supervisor"
)

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     string          `json:"id"`
}

// Response represents a command response.
type Response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSON-RPC 2.0 error codes, per the spec's reserved range.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Runtime is the subset of ripflow.Runtime the control plane needs:
// enough to answer "status" and to trigger "stop" without this package
// importing the ripflow package back (ripflow imports command through
// the producer, worker and sender packages, which run a Reporter, so the
// dependency runs one way only).
type Runtime interface {
	Status() []supervisor.ProcessRecord
	Stop() error
}

// CommandHandler dispatches control plane commands against a running
// pipeline's Runtime and Counters.
type CommandHandler struct {
	runtime  Runtime
	counters *metrics.Counters
}

// NewCommandHandler creates a handler bound to one running pipeline.
func NewCommandHandler(runtime Runtime, counters *metrics.Counters) *CommandHandler {
	return &CommandHandler{runtime: runtime, counters: counters}
}

// Handle processes a command and returns a response.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	slog.Debug("handling control command", "method", cmd.Method, "id", cmd.ID)

	switch cmd.Method {
	case "status":
		return h.handleStatus(cmd)
	case "stop":
		return h.handleStop(cmd)
	case "report":
		return h.handleReport(cmd)
	case "ping":
		return Response{ID: cmd.ID, Result: "pong"}
	default:
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeMethodNotFound,
				Message: "unknown method: " + cmd.Method,
			},
		}
	}
}

// statusResult is what "status" returns: the supervisor's process
// bookkeeping plus the pipeline-wide throughput counters.
type statusResult struct {
	Processes []supervisor.ProcessRecord `json:"processes"`
	Counters  metrics.Snapshot           `json:"counters"`
}

func (h *CommandHandler) handleStatus(cmd Command) Response {
	result := statusResult{Processes: h.runtime.Status()}
	if h.counters != nil {
		result.Counters = h.counters.Snapshot()
	}
	return Response{ID: cmd.ID, Result: result}
}

// handleReport folds one child process's periodic counter delta into
// the pipeline-wide totals. Unlike status/stop, the caller here is a
// producer/worker/sender, not the CLI, so the response body carries no
// useful result beyond acknowledging receipt.
func (h *CommandHandler) handleReport(cmd Command) Response {
	var params ReportParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInvalidParams,
				Message: fmt.Sprintf("invalid report params: %v", err),
			},
		}
	}
	if h.counters != nil {
		h.counters.Add(params.Snapshot())
	}
	return Response{ID: cmd.ID, Result: "ack"}
}

func (h *CommandHandler) handleStop(cmd Command) Response {
	if err := h.runtime.Stop(); err != nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInternalError,
				Message: err.Error(),
			},
		}
	}
	return Response{ID: cmd.ID, Result: "stopped"}
}
