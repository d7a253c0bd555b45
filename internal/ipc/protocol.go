// Package ipc is the daemon control channel: one JSON request line and one
// JSON response line per connection, over a per-user named pipe on Windows
// and a per-user unix socket elsewhere.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"

	"capschord/internal/action"
	"capschord/internal/chord"
	"capschord/internal/sessionlog"
	"capschord/internal/userutil"
)

const pipeNameEnv = "CAPSCHORD_PIPE"

// Control commands.
const (
	CommandStatus   = "status"
	CommandFreeze   = "freeze"
	CommandUnfreeze = "unfreeze"
	CommandClear    = "clear"
	CommandReload   = "reload"
)

var knownCommands = []string{CommandStatus, CommandFreeze, CommandUnfreeze, CommandClear, CommandReload}

// IsKnownCommand reports whether cmd is one of the control commands.
func IsKnownCommand(cmd string) bool {
	return slices.Contains(knownCommands, cmd)
}

// ControlRequest is a single control command.
type ControlRequest struct {
	ID      string `json:"id"`
	Command string `json:"command"`
}

// NewRequest returns a request for cmd with a fresh ID.
func NewRequest(cmd string) ControlRequest {
	return ControlRequest{ID: uuid.NewString(), Command: cmd}
}

// Status describes the running daemon.
type Status struct {
	PID        int                `json:"pid"`
	Chord      chord.State        `json:"chord"`
	Listeners  int                `json:"listeners"`
	Bindings   int                `json:"bindings"`
	Actions    action.Stats       `json:"actions"`
	ConfigPath string             `json:"config_path"`
	LogLevel   string             `json:"log_level"`
	Warnings   []sessionlog.Entry `json:"warnings,omitempty"`
}

// ControlResponse answers a ControlRequest. ID echoes the request ID.
type ControlResponse struct {
	ID      string  `json:"id"`
	OK      bool    `json:"ok"`
	Message string  `json:"message,omitempty"`
	Error   string  `json:"error,omitempty"`
	Status  *Status `json:"status,omitempty"`
}

// Executor handles a control request and returns a response.
type Executor interface {
	Execute(req ControlRequest) ControlResponse
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(req ControlRequest) ControlResponse

// Execute calls f(req).
func (f ExecutorFunc) Execute(req ControlRequest) ControlResponse {
	return f(req)
}

func errorResponse(id string, format string, args ...any) ControlResponse {
	return ControlResponse{ID: id, Error: fmt.Sprintf(format, args...)}
}

// DefaultPipeName returns the control endpoint to use. CAPSCHORD_PIPE
// overrides the per-user default when it passes platform validation.
func DefaultPipeName() string {
	if v, ok := trustedPipeNameFromEnv(); ok {
		return v
	}
	return defaultEndpoint(userutil.CurrentUsername())
}

func trustedPipeNameFromEnv() (string, bool) {
	value := strings.TrimSpace(os.Getenv(pipeNameEnv))
	if value == "" {
		return "", false
	}
	if !validEndpoint(value) {
		slog.Warn("[ipc] "+pipeNameEnv+" rejected: value does not match allowed pattern", "value", value)
		return "", false
	}
	return value, true
}

func encodeRequest(req ControlRequest) ([]byte, error) {
	return json.Marshal(req)
}

func decodeRequest(raw []byte) (ControlRequest, error) {
	var req ControlRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return ControlRequest{}, err
	}
	req.Command = strings.TrimSpace(req.Command)
	if req.Command == "" {
		return ControlRequest{}, errors.New("command is required")
	}
	return req, nil
}

func encodeResponse(resp ControlResponse) ([]byte, error) {
	return json.Marshal(resp)
}

func decodeResponse(raw []byte) (ControlResponse, error) {
	var resp ControlResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ControlResponse{}, err
	}
	return resp, nil
}
