package mcpserver

import (
	"errors"
	"fmt"

	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/cluster"
)

var (
	// ErrInvalidInput marks caller errors such as an empty name or image.
	ErrInvalidInput = errors.New("invalid mcp server request")
	// ErrNotFound means the cluster has no MCPServer with the given name.
	ErrNotFound = errors.New("mcp server not found")
	// ErrAlreadyExists is returned when create collides with a live server.
	ErrAlreadyExists = errors.New("mcp server already exists")
	// ErrBadGateway classifies every other upstream failure.
	ErrBadGateway = errors.New("bad gateway")
	// ErrServerFailed means the operator reported the Failed phase.
	ErrServerFailed = errors.New("mcp server failed")
	// ErrPollTimeout means the server neither became ready nor failed in time.
	ErrPollTimeout = errors.New("timed out waiting for mcp server")
)

// UpstreamError wraps a cluster failure with the operation that caused it.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s mcp server: %s", e.Op, cluster.Message(e.Err))
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is lets callers match any upstream failure against ErrBadGateway.
func (e *UpstreamError) Is(target error) bool { return target == ErrBadGateway }

// FailedError carries the operator's reason for a Failed server.
type FailedError struct {
	Name    string
	Message string
}

func (e *FailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("mcp server %s failed", e.Name)
	}
	return e.Message
}

// Is matches ErrServerFailed.
func (e *FailedError) Is(target error) bool { return target == ErrServerFailed }

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
