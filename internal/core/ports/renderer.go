package ports

import (
	"context"
	"time"
)

// Renderer is the abstraction for output rendering.
// It decouples telemetry collection from presentation logic.
//
//go:generate mockgen -source=renderer.go -destination=mocks/mock_renderer.go -package=mocks
type Renderer interface {
	// Start initializes the renderer and begins its lifecycle.
	Start(ctx context.Context) error

	// Stop signals the renderer to stop accepting new events and flush buffered output.
	Stop() error

	// Wait blocks until the renderer has fully terminated.
	Wait() error

	// OnPlanEmit is called once with the ordered stage names of a build.
	OnPlanEmit(stages []string)

	// OnTaskStart is called when a stage or step begins.
	// spanID: unique identifier for this execution
	// parentID: spanID of the parent (empty if root)
	OnTaskStart(spanID, parentID, name string, startTime time.Time)

	// OnTaskLog is called when a stage emits output.
	// data: raw log bytes (may contain partial lines)
	OnTaskLog(spanID string, data []byte)

	// OnTaskComplete is called when a stage finishes.
	// err: nil if successful, error otherwise
	OnTaskComplete(spanID string, endTime time.Time, err error)
}
