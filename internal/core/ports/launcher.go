package ports

import (
	"context"
	"io"

	"go.trai.ch/kiln/internal/core/domain"
)

// Launcher runs a launch spec as a host process.
//
//go:generate mockgen -source=launcher.go -destination=mocks/mock_launcher.go -package=mocks
type Launcher interface {
	// Launch runs the launch spec with exactly its environment, as its identity, and waits for exit.
	Launch(ctx context.Context, spec domain.LaunchSpec, opts domain.LaunchOptions, stdout, stderr io.Writer) error
}
