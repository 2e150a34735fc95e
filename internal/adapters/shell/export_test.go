package shell

import (
	"context"
	"os/exec"

	"go.trai.ch/kiln/internal/core/domain"
)

// WithUID overrides the uid the launcher believes it runs as.
func (l *Launcher) WithUID(uid int) *Launcher {
	l.getuid = func() int { return uid }
	return l
}

// Command exposes the unstarted process for spec.
func (l *Launcher) Command(ctx context.Context, spec domain.LaunchSpec, opts domain.LaunchOptions) (*exec.Cmd, error) {
	return l.command(ctx, spec, opts)
}

// WindowSize exposes the pseudo-terminal size chosen for w.
var WindowSize = windowSize
