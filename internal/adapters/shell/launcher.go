// Package shell runs built images on the host as their runtime identity.
package shell

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/creack/pty"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/term"
)

// StopGracePeriod is how long a canceled process may take to exit after SIGTERM.
const StopGracePeriod = 10 * time.Second

var _ ports.Launcher = (*Launcher)(nil)

// Launcher implements ports.Launcher using os/exec.
type Launcher struct {
	logger ports.Logger
	getuid func() int
}

// NewLauncher creates a new Launcher.
func NewLauncher(logger ports.Logger) *Launcher {
	return &Launcher{logger: logger, getuid: os.Getuid}
}

// Launch runs the launch spec command with exactly its environment and waits for it to exit.
// A privileged caller drops to the launch spec identity; any other caller must already be that identity.
func (l *Launcher) Launch(
	ctx context.Context,
	spec domain.LaunchSpec,
	opts domain.LaunchOptions,
	stdout, stderr io.Writer,
) error {
	cmd, err := l.command(ctx, spec, opts)
	if err != nil {
		return err
	}

	l.logger.Info("launching " + strings.Join(spec.Cmd, " ") + " as " + spec.User)

	if opts.TTY {
		err = runTTY(cmd, stdout)
	} else {
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		err = cmd.Run()
	}
	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return zerr.With(zerr.Wrap(err, domain.ErrLaunchFailed.Error()), "exit_code", exitCode)
	}
	return nil
}

// command builds the process for spec without starting it.
func (l *Launcher) command(ctx context.Context, spec domain.LaunchSpec, opts domain.LaunchOptions) (*exec.Cmd, error) {
	uid, gid, err := spec.Identity()
	if err != nil {
		return nil, err
	}
	if len(spec.Cmd) == 0 {
		return nil, zerr.With(domain.ErrLaunchFailed, "reason", "image has no command")
	}

	var credential *syscall.Credential
	switch current := l.getuid(); current {
	case domain.RootID:
		credential = &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid), Groups: []uint32{}} //nolint:gosec // Validated non-negative
	case uid:
	default:
		err := zerr.With(domain.ErrIdentitySwitch, "current_uid", current)
		return nil, zerr.With(err, "user", spec.User)
	}

	name := spec.Cmd[0]
	executable := name
	if !strings.Contains(name, "/") {
		executable, err = lookPath(name, spec.Env)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrLaunchFailed.Error()), "command", name)
		}
	}

	cmd := exec.CommandContext(ctx, executable, spec.Cmd[1:]...) //nolint:gosec // Command comes from the image config
	cmd.Args[0] = name
	cmd.Env = append([]string{}, spec.Env...)
	cmd.Dir = spec.WorkingDir
	if opts.WorkingDir != "" {
		cmd.Dir = opts.WorkingDir
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Credential: credential}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = StopGracePeriod
	return cmd, nil
}

// runTTY runs cmd on a pseudo-terminal and copies its output to w.
// The terminal takes the size of w when w is itself a terminal.
func runTTY(cmd *exec.Cmd, w io.Writer) error {
	ptmx, err := pty.StartWithSize(cmd, windowSize(w))
	if err != nil {
		return err
	}
	defer ptmx.Close() //nolint:errcheck // Closed after the process exits

	copied := make(chan struct{})
	go func() {
		// Reading the master fails with EIO once the slave side is closed.
		_, _ = io.Copy(w, ptmx)
		close(copied)
	}()

	err = cmd.Wait()
	<-copied
	return err
}

// windowSize returns the size of w, or nil when w is not a terminal.
func windowSize(w io.Writer) *pty.Winsize {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) { //nolint:gosec // File descriptors fit in int
		return nil
	}
	cols, rows, err := term.GetSize(int(f.Fd())) //nolint:gosec // File descriptors fit in int
	if err != nil {
		return nil
	}
	return &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)} //nolint:gosec // Terminal sizes fit in uint16
}

// lookPath searches for an executable in the directories named by PATH in env.
func lookPath(file string, env []string) (string, error) {
	var path string
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "PATH="); ok {
			path = after
		}
	}
	if path == "" {
		return "", exec.ErrNotFound
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		candidate := filepath.Join(dir, file)
		if err := findExecutable(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", exec.ErrNotFound
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}
