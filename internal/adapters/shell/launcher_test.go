package shell_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/shell"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

const testUID = 4242

func newLauncher(t *testing.T, uid int) *shell.Launcher {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockLogger := mocks.NewMockLogger(ctrl)
	mockLogger.EXPECT().Info(gomock.Any()).AnyTimes()
	return shell.NewLauncher(mockLogger).WithUID(uid)
}

func testSpec(t *testing.T, cmd ...string) domain.LaunchSpec {
	t.Helper()
	return domain.LaunchSpec{
		User:       "4242:4242",
		Env:        []string{"PATH=/usr/bin:/bin", "APP_VERSION=1.2.3", "PYTHONUNBUFFERED=1"},
		Cmd:        cmd,
		WorkingDir: t.TempDir(),
	}
}

func TestLauncher_Launch_ExactEnvironment(t *testing.T) {
	t.Setenv("KILN_LEAK", "host-only")
	spec := testSpec(t, "env")

	var stdout, stderr bytes.Buffer
	err := newLauncher(t, testUID).Launch(context.Background(), spec, domain.LaunchOptions{}, &stdout, &stderr)
	require.NoError(t, err)

	got := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	slices.Sort(got)
	want := slices.Clone(spec.Env)
	slices.Sort(want)
	assert.Equal(t, want, got)
}

func TestLauncher_Launch_WorkingDir(t *testing.T) {
	spec := testSpec(t, "sh", "-c", "pwd; echo err >&2")

	var stdout, stderr bytes.Buffer
	require.NoError(t, newLauncher(t, testUID).Launch(context.Background(), spec, domain.LaunchOptions{}, &stdout, &stderr))
	wantDir, err := filepath.EvalSymlinks(spec.WorkingDir)
	require.NoError(t, err)
	assert.Equal(t, wantDir+"\n", stdout.String())
	assert.Equal(t, "err\n", stderr.String())

	override := t.TempDir()
	stdout.Reset()
	opts := domain.LaunchOptions{WorkingDir: override}
	require.NoError(t, newLauncher(t, testUID).Launch(context.Background(), spec, opts, &stdout, &stderr))
	wantDir, err = filepath.EvalSymlinks(override)
	require.NoError(t, err)
	assert.Equal(t, wantDir+"\n", stdout.String())
}

func TestLauncher_Launch_ExitCode(t *testing.T) {
	spec := testSpec(t, "sh", "-c", "exit 3")

	err := newLauncher(t, testUID).Launch(context.Background(), spec, domain.LaunchOptions{}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.ErrorContains(t, err, domain.ErrLaunchFailed.Error())
}

func TestLauncher_Launch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		uid     int
		mutate  func(*domain.LaunchSpec)
		wantErr error
	}{
		{name: "privileged identity", uid: 0, mutate: func(s *domain.LaunchSpec) { s.User = "0:0" }, wantErr: domain.ErrElevatedIdentity},
		{name: "unset user", uid: 0, mutate: func(s *domain.LaunchSpec) { s.User = "" }, wantErr: domain.ErrElevatedIdentity},
		{name: "other unprivileged user", uid: 5000, mutate: func(*domain.LaunchSpec) {}, wantErr: domain.ErrIdentitySwitch},
		{name: "no command", uid: testUID, mutate: func(s *domain.LaunchSpec) { s.Cmd = nil }, wantErr: domain.ErrLaunchFailed},
		{name: "unknown command", uid: testUID, mutate: func(s *domain.LaunchSpec) { s.Cmd = []string{"kiln-no-such-cmd"} }, wantErr: domain.ErrLaunchFailed},
		{name: "no PATH", uid: testUID, mutate: func(s *domain.LaunchSpec) { s.Env = nil }, wantErr: domain.ErrLaunchFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := testSpec(t, "env")
			tt.mutate(&spec)
			err := newLauncher(t, tt.uid).Launch(context.Background(), spec, domain.LaunchOptions{}, &bytes.Buffer{}, &bytes.Buffer{})
			assert.ErrorContains(t, err, tt.wantErr.Error())
		})
	}
}

func TestLauncher_Command_DropsPrivileges(t *testing.T) {
	spec := testSpec(t, "env")

	cmd, err := newLauncher(t, 0).Command(context.Background(), spec, domain.LaunchOptions{})
	require.NoError(t, err)
	require.NotNil(t, cmd.SysProcAttr.Credential)
	assert.Equal(t, uint32(4242), cmd.SysProcAttr.Credential.Uid)
	assert.Equal(t, uint32(4242), cmd.SysProcAttr.Credential.Gid)
	assert.Empty(t, cmd.SysProcAttr.Credential.Groups)
	assert.Equal(t, "env", cmd.Args[0])

	cmd, err = newLauncher(t, testUID).Command(context.Background(), spec, domain.LaunchOptions{})
	require.NoError(t, err)
	assert.Nil(t, cmd.SysProcAttr.Credential)
}

func TestLauncher_Launch_Canceled(t *testing.T) {
	spec := testSpec(t, "sleep", "30")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := newLauncher(t, testUID).Launch(ctx, spec, domain.LaunchOptions{}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.ErrorContains(t, err, domain.ErrLaunchFailed.Error())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLauncher_Launch_TTY(t *testing.T) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pseudo-terminals unavailable: %v", err)
	}
	_ = ptmx.Close()
	_ = tty.Close()

	spec := testSpec(t, "sh", "-c", "test -t 1 && echo interactive")

	var stdout bytes.Buffer
	err = newLauncher(t, testUID).Launch(context.Background(), spec, domain.LaunchOptions{TTY: true}, &stdout, os.Stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "interactive")
}

func TestWindowSize_NotATerminal(t *testing.T) {
	assert.Nil(t, shell.WindowSize(new(bytes.Buffer)))

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Nil(t, shell.WindowSize(f))
}
