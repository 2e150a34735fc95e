package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

type testMocks struct {
	loader *mocks.MockConfigLoader
	images *mocks.MockImageStore
	logger *mocks.MockLogger
}

func newProvider(t *testing.T) (ComponentProvider, testMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := testMocks{
		loader: mocks.NewMockConfigLoader(ctrl),
		images: mocks.NewMockImageStore(ctrl),
		logger: mocks.NewMockLogger(ctrl),
	}
	application := app.New(m.loader, nil, m.images, mocks.NewMockLauncher(ctrl), mocks.NewMockRenderer(ctrl), m.logger)

	provider := func(_ context.Context) (*app.Components, func(), error) {
		return &app.Components{App: application, Logger: m.logger}, func() {}, nil
	}
	return provider, m
}

// TestRun_Success verifies that run returns 0 when the command succeeds.
func TestRun_Success(t *testing.T) {
	provider, _ := newProvider(t)

	stderr := new(bytes.Buffer)
	exitCode := run(context.Background(), []string{"version"}, stderr, provider)
	assert.Equal(t, 0, exitCode)
	assert.Empty(t, stderr.String())
}

// TestRun_InitializationError verifies that run returns 1 when component initialization fails.
func TestRun_InitializationError(t *testing.T) {
	provider := func(_ context.Context) (*app.Components, func(), error) {
		return nil, nil, errors.New("init failed")
	}

	stderr := new(bytes.Buffer)
	exitCode := run(context.Background(), []string{"version"}, stderr, provider)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error: init failed")
}

// TestRun_ExecutionError verifies that command errors are logged once.
func TestRun_ExecutionError(t *testing.T) {
	provider, m := newProvider(t)
	m.loader.EXPECT().Load("kiln.yaml").Return(nil, domain.ErrConfigParseFailed)
	m.logger.EXPECT().Error(gomock.Any()).Times(1)

	exitCode := run(context.Background(), []string{"build", "-c", "kiln.yaml"}, new(bytes.Buffer), provider)
	assert.Equal(t, 1, exitCode)
}

// TestRun_LaunchError verifies that a failing launch exits non-zero.
func TestRun_LaunchError(t *testing.T) {
	provider, m := newProvider(t)
	m.images.EXPECT().ReadLaunchSpec("dist/image").Return(domain.LaunchSpec{}, domain.ErrImageReadFailed)
	m.logger.EXPECT().Error(gomock.Any()).Times(1)

	exitCode := run(context.Background(), []string{"launch", "--layout", "dist/image"}, new(bytes.Buffer), provider)
	assert.Equal(t, 1, exitCode)
}

// TestRun_Options verifies that options are applied to the app before execution.
func TestRun_Options(t *testing.T) {
	provider, _ := newProvider(t)

	var applied bool
	exitCode := run(context.Background(), []string{"version"}, new(bytes.Buffer), provider, func(a *app.App) {
		applied = a != nil
	})
	assert.Equal(t, 0, exitCode)
	assert.True(t, applied)
}
