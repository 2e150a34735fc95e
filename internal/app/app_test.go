package app_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.trai.ch/kiln/internal/engine/installer"
	"go.trai.ch/kiln/internal/engine/pipeline"
	"go.trai.ch/kiln/internal/engine/provision"
	"go.trai.ch/kiln/internal/engine/resolver"
	"go.trai.ch/kiln/internal/engine/stager"
	"go.uber.org/mock/gomock"
)

type appMocks struct {
	loader   *mocks.MockConfigLoader
	projects *mocks.MockProjectLoader
	images   *mocks.MockImageStore
	launcher *mocks.MockLauncher
	renderer *mocks.MockRenderer
	logger   *mocks.MockLogger
	tracer   *mocks.MockTracer
}

func setupApp(t *testing.T) (*app.App, appMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := appMocks{
		loader:   mocks.NewMockConfigLoader(ctrl),
		projects: mocks.NewMockProjectLoader(ctrl),
		images:   mocks.NewMockImageStore(ctrl),
		launcher: mocks.NewMockLauncher(ctrl),
		renderer: mocks.NewMockRenderer(ctrl),
		logger:   mocks.NewMockLogger(ctrl),
		tracer:   mocks.NewMockTracer(ctrl),
	}
	m.logger.EXPECT().Info(gomock.Any()).AnyTimes()
	m.logger.EXPECT().Warn(gomock.Any()).AnyTimes()

	span := mocks.NewMockSpan(ctrl)
	span.EXPECT().End().AnyTimes()
	span.EXPECT().RecordError(gomock.Any()).AnyTimes()
	span.EXPECT().SetAttribute(gomock.Any(), gomock.Any()).AnyTimes()
	span.EXPECT().Write(gomock.Any()).DoAndReturn(func(p []byte) (int, error) { return len(p), nil }).AnyTimes()
	m.tracer.EXPECT().Start(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string, _ ...ports.SpanOption) (context.Context, ports.Span) {
			return ctx, span
		},
	).AnyTimes()
	m.tracer.EXPECT().EmitPlan(gomock.Any(), gomock.Any()).AnyTimes()

	p := pipeline.New(
		m.logger,
		m.tracer,
		m.projects,
		m.images,
		mocks.NewMockHasher(ctrl),
		resolver.New(m.logger),
		installer.New(m.logger, mocks.NewMockIndexFactory(ctrl), mocks.NewMockWheelInstaller(ctrl)),
		provision.New(m.logger),
		stager.New(m.logger, mocks.NewMockWalker(ctrl)),
	)
	return app.New(m.loader, p, m.images, m.launcher, m.renderer, m.logger), m
}

func (m appMocks) expectRenderer() {
	m.renderer.EXPECT().Start(gomock.Any()).Return(nil)
	m.renderer.EXPECT().Wait().Return(nil)
	m.renderer.EXPECT().Stop().Return(nil)
}

func projectConfig(t *testing.T) *domain.BuildConfig {
	t.Helper()
	root := t.TempDir()
	for _, name := range []string{"pyproject.toml", "poetry.lock"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("\n"), 0o644))
	}
	cfg := domain.DefaultBuildConfig()
	cfg.Root = root
	return cfg
}

func TestApp_Build_ConfigError(t *testing.T) {
	a, m := setupApp(t)
	m.loader.EXPECT().Load(domain.ConfigFileName).Return(nil, domain.ErrConfigParseFailed)

	_, err := a.Build(context.Background(), app.BuildOptions{})
	assert.ErrorContains(t, err, domain.ErrConfigParseFailed.Error())
}

func TestApp_Build_InvalidConfigIsReturned(t *testing.T) {
	a, m := setupApp(t)
	m.loader.EXPECT().Load("custom.yaml").Return(projectConfig(t), nil)
	m.expectRenderer()

	_, err := a.Build(context.Background(), app.BuildOptions{ConfigPath: "custom.yaml"})
	assert.ErrorContains(t, err, domain.ErrInvalidConfig.Error(), "no version configured or passed")
}

func TestApp_Build_FailureIsLogged(t *testing.T) {
	a, m := setupApp(t)
	cfg := projectConfig(t)
	m.loader.EXPECT().Load(domain.ConfigFileName).Return(cfg, nil)
	m.expectRenderer()
	m.projects.EXPECT().LoadManifest(gomock.Any()).Return(nil, domain.ErrManifestParseFailed)
	m.logger.EXPECT().Error(gomock.Any()).Times(1)

	out := filepath.Join(t.TempDir(), "image")
	_, err := a.Build(context.Background(), app.BuildOptions{AppVersion: "2.0.0", Output: out, Base: "base"})
	assert.ErrorContains(t, err, domain.ErrBuildFailed.Error())
	assert.ErrorContains(t, err, domain.ErrManifestParseFailed.Error())

	assert.Equal(t, "2.0.0", cfg.AppVersion)
	assert.Equal(t, out, cfg.Image.Output)
	assert.Equal(t, "base", cfg.Image.Base)
	assert.NoDirExists(t, out)
}

func TestApp_Resolve(t *testing.T) {
	a, m := setupApp(t)
	m.loader.EXPECT().Load(domain.ConfigFileName).Return(projectConfig(t), nil)
	m.expectRenderer()
	m.projects.EXPECT().LoadManifest(gomock.Any()).Return(&domain.Manifest{
		Name:   "net-tester",
		Groups: map[string][]domain.Dependency{domain.DefaultGroup: nil},
	}, nil)
	m.projects.EXPECT().LoadLockfile(gomock.Any()).Return(&domain.Lockfile{Packages: map[string][]domain.LockedPackage{}}, nil)

	out := filepath.Join(t.TempDir(), "requirements.txt")
	list, err := a.Resolve(context.Background(), app.ResolveOptions{Output: out})
	require.NoError(t, err)
	assert.Equal(t, 0, list.Len())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, string(list.Render()), string(data))
}

func TestApp_Launch(t *testing.T) {
	a, m := setupApp(t)
	spec := domain.LaunchSpec{User: "1000:1000", Cmd: []string{"uvicorn", "main:app", "--host", "0.0.0.0"}, WorkingDir: "/app"}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

	m.images.EXPECT().ReadLaunchSpec("dist/image").Return(spec, nil)
	m.launcher.EXPECT().Launch(gomock.Any(), spec, domain.LaunchOptions{WorkingDir: "/tmp/app", TTY: true}, stdout, stderr).Return(nil)

	err := a.Launch(context.Background(), app.LaunchOptions{Layout: "dist/image", WorkDir: "/tmp/app", TTY: true}, stdout, stderr)
	require.NoError(t, err)
}

func TestApp_Launch_ReadError(t *testing.T) {
	a, m := setupApp(t)
	m.images.EXPECT().ReadLaunchSpec("missing").Return(domain.LaunchSpec{}, domain.ErrImageReadFailed)

	err := a.Launch(context.Background(), app.LaunchOptions{Layout: "missing"}, nil, nil)
	assert.ErrorContains(t, err, domain.ErrImageReadFailed.Error())
}
