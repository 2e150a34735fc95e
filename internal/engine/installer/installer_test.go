package installer_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.trai.ch/kiln/internal/engine/installer"
	"go.uber.org/mock/gomock"
)

var targetEnv = domain.TargetConfig{
	PythonVersion:          "3.12",
	SysPlatform:            "linux",
	PlatformSystem:         "Linux",
	PlatformMachine:        "x86_64",
	OSName:                 "posix",
	ImplementationName:     "cpython",
	PlatformImplementation: "CPython",
}.MarkerEnv()

type wheelFixture struct {
	name, version string
	content       []byte
	requires      []string
}

func (w wheelFixture) filename() string {
	return w.name + "-" + w.version + "-py3-none-any.whl"
}

func (w wheelFixture) hash() string {
	sum := sha256.Sum256(w.content)
	return domain.HashPrefix + hex.EncodeToString(sum[:])
}

func (w wheelFixture) requirement(marker string) domain.Requirement {
	return domain.Requirement{
		Name:    domain.PackageName(w.name),
		Version: domain.MustParseVersion(w.version),
		Marker:  domain.MustParseMarker(marker),
		Hashes:  []string{w.hash()},
	}
}

var (
	anyioWheel = wheelFixture{name: "anyio", version: "4.2.0", content: []byte("anyio wheel"), requires: []string{
		"idna>=2.8", "sniffio>=1.1", `exceptiongroup>=1.0.2; python_version < "3.11"`, `trio>=0.23; extra == "trio"`,
	}}
	idnaWheel    = wheelFixture{name: "idna", version: "3.6", content: []byte("idna wheel")}
	sniffioWheel = wheelFixture{name: "sniffio", version: "1.3.0", content: []byte("sniffio wheel")}
)

type harness struct {
	factory *mocks.MockIndexFactory
	index   *mocks.MockPackageIndex
	wheels  *mocks.MockWheelInstaller
	inst    *installer.Installer
	parent  string
	target  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info(gomock.Any()).AnyTimes()

	h := &harness{
		factory: mocks.NewMockIndexFactory(ctrl),
		index:   mocks.NewMockPackageIndex(ctrl),
		wheels:  mocks.NewMockWheelInstaller(ctrl),
		parent:  t.TempDir(),
	}
	h.target = filepath.Join(h.parent, "env")
	h.inst = installer.New(log, h.factory, h.wheels)
	return h
}

func (h *harness) options() installer.Options {
	return installer.Options{
		Env:           targetEnv,
		PlatformTags:  []string{"cp312-cp312-manylinux_2_17_x86_64", "py3-none-any"},
		RequireHashes: true,
		Index:         domain.IndexConfig{FindLinks: []string{"wheels"}, Concurrency: 2},
		Root:          "/project",
	}
}

// serve registers index and installer behaviour for the given wheels.
func (h *harness) serve(fixtures ...wheelFixture) {
	h.factory.EXPECT().Open(gomock.Any(), "/project").Return(h.index, nil)
	byName := make(map[string]wheelFixture)
	for _, w := range fixtures {
		byName[w.filename()] = w
		h.index.EXPECT().Find(gomock.Any(), domain.PackageName(w.name), domain.MustParseVersion(w.version)).
			Return([]domain.Distribution{
				{Filename: w.name + "-" + w.version + ".tar.gz", Source: "find-links"},
				{Filename: w.name + "-" + w.version + "-cp39-cp39-win_amd64.whl", Source: "find-links"},
				{Filename: w.filename(), Source: "find-links"},
			}, nil)
	}
	h.index.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, d domain.Distribution, w io.Writer) error {
			_, err := w.Write(byName[d.Filename].content)
			return err
		}).AnyTimes()
	h.wheels.EXPECT().ReadMetadata(gomock.Any()).
		DoAndReturn(func(path string) (*domain.WheelMetadata, error) {
			w := byName[filepath.Base(path)]
			meta := &domain.WheelMetadata{Name: domain.PackageName(w.name), Version: domain.MustParseVersion(w.version)}
			for _, r := range w.requires {
				dep, err := domain.ParseDependencySpec(r)
				if err != nil {
					return nil, err
				}
				meta.RequiresDist = append(meta.RequiresDist, dep)
			}
			return meta, nil
		}).AnyTimes()
}

func (h *harness) expectInstalls() {
	h.wheels.EXPECT().Install(gomock.Any(), gomock.Any()).
		DoAndReturn(func(path, env string) error {
			site := filepath.Join(env, "site-packages")
			if err := os.MkdirAll(site, domain.DirPerm); err != nil {
				return err
			}
			return os.WriteFile(filepath.Join(site, filepath.Base(path)), nil, domain.FilePerm)
		}).AnyTimes()
}

func requirementList(t *testing.T, reqs ...domain.Requirement) *domain.RequirementList {
	t.Helper()
	list, err := domain.NewRequirementList(reqs)
	require.NoError(t, err)
	return list
}

func metadata(t *testing.T, err error) map[string]any {
	t.Helper()
	var md interface{ Metadata() map[string]any }
	require.True(t, errors.As(err, &md))
	return md.Metadata()
}

func assertNoLeftovers(t *testing.T, parent string) {
	t.Helper()
	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed install must leave nothing behind")
}

func TestInstaller_Install(t *testing.T) {
	h := newHarness(t)
	h.serve(anyioWheel, idnaWheel, sniffioWheel)
	h.expectInstalls()

	colorama := wheelFixture{name: "colorama", version: "0.4.6", content: []byte("colorama")}
	list := requirementList(t,
		anyioWheel.requirement(""),
		idnaWheel.requirement(""),
		sniffioWheel.requirement(""),
		colorama.requirement(`sys_platform == "win32"`),
	)

	n, err := h.inst.Install(context.Background(), list, h.target, h.options())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	site := filepath.Join(h.target, "site-packages")
	for _, w := range []wheelFixture{anyioWheel, idnaWheel, sniffioWheel} {
		assert.FileExists(t, filepath.Join(site, w.filename()))
	}
	assert.NoFileExists(t, filepath.Join(site, colorama.filename()))

	entries, err := os.ReadDir(h.parent)
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the environment remains next to the target")
	assert.Equal(t, "env", entries[0].Name())
}

func TestInstaller_HashMismatch(t *testing.T) {
	h := newHarness(t)
	h.serve(idnaWheel)

	req := idnaWheel.requirement("")
	req.Hashes = []string{"sha256:0000000000000000000000000000000000000000000000000000000000000000"}

	_, err := h.inst.Install(context.Background(), requirementList(t, req), h.target, h.options())
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrHashMismatch.Error())
	assertNoLeftovers(t, h.parent)
}

func TestInstaller_RequireHashes(t *testing.T) {
	h := newHarness(t)
	req := idnaWheel.requirement("")
	req.Hashes = nil

	_, err := h.inst.Install(context.Background(), requirementList(t, req), h.target, h.options())
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrUnresolvableDependency.Error())
	assertNoLeftovers(t, h.parent)
}

func TestInstaller_AdvertisedHashUsedWithoutPin(t *testing.T) {
	h := newHarness(t)
	h.factory.EXPECT().Open(gomock.Any(), gomock.Any()).Return(h.index, nil)
	h.index.EXPECT().Find(gomock.Any(), gomock.Any(), gomock.Any()).Return([]domain.Distribution{
		{Filename: idnaWheel.filename(), Hashes: []string{"md5:abc", "sha256:ffff"}},
	}, nil)
	h.index.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.Distribution, w io.Writer) error {
			_, err := w.Write(idnaWheel.content)
			return err
		})

	req := idnaWheel.requirement("")
	req.Hashes = nil
	opts := h.options()
	opts.RequireHashes = false

	_, err := h.inst.Install(context.Background(), requirementList(t, req), h.target, opts)
	assert.ErrorContains(t, err, domain.ErrHashMismatch.Error())
}

func TestInstaller_NoCompatibleWheel(t *testing.T) {
	h := newHarness(t)
	h.factory.EXPECT().Open(gomock.Any(), gomock.Any()).Return(h.index, nil)
	h.index.EXPECT().Find(gomock.Any(), gomock.Any(), gomock.Any()).Return([]domain.Distribution{
		{Filename: "idna-3.6.tar.gz"},
		{Filename: "idna-3.6-cp39-cp39-win_amd64.whl"},
	}, nil)

	_, err := h.inst.Install(context.Background(), requirementList(t, idnaWheel.requirement("")), h.target, h.options())
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrUnresolvableDependency.Error())
	assertNoLeftovers(t, h.parent)
}

func TestInstaller_NoDistribution(t *testing.T) {
	h := newHarness(t)
	h.factory.EXPECT().Open(gomock.Any(), gomock.Any()).Return(h.index, nil)
	h.index.EXPECT().Find(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

	_, err := h.inst.Install(context.Background(), requirementList(t, idnaWheel.requirement("")), h.target, h.options())
	assert.ErrorContains(t, err, domain.ErrUnresolvableDependency.Error())
}

func TestInstaller_Conflict(t *testing.T) {
	h := newHarness(t)
	strict := anyioWheel
	strict.requires = []string{"idna>=4", "sniffio>=1.1"}
	loose := wheelFixture{name: "httpx", version: "0.27.0", content: []byte("httpx"), requires: []string{"idna", "anyio"}}
	h.serve(strict, loose, idnaWheel, sniffioWheel)

	list := requirementList(t,
		strict.requirement(""),
		loose.requirement(""),
		idnaWheel.requirement(""),
		sniffioWheel.requirement(""),
	)

	_, err := h.inst.Install(context.Background(), list, h.target, h.options())
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrConflict.Error())
	md := metadata(t, err)
	assert.Equal(t, "idna==3.6", md["package"])
	assert.Equal(t, "anyio==4.2.0 (>=4)", md["required_by"])
	assert.Equal(t, "httpx==0.27.0 (*)", md["accepted_by"])
	assertNoLeftovers(t, h.parent)
}

func TestInstaller_RequiredDistributionMissing(t *testing.T) {
	h := newHarness(t)
	h.serve(anyioWheel, idnaWheel)

	list := requirementList(t, anyioWheel.requirement(""), idnaWheel.requirement(""))

	_, err := h.inst.Install(context.Background(), list, h.target, h.options())
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrUnresolvableDependency.Error())
	assert.Equal(t, "sniffio", metadata(t, err)["package"])
	assertNoLeftovers(t, h.parent)
}

func TestInstaller_WheelInstallFailure(t *testing.T) {
	h := newHarness(t)
	h.serve(idnaWheel, sniffioWheel)
	h.wheels.EXPECT().Install(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_, env string) error {
			if err := os.WriteFile(filepath.Join(env, "partial"), nil, domain.FilePerm); err != nil {
				return err
			}
			return domain.ErrWheelInstallFailed
		})

	list := requirementList(t, idnaWheel.requirement(""), sniffioWheel.requirement(""))

	_, err := h.inst.Install(context.Background(), list, h.target, h.options())
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrWheelInstallFailed.Error())
	assert.NoDirExists(t, h.target)
	assertNoLeftovers(t, h.parent)
}

func TestInstaller_TargetExists(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.Mkdir(h.target, domain.DirPerm))

	_, err := h.inst.Install(context.Background(), requirementList(t), h.target, h.options())
	assert.ErrorContains(t, err, domain.ErrWheelInstallFailed.Error())
}

func TestInstaller_Cancelled(t *testing.T) {
	h := newHarness(t)
	h.factory.EXPECT().Open(gomock.Any(), gomock.Any()).Return(h.index, nil)
	h.index.EXPECT().Find(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ domain.InternedString, _ domain.Version) ([]domain.Distribution, error) {
			return nil, ctx.Err()
		}).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	list := requirementList(t, idnaWheel.requirement(""), sniffioWheel.requirement(""))
	_, err := h.inst.Install(ctx, list, h.target, h.options())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assertNoLeftovers(t, h.parent)
}

func TestInstaller_EmptyList(t *testing.T) {
	h := newHarness(t)
	h.factory.EXPECT().Open(gomock.Any(), gomock.Any()).Return(h.index, nil)

	n, err := h.inst.Install(context.Background(), requirementList(t), h.target, h.options())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.DirExists(t, h.target)
}
