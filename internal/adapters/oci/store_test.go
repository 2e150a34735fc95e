package oci_test

import (
	"archive/tar"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/oci"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

var testEpoch = time.Unix(1700000000, 0).UTC()

func newStore(t *testing.T) *oci.Store {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockLogger := mocks.NewMockLogger(ctrl)
	mockLogger.EXPECT().Warn(gomock.Any()).AnyTimes()
	return oci.NewStore(mockLogger, testEpoch)
}

func testMeta() domain.ImageMeta {
	return domain.ImageMeta{
		Launch: domain.LaunchSpec{
			User:       "1000:1000",
			Env:        []string{"PATH=/opt/venv/bin:/usr/bin", "APP_VERSION=1.0.0"},
			Cmd:        []string{"uvicorn", "main:app", "--host", "0.0.0.0"},
			WorkingDir: "/app",
		},
		Ref:         "net-tester:1.0.0",
		Version:     "1.0.0",
		Fingerprint: "0123456789abcdef",
		Platform:    "linux/amd64",
	}
}

type file struct {
	path string
	body string
}

// buildImage writes one layer per argument and commits the layout to a fresh directory.
func buildImage(t *testing.T, store *oci.Store, base *domain.BaseImage, layers ...[]file) (string, string) {
	t.Helper()
	work := t.TempDir()
	b, err := store.Begin(filepath.Join(work, "staging"))
	require.NoError(t, err)
	if base != nil {
		require.NoError(t, b.InheritBase(base))
	}
	for i, files := range layers {
		w, err := b.NewLayer("layer" + string(rune('a'+i)))
		require.NoError(t, err)
		for _, f := range files {
			entry := domain.LayerEntry{Path: f.path, Mode: domain.ImageFileMode, Size: int64(len(f.body))}
			require.NoError(t, w.AddFile(entry, strings.NewReader(f.body)))
		}
		_, err = w.Close()
		require.NoError(t, err)
	}
	out := filepath.Join(work, "image")
	d, err := b.Commit(context.Background(), testMeta(), out)
	require.NoError(t, err)
	return out, d
}

func readIndexManifest(t *testing.T, layout string) (v1.Index, v1.Manifest, v1.Image) {
	t.Helper()
	var index v1.Index
	readJSON(t, filepath.Join(layout, v1.ImageIndexFile), &index)
	require.Len(t, index.Manifests, 1)
	var manifest v1.Manifest
	readJSON(t, blob(layout, index.Manifests[0].Digest), &manifest)
	var config v1.Image
	readJSON(t, blob(layout, manifest.Config.Digest), &config)
	return index, manifest, config
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func blob(layout string, d digest.Digest) string {
	return filepath.Join(layout, "blobs", d.Algorithm().String(), d.Encoded())
}

func TestBuilder_Layer(t *testing.T) {
	store := newStore(t)
	b, err := store.Begin(filepath.Join(t.TempDir(), "staging"))
	require.NoError(t, err)

	w, err := b.NewLayer("app")
	require.NoError(t, err)
	require.NoError(t, w.AddDir(domain.LayerEntry{Path: "/app", Mode: domain.ImageDirMode, UID: 1000, GID: 1000}))
	require.NoError(t, w.AddFile(
		domain.LayerEntry{Path: "/app/main.py", Mode: domain.ImageFileMode, UID: 1000, GID: 1000, Size: 5},
		strings.NewReader("print"),
	))
	require.NoError(t, w.AddSymlink(domain.LayerEntry{Path: "/app/link", Mode: 0o777, UID: 1000, GID: 1000, Linkname: "main.py"}))
	layer, err := w.Close()
	require.NoError(t, err)

	assert.Equal(t, v1.MediaTypeImageLayerGzip, layer.MediaType)
	require.Len(t, layer.Entries, 3)
	assert.Equal(t, domain.EntryDir, layer.Entries[0].Type)
	assert.Equal(t, digest.FromString("print").String(), layer.Entries[1].Digest)
	assert.Equal(t, domain.EntrySymlink, layer.Entries[2].Type)
	require.NoError(t, domain.VerifyOwnership("/app", domain.Identity{UID: 1000, GID: 1000}, layer.Entries))

	assert.Equal(t, int64(0o644), layer.Entries[1].Mode)
	assert.NotEqual(t, layer.Digest, layer.DiffID)
}

func TestBuilder_Commit(t *testing.T) {
	store := newStore(t)
	layout, manifestDigest := buildImage(t, store, nil, []file{{path: "/app/main.py", body: "import fastapi\n"}})

	assert.FileExists(t, filepath.Join(layout, v1.ImageLayoutFile))
	index, manifest, config := readIndexManifest(t, layout)

	assert.Equal(t, manifestDigest, index.Manifests[0].Digest.String())
	assert.Equal(t, "net-tester:1.0.0", index.Manifests[0].Annotations[v1.AnnotationRefName])
	require.NotNil(t, index.Manifests[0].Platform)
	assert.Equal(t, "amd64", index.Manifests[0].Platform.Architecture)

	assert.Equal(t, "1.0.0", manifest.Annotations[v1.AnnotationVersion])
	assert.Equal(t, "0123456789abcdef", manifest.Annotations[oci.FingerprintAnnotation])
	require.Len(t, manifest.Layers, 1)

	assert.Equal(t, "1000:1000", config.Config.User)
	assert.Equal(t, "/app", config.Config.WorkingDir)
	assert.Equal(t, testMeta().Launch.Cmd, config.Config.Cmd)
	assert.Empty(t, config.Config.ExposedPorts)
	require.NotNil(t, config.Created)
	assert.True(t, testEpoch.Equal(*config.Created))
	require.Len(t, config.RootFS.DiffIDs, 1)

	// The layer tar carries the fixed mtime.
	f, err := os.Open(blob(layout, manifest.Layers[0].Digest))
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	diff := digest.SHA256.Digester()
	tr := tar.NewReader(io.TeeReader(gz, diff.Hash()))
	hdr, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "app/main.py", hdr.Name)
	assert.True(t, testEpoch.Equal(hdr.ModTime))
	_, err = io.Copy(io.Discard, tr)
	require.NoError(t, err)
	_, err = io.Copy(io.Discard, gz)
	require.NoError(t, err)
	assert.Equal(t, config.RootFS.DiffIDs[0], diff.Digest())
}

func TestBuilder_Commit_Reproducible(t *testing.T) {
	layers := []file{{path: "/app/main.py", body: "x = 1\n"}, {path: "/app/resources/a.txt", body: "a"}}
	_, first := buildImage(t, newStore(t), nil, layers)
	_, second := buildImage(t, newStore(t), nil, layers)
	assert.Equal(t, first, second)
}

func TestBuilder_Commit_ReplacesOutput(t *testing.T) {
	store := newStore(t)
	out := filepath.Join(t.TempDir(), "image")
	require.NoError(t, os.MkdirAll(out, domain.DirPerm))
	require.NoError(t, os.WriteFile(filepath.Join(out, "stale"), nil, domain.FilePerm))

	b, err := store.Begin(filepath.Join(t.TempDir(), "staging"))
	require.NoError(t, err)
	_, err = b.Commit(context.Background(), testMeta(), out)
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(out, "stale"))
	assert.FileExists(t, filepath.Join(out, v1.ImageIndexFile))
	assert.NoDirExists(t, out+".old")
}

func TestBuilder_Commit_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.ImageMeta)
	}{
		{name: "bad platform", mutate: func(m *domain.ImageMeta) { m.Platform = "not a platform/" }},
		{name: "bad ref", mutate: func(m *domain.ImageMeta) { m.Ref = "UPPER:case:bad" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := newStore(t).Begin(filepath.Join(t.TempDir(), "staging"))
			require.NoError(t, err)
			meta := testMeta()
			tt.mutate(&meta)
			out := filepath.Join(t.TempDir(), "image")
			_, err = b.Commit(context.Background(), meta, out)
			assert.ErrorContains(t, err, domain.ErrImageWriteFailed.Error())
			assert.NoDirExists(t, out)
		})
	}

	t.Run("canceled", func(t *testing.T) {
		b, err := newStore(t).Begin(filepath.Join(t.TempDir(), "staging"))
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = b.Commit(ctx, testMeta(), filepath.Join(t.TempDir(), "image"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLayerWriter_Errors(t *testing.T) {
	open := func(t *testing.T) ports.LayerWriter {
		t.Helper()
		b, err := newStore(t).Begin(filepath.Join(t.TempDir(), "staging"))
		require.NoError(t, err)
		w, err := b.NewLayer("test")
		require.NoError(t, err)
		return w
	}

	t.Run("relative path", func(t *testing.T) {
		err := open(t).AddDir(domain.LayerEntry{Path: "app"})
		assert.ErrorContains(t, err, domain.ErrLayerWriteFailed.Error())
	})

	t.Run("duplicate", func(t *testing.T) {
		w := open(t)
		require.NoError(t, w.AddDir(domain.LayerEntry{Path: "/app", Mode: domain.ImageDirMode}))
		err := w.AddDir(domain.LayerEntry{Path: "/app/", Mode: domain.ImageDirMode})
		assert.ErrorContains(t, err, domain.ErrLayerWriteFailed.Error())
	})

	t.Run("short content", func(t *testing.T) {
		err := open(t).AddFile(domain.LayerEntry{Path: "/a", Size: 10}, strings.NewReader("abc"))
		assert.ErrorContains(t, err, domain.ErrLayerWriteFailed.Error())
	})

	t.Run("symlink without target", func(t *testing.T) {
		err := open(t).AddSymlink(domain.LayerEntry{Path: "/a"})
		assert.ErrorContains(t, err, domain.ErrLayerWriteFailed.Error())
	})

	t.Run("closed twice", func(t *testing.T) {
		w := open(t)
		_, err := w.Close()
		require.NoError(t, err)
		_, err = w.Close()
		assert.ErrorContains(t, err, domain.ErrLayerWriteFailed.Error())
		err = w.AddDir(domain.LayerEntry{Path: "/x"})
		assert.ErrorContains(t, err, domain.ErrLayerWriteFailed.Error())
	})
}

func TestStore_ReadLaunchSpec(t *testing.T) {
	store := newStore(t)
	layout, _ := buildImage(t, store, nil)

	spec, err := store.ReadLaunchSpec(layout)
	require.NoError(t, err)
	assert.Equal(t, testMeta().Launch, spec)

	_, err = store.ReadLaunchSpec(t.TempDir())
	assert.ErrorContains(t, err, domain.ErrImageReadFailed.Error())
}

func TestStore_ReadBase(t *testing.T) {
	store := newStore(t)
	baseLayout, _ := buildImage(t, store, nil,
		[]file{
			{path: "/etc/passwd", body: "root:x:0:0:root:/root:/bin/sh\n"},
			{path: "/etc/group", body: "root:x:0:\n"},
			{path: "/opt/old/file", body: "old"},
			{path: "/var/tmp/x", body: "x"},
		},
		[]file{
			{path: "/etc/passwd", body: "root:x:0:0:root:/root:/bin/sh\nnobody:x:65534:65534::/:/bin/false\n"},
			{path: "/etc/.wh.group", body: ""},
			{path: "/opt/old/.wh..wh..opq", body: ""},
			{path: "/var/.wh.tmp", body: ""},
		},
	)

	base, err := store.ReadBase(context.Background(), baseLayout, "/etc/passwd", "/etc/group", "opt/old/file", "/var/tmp/x", "/missing")
	require.NoError(t, err)

	assert.Equal(t, baseLayout, base.Layout)
	assert.Equal(t, "linux", base.OS)
	assert.Equal(t, "amd64", base.Architecture)
	assert.Equal(t, testMeta().Launch.Env, base.Env)
	require.Len(t, base.Layers, 2)
	assert.Equal(t, v1.MediaTypeImageLayerGzip, base.Layers[0].MediaType)

	assert.Equal(t, map[string][]byte{
		"/etc/passwd": []byte("root:x:0:0:root:/root:/bin/sh\nnobody:x:65534:65534::/:/bin/false\n"),
	}, base.Files)
}

func TestStore_InheritBase(t *testing.T) {
	store := newStore(t)
	baseLayout, _ := buildImage(t, store, nil, []file{{path: "/etc/os-release", body: "ID=test\n"}})
	base, err := store.ReadBase(context.Background(), baseLayout)
	require.NoError(t, err)

	layout, _ := buildImage(t, store, base, []file{{path: "/app/main.py", body: "x"}})
	_, manifest, config := readIndexManifest(t, layout)

	require.Len(t, manifest.Layers, 2)
	assert.Equal(t, base.Layers[0].Digest, manifest.Layers[0].Digest.String())
	assert.Equal(t, base.Layers[0].DiffID, config.RootFS.DiffIDs[0].String())
	for _, l := range manifest.Layers {
		assert.FileExists(t, blob(layout, l.Digest))
	}
}

func TestStore_ReadBase_Errors(t *testing.T) {
	store := newStore(t)

	t.Run("missing layout", func(t *testing.T) {
		_, err := store.ReadBase(context.Background(), filepath.Join(t.TempDir(), "none"))
		assert.ErrorContains(t, err, domain.ErrBaseImageReadFailed.Error())
	})

	t.Run("tampered blob", func(t *testing.T) {
		layout, _ := buildImage(t, store, nil)
		_, manifest, _ := readIndexManifest(t, layout)
		require.NoError(t, os.WriteFile(blob(layout, manifest.Config.Digest), []byte("{}"), domain.FilePerm))
		_, err := store.ReadBase(context.Background(), layout)
		assert.ErrorContains(t, err, domain.ErrBaseImageReadFailed.Error())
	})

	t.Run("canceled", func(t *testing.T) {
		layout, _ := buildImage(t, store, nil, []file{{path: "/etc/passwd", body: "x"}})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := store.ReadBase(ctx, layout, "/etc/passwd")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestParseSourceDateEpoch(t *testing.T) {
	got, err := oci.ParseSourceDateEpoch("")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Unix())

	got, err = oci.ParseSourceDateEpoch("1700000000")
	require.NoError(t, err)
	assert.True(t, testEpoch.Equal(got))

	_, err = oci.ParseSourceDateEpoch("yesterday")
	assert.ErrorContains(t, err, domain.ErrInvalidConfig.Error())
}
