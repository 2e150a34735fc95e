// Package installer builds the Python environment tree from a flat requirement list.
package installer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// Options describes the target environment and the sources of one install.
type Options struct {
	// Env is the marker environment of the target interpreter.
	Env domain.MarkerEnv

	// PlatformTags lists the supported wheel tags, best first.
	PlatformTags []string

	// RequireHashes rejects requirements that pin no hash.
	RequireHashes bool

	// Index configures the distribution sources.
	Index domain.IndexConfig

	// Root resolves relative find-links directories.
	Root string
}

// Installer fetches and unpacks the wheels of a requirement list.
type Installer struct {
	logger  ports.Logger
	indexes ports.IndexFactory
	wheels  ports.WheelInstaller
}

// New creates an Installer.
func New(logger ports.Logger, indexes ports.IndexFactory, wheels ports.WheelInstaller) *Installer {
	return &Installer{logger: logger, indexes: indexes, wheels: wheels}
}

// download is a fetched and verified wheel.
type download struct {
	req  domain.Requirement
	dist domain.Distribution
	path string
	size int64
	meta *domain.WheelMetadata
}

// Install builds the environment for every requirement whose marker holds for the target.
// The tree is assembled in a sibling of target and renamed into place only when every entry installed;
// on failure target does not exist. It returns the number of installed distributions.
func (i *Installer) Install(ctx context.Context, list *domain.RequirementList, target string, opts Options) (int, error) {
	if _, err := os.Lstat(target); err == nil {
		return 0, zerr.With(domain.ErrWheelInstallFailed, "target_exists", target)
	}

	active := i.activeRequirements(list, opts.Env)
	if opts.RequireHashes {
		for _, req := range active {
			if len(req.Hashes) == 0 {
				return 0, zerr.With(zerr.With(domain.ErrUnresolvableDependency, "package", req.Pin()), "reason", "no hash pinned")
			}
		}
	}

	index, err := i.indexes.Open(opts.Index, opts.Root)
	if err != nil {
		return 0, err
	}

	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, domain.DirPerm); err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrWorkspaceCreateFailed.Error()), "path", parent)
	}
	downloads, err := os.MkdirTemp(parent, ".kiln-wheels-*")
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrWorkspaceCreateFailed.Error()), "path", parent)
	}
	defer func() { _ = os.RemoveAll(downloads) }()

	fetched, err := i.fetchAll(ctx, index, active, downloads, opts)
	if err != nil {
		return 0, err
	}

	if err := i.checkRequires(fetched, list, opts.Env); err != nil {
		return 0, err
	}

	staging, err := os.MkdirTemp(parent, "."+filepath.Base(target)+"-*")
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrWorkspaceCreateFailed.Error()), "path", parent)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(staging)
		}
	}()

	for _, d := range fetched {
		if err := ctx.Err(); err != nil {
			return 0, errors.Join(domain.ErrWheelInstallFailed, err)
		}
		if err := i.wheels.Install(d.path, staging); err != nil {
			return 0, zerr.With(err, "package", d.req.Pin())
		}
		i.logger.Info(fmt.Sprintf("installed %s (%s, %s)", d.req.Pin(), d.dist.Filename, humanize.Bytes(uint64(d.size)))) //nolint:gosec // size is non-negative
	}

	if err := os.Rename(staging, target); err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrWheelInstallFailed.Error()), "path", target)
	}
	committed = true
	return len(fetched), nil
}

// activeRequirements drops the requirements whose marker is false for env.
func (i *Installer) activeRequirements(list *domain.RequirementList, env domain.MarkerEnv) []domain.Requirement {
	var active []domain.Requirement
	for _, req := range list.Entries() {
		if !req.Marker.Evaluate(env) {
			i.logger.Info(fmt.Sprintf("skipping %s: marker %q does not match target", req.Pin(), req.Marker.String()))
			continue
		}
		active = append(active, req)
	}
	return active
}

// fetchAll downloads one wheel per requirement with bounded concurrency. The first error cancels the rest.
func (i *Installer) fetchAll(
	ctx context.Context,
	index ports.PackageIndex,
	reqs []domain.Requirement,
	dir string,
	opts Options,
) ([]download, error) {
	supported := domain.ParseTags(opts.PlatformTags)
	out := make([]download, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	limit := opts.Index.Concurrency
	if limit < 1 {
		limit = domain.DefaultFetchConcurrency
	}
	g.SetLimit(limit)

	for n, req := range reqs {
		g.Go(func() error {
			dist, err := locate(gctx, index, req, supported)
			if err != nil {
				return err
			}
			d, err := fetch(gctx, index, req, dist, dir)
			if err != nil {
				return err
			}
			meta, err := i.wheels.ReadMetadata(d.path)
			if err != nil {
				return zerr.With(err, "package", req.Pin())
			}
			if meta.Name.String() != req.Name.String() || meta.Version.Compare(req.Version) != 0 {
				err := zerr.With(domain.ErrUnresolvableDependency, "package", req.Pin())
				return zerr.With(err, "wheel_metadata", meta.Name.String()+"=="+meta.Version.String())
			}
			d.meta = meta
			out[n] = d
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Join(domain.ErrDistributionFetchFailed, ctxErr)
		}
		return nil, err
	}
	return out, nil
}

// locate picks the wheel with the best supported tag. Ties go to the lexically first filename.
func locate(ctx context.Context, index ports.PackageIndex, req domain.Requirement, supported []domain.WheelTag) (domain.Distribution, error) {
	dists, err := index.Find(ctx, req.Name, req.Version)
	if err != nil {
		return domain.Distribution{}, zerr.With(err, "package", req.Pin())
	}
	if len(dists) == 0 {
		return domain.Distribution{}, zerr.With(zerr.With(domain.ErrUnresolvableDependency, "package", req.Pin()), "reason", "no distribution found")
	}

	best, bestPriority := -1, -1
	for n, dist := range dists {
		w, err := domain.ParseWheelFilename(dist.Filename)
		if err != nil {
			continue
		}
		if w.Name.String() != req.Name.String() || w.Version.Compare(req.Version) != 0 {
			continue
		}
		p := w.Priority(supported)
		if p < 0 {
			continue
		}
		if best < 0 || p < bestPriority || (p == bestPriority && dist.Filename < dists[best].Filename) {
			best, bestPriority = n, p
		}
	}
	if best < 0 {
		files := make([]string, 0, len(dists))
		for _, d := range dists {
			files = append(files, d.Filename)
		}
		err := zerr.With(zerr.With(domain.ErrUnresolvableDependency, "package", req.Pin()), "reason", "no compatible wheel")
		return domain.Distribution{}, zerr.With(err, "candidates", strings.Join(files, ", "))
	}
	return dists[best], nil
}

// fetch streams dist into dir and verifies its sha256 against the pinned hashes,
// or the hashes the source advertised when nothing is pinned.
func fetch(ctx context.Context, index ports.PackageIndex, req domain.Requirement, dist domain.Distribution, dir string) (download, error) {
	path := filepath.Join(dir, filepath.Base(dist.Filename))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, domain.FilePerm) //nolint:gosec // path is below the download workspace
	if err != nil {
		return download{}, zerr.With(zerr.Wrap(err, domain.ErrDistributionFetchFailed.Error()), "path", path)
	}

	h := sha256.New()
	cw := &countingWriter{w: io.MultiWriter(f, h)}
	fetchErr := index.Fetch(ctx, dist, cw)
	closeErr := f.Close()
	if fetchErr != nil {
		return download{}, zerr.With(fetchErr, "package", req.Pin())
	}
	if closeErr != nil {
		return download{}, zerr.With(zerr.Wrap(closeErr, domain.ErrDistributionFetchFailed.Error()), "path", path)
	}

	got := domain.HashPrefix + hex.EncodeToString(h.Sum(nil))
	accepted := req.Hashes
	if len(accepted) == 0 {
		accepted = sha256Only(dist.Hashes)
	}
	if len(accepted) > 0 && !slices.Contains(accepted, got) {
		err := zerr.With(zerr.With(domain.ErrHashMismatch, "package", req.Pin()), "file", dist.Filename)
		return download{}, zerr.With(err, "got", got)
	}

	return download{req: req, dist: dist, path: path, size: cw.n}, nil
}

// checkRequires verifies every active Requires-Dist entry against the pinned versions of the others.
func (i *Installer) checkRequires(fetched []download, list *domain.RequirementList, env domain.MarkerEnv) error {
	installed := make(map[string]domain.Requirement, len(fetched))
	for _, d := range fetched {
		installed[d.req.Name.String()] = d.req
	}

	type edge struct {
		requirer   string
		constraint domain.Constraint
	}
	required := make(map[string][]edge)
	for _, d := range fetched {
		for _, dep := range d.meta.RequiresDist {
			if dep.Name.String() == d.req.Name.String() {
				continue
			}
			if !dep.Markers.ResolveExtras(nil).Evaluate(env) {
				continue
			}
			required[dep.Name.String()] = append(required[dep.Name.String()], edge{requirer: d.req.Pin(), constraint: dep.Constraint})
		}
	}

	names := make([]string, 0, len(required))
	for name := range required {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		edges := required[name]
		pin, ok := installed[name]
		if !ok {
			err := zerr.With(domain.ErrUnresolvableDependency, "package", name)
			if _, listed := list.Lookup(name); listed {
				err = zerr.With(err, "reason", "marker excludes it from the target")
			}
			return zerr.With(err, "required_by", edges[0].requirer+" ("+edges[0].constraint.String()+")")
		}
		for _, e := range edges {
			if e.constraint.Contains(pin.Version) {
				continue
			}
			err := zerr.With(zerr.With(domain.ErrConflict, "package", pin.Pin()), "required_by", e.requirer+" ("+e.constraint.String()+")")
			for _, other := range edges {
				if other.requirer != e.requirer && other.constraint.Contains(pin.Version) {
					err = zerr.With(err, "accepted_by", other.requirer+" ("+other.constraint.String()+")")
					break
				}
			}
			return err
		}
	}
	return nil
}

func sha256Only(hashes []string) []string {
	var out []string
	for _, h := range hashes {
		if strings.HasPrefix(h, domain.HashPrefix) {
			out = append(out, h)
		}
	}
	return out
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
