// Package pipeline runs the build stages in order and assembles the image.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/installer"
	"go.trai.ch/kiln/internal/engine/provision"
	"go.trai.ch/kiln/internal/engine/resolver"
	"go.trai.ch/kiln/internal/engine/stager"
	"go.trai.ch/zerr"
)

// Layer names recorded in the image history.
const (
	EnvLayer      = "python-env"
	IdentityLayer = "identity"
	AppLayer      = "app"
)

// Snapshot names of the project inputs inside the resolve workspace.
const (
	manifestSnapshot = "pyproject.toml"
	lockSnapshot     = "poetry.lock"
)

// Pipeline drives the Resolve, Install, Provision, Stage and Assemble stages of one build.
type Pipeline struct {
	logger      ports.Logger
	tracer      ports.Tracer
	projects    ports.ProjectLoader
	images      ports.ImageStore
	hasher      ports.Hasher
	resolver    *resolver.Resolver
	installer   *installer.Installer
	provisioner *provision.Provisioner
	stager      *stager.Stager
}

// New creates a Pipeline.
func New(
	logger ports.Logger,
	tracer ports.Tracer,
	projects ports.ProjectLoader,
	images ports.ImageStore,
	hasher ports.Hasher,
	res *resolver.Resolver,
	inst *installer.Installer,
	prov *provision.Provisioner,
	stg *stager.Stager,
) *Pipeline {
	return &Pipeline{
		logger:      logger,
		tracer:      tracer,
		projects:    projects,
		images:      images,
		hasher:      hasher,
		resolver:    res,
		installer:   inst,
		provisioner: prov,
		stager:      stg,
	}
}

// run holds the state of one build. Nothing in it outlives Run.
type run struct {
	p     *Pipeline
	cfg   *domain.BuildConfig
	stage domain.Stage

	workspace string
	layout    string
	builder   ports.ImageBuilder
	base      *domain.BaseImage

	handoff   string
	list      *domain.RequirementList
	installed int
	written   []domain.LayerEntry
	result    *domain.BuildResult
}

// Run builds the image described by cfg. A failed stage aborts the build and
// leaves the previous layout at the output path untouched.
func (p *Pipeline) Run(ctx context.Context, cfg *domain.BuildConfig) (*domain.BuildResult, error) {
	if err := cfg.ValidateForBuild(); err != nil {
		return nil, err
	}

	r := &run{p: p, cfg: cfg, stage: domain.StagePending}

	workspace, err := os.MkdirTemp("", domain.WorkspacePattern)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrWorkspaceCreateFailed.Error())
	}
	r.workspace = workspace
	defer func() { _ = os.RemoveAll(workspace) }()

	out := cfg.Path(cfg.Image.Output)
	if err := os.MkdirAll(filepath.Dir(out), domain.DirPerm); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrWorkspaceCreateFailed.Error()), "path", filepath.Dir(out))
	}
	layout, err := os.MkdirTemp(filepath.Dir(out), ".kiln-image-*")
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrWorkspaceCreateFailed.Error()), "path", filepath.Dir(out))
	}
	r.layout = layout
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(layout)
		}
	}()

	names := make([]string, 0, len(domain.StageOrder))
	for _, s := range domain.StageOrder {
		names = append(names, string(s))
	}
	p.tracer.EmitPlan(ctx, names)

	steps := map[domain.Stage]func(context.Context, ports.Span) error{
		domain.StageResolving:    r.resolve,
		domain.StageInstalling:   r.install,
		domain.StageProvisioning: r.provision,
		domain.StageStaging:      r.stageAssets,
		domain.StageAssembling:   r.assemble,
	}
	for _, s := range domain.StageOrder {
		if err := r.runStage(ctx, s, steps[s]); err != nil {
			r.abort()
			return nil, errors.Join(domain.ErrBuildFailed, err)
		}
	}

	committed = true
	if _, err := r.advance(domain.StageReady); err != nil {
		return nil, err
	}
	p.logger.Info(fmt.Sprintf("image %s written to %s", r.result.ImageDigest, r.result.Layout))
	return r.result, nil
}

// Resolve runs only the Resolve stage and returns the requirement list.
func (p *Pipeline) Resolve(ctx context.Context, cfg *domain.BuildConfig) (*domain.RequirementList, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	workspace, err := os.MkdirTemp("", domain.WorkspacePattern)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrWorkspaceCreateFailed.Error())
	}
	defer func() { _ = os.RemoveAll(workspace) }()

	r := &run{p: p, cfg: cfg, stage: domain.StagePending, workspace: workspace}
	p.tracer.EmitPlan(ctx, []string{string(domain.StageResolving)})
	if err := r.runStage(ctx, domain.StageResolving, r.resolve); err != nil {
		r.abort()
		return nil, errors.Join(domain.ErrBuildFailed, err)
	}
	return r.list, nil
}

func (r *run) advance(next domain.Stage) (domain.Stage, error) {
	s, err := r.stage.Transition(next)
	if err != nil {
		return r.stage, err
	}
	r.stage = s
	return s, nil
}

func (r *run) abort() {
	from := r.stage
	if _, err := r.advance(domain.StageAborted); err == nil {
		r.p.logger.Warn(fmt.Sprintf("build aborted during %s", from))
	}
}

// runStage moves the state machine to s and runs fn inside a span named after the stage.
func (r *run) runStage(ctx context.Context, s domain.Stage, fn func(context.Context, ports.Span) error) error {
	if _, err := r.advance(s); err != nil {
		return err
	}

	ctx, span := r.p.tracer.Start(ctx, string(s))
	defer span.End()

	if err := ctx.Err(); err != nil {
		err = errors.Join(zerr.With(domain.ErrStageFailed, "stage", string(s)), err)
		span.RecordError(err)
		return err
	}

	if err := fn(ctx, span); err != nil {
		span.RecordError(err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return errors.Join(zerr.With(domain.ErrStageFailed, "stage", string(s)), err)
		}
		return zerr.With(zerr.Wrap(err, domain.ErrStageFailed.Error()), "stage", string(s))
	}
	return nil
}

// resolve snapshots the manifest and lockfile into a private workspace, projects the
// lock and hands the list over through a file. The resolve workspace is gone afterwards.
func (r *run) resolve(_ context.Context, span ports.Span) error {
	dir := filepath.Join(r.workspace, string(domain.StageResolving))
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrWorkspaceCreateFailed.Error()), "path", dir)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	manifestPath, err := snapshot(r.cfg.Path(r.cfg.Python.Manifest), filepath.Join(dir, manifestSnapshot), domain.ErrManifestReadFailed)
	if err != nil {
		return err
	}
	lockPath, err := snapshot(r.cfg.Path(r.cfg.Python.Lockfile), filepath.Join(dir, lockSnapshot), domain.ErrLockfileReadFailed)
	if err != nil {
		return err
	}

	manifest, err := r.p.projects.LoadManifest(manifestPath)
	if err != nil {
		return err
	}
	lock, err := r.p.projects.LoadLockfile(lockPath)
	if err != nil {
		return err
	}

	list, err := r.p.resolver.Resolve(manifest, lock, resolver.Options{
		Groups:            r.cfg.Python.Groups,
		Extras:            r.cfg.Python.Extras,
		VerifyContentHash: r.cfg.Python.VerifyContentHash,
	})
	if err != nil {
		return err
	}

	handoff := filepath.Join(r.workspace, "handoff")
	if err := os.MkdirAll(handoff, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrHandoffFailed.Error()), "path", handoff)
	}
	r.handoff, err = resolver.WriteHandoff(handoff, list)
	if err != nil {
		return err
	}
	r.list = list

	span.SetAttribute("kiln.requirements", list.Len())
	_, _ = fmt.Fprintf(span, "%d pinned requirement(s)\n", list.Len())
	return nil
}

// install reads the handed-off list, builds the environment and writes it as a root-owned layer.
func (r *run) install(ctx context.Context, span ports.Span) error {
	list, err := resolver.ReadHandoff(r.handoff)
	if err != nil {
		return err
	}

	envDir := filepath.Join(r.workspace, "env")
	n, err := r.p.installer.Install(ctx, list, envDir, installer.Options{
		Env:           r.cfg.Python.Target.MarkerEnv(),
		PlatformTags:  r.cfg.Python.PlatformTags,
		RequireHashes: r.cfg.Python.RequireHashes,
		Index:         r.cfg.Index,
		Root:          r.cfg.Root,
	})
	if err != nil {
		return err
	}
	r.installed = n

	builder, err := r.p.images.Begin(r.layout)
	if err != nil {
		return err
	}
	r.builder = builder

	w, err := builder.NewLayer(EnvLayer)
	if err != nil {
		return err
	}
	entries, err := r.p.stager.CopyTree(w, envDir, r.cfg.Python.EnvRoot, stager.RootOwner)
	if err != nil {
		return err
	}
	layer, err := w.Close()
	if err != nil {
		return err
	}
	r.written = append(r.written, layer.Entries...)

	span.SetAttribute("kiln.installed", n)
	_, _ = fmt.Fprintf(span, "%d distribution(s) installed into %s (%d entries)\n", n, r.cfg.Python.EnvRoot, entries)
	return nil
}

// provision reads the optional base image and writes the identity layer.
func (r *run) provision(ctx context.Context, span ports.Span) error {
	files := map[string][]byte{}
	if r.cfg.Image.Base != "" {
		base, err := r.p.images.ReadBase(ctx, r.cfg.Path(r.cfg.Image.Base), provision.PasswdPath, provision.GroupPath)
		if err != nil {
			return err
		}
		if err := r.builder.InheritBase(base); err != nil {
			return err
		}
		r.base = base
		files = base.Files
	}

	id := r.cfg.Identity.Identity(r.cfg.App.InstallRoot)
	w, err := r.builder.NewLayer(IdentityLayer)
	if err != nil {
		return err
	}
	if err := r.p.provisioner.Provision(w, provision.Request{
		Identity:    id,
		Policy:      r.cfg.Identity.OnExisting,
		InstallRoot: r.cfg.App.InstallRoot,
		Files:       files,
	}); err != nil {
		return err
	}
	layer, err := w.Close()
	if err != nil {
		return err
	}
	r.written = append(r.written, layer.Entries...)

	_, _ = fmt.Fprintf(span, "identity %s (%s) owns %s\n", id.Name, id.Owner(), r.cfg.App.InstallRoot)
	return nil
}

// stageAssets copies the application and checks that the installation root belongs to the identity.
func (r *run) stageAssets(_ context.Context, span ports.Span) error {
	id := r.cfg.Identity.Identity(r.cfg.App.InstallRoot)
	w, err := r.builder.NewLayer(AppLayer)
	if err != nil {
		return err
	}
	n, err := r.p.stager.Stage(w, stager.Request{
		Root:        r.cfg.Root,
		Entrypoint:  r.cfg.App.Entrypoint,
		Resources:   r.cfg.App.Resources,
		InstallRoot: r.cfg.App.InstallRoot,
		Identity:    id,
	})
	if err != nil {
		return err
	}
	layer, err := w.Close()
	if err != nil {
		return err
	}
	r.written = append(r.written, layer.Entries...)

	// Covers every layer written so far, so nothing root-owned lands below the install root.
	if err := domain.VerifyOwnership(r.cfg.App.InstallRoot, id, r.written); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(span, "%d entries staged\n", n)
	return nil
}

// assemble fingerprints the inputs and commits the layout to the output path.
func (r *run) assemble(ctx context.Context, span ports.Span) error {
	cfg := r.cfg
	inputs := []string{
		cfg.Path(cfg.Python.Manifest),
		cfg.Path(cfg.Python.Lockfile),
		cfg.Path(cfg.App.Entrypoint),
		cfg.Path(cfg.App.Resources),
	}
	fingerprint, err := r.p.hasher.Fingerprint(inputs, map[string]string{
		"app_version":  cfg.AppVersion,
		"install_root": cfg.App.InstallRoot,
		"env_root":     cfg.Python.EnvRoot,
		"identity":     cfg.Identity.Identity(cfg.App.InstallRoot).Owner(),
		"platform":     cfg.Image.Platform,
		"base":         cfg.Image.Base,
		"requirements": string(r.list.Render()),
	})
	if err != nil {
		return err
	}

	var baseEnv []string
	if r.base != nil {
		baseEnv = r.base.Env
	}
	launch, err := domain.NewLaunchSpec(cfg, baseEnv)
	if err != nil {
		return err
	}

	out := cfg.Path(cfg.Image.Output)
	digest, err := r.builder.Commit(ctx, domain.ImageMeta{
		Launch:      launch,
		Ref:         cfg.Image.Ref,
		Version:     cfg.AppVersion,
		Fingerprint: fingerprint,
		Platform:    cfg.Image.Platform,
	}, out)
	if err != nil {
		return err
	}

	r.result = &domain.BuildResult{
		ImageDigest:  digest,
		Layout:       out,
		Requirements: r.list,
		Installed:    r.installed,
		Fingerprint:  fingerprint,
		Launch:       launch,
	}
	span.SetAttribute("kiln.digest", digest)
	_, _ = fmt.Fprintf(span, "%s\n", digest)
	return nil
}

// snapshot copies src to dst and returns dst.
func snapshot(src, dst string, sentinel error) (string, error) {
	in, err := os.Open(src) //nolint:gosec // src is a configured project input
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, sentinel.Error()), "path", src)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, domain.FilePerm) //nolint:gosec // dst is below the workspace
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, domain.ErrWorkspaceCreateFailed.Error()), "path", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return "", zerr.With(zerr.Wrap(err, sentinel.Error()), "path", src)
	}
	if err := out.Close(); err != nil {
		return "", zerr.With(zerr.Wrap(err, domain.ErrWorkspaceCreateFailed.Error()), "path", dst)
	}
	return dst, nil
}
