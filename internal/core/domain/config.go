package domain

import (
	"path"
	"path/filepath"
	"strings"

	"go.trai.ch/zerr"
)

// BuildConfig is the validated build configuration.
type BuildConfig struct {
	// Root is the absolute project directory that relative paths are resolved against.
	Root string

	// AppVersion is the version identifier bound into the process environment.
	AppVersion string

	App      AppConfig
	Identity IdentityConfig
	Python   PythonConfig
	Index    IndexConfig
	Image    ImageConfig
	Server   ServerConfig
}

// AppConfig describes the application assets.
type AppConfig struct {
	Entrypoint  string
	ASGI        string
	Resources   string
	InstallRoot string
}

// IdentityConfig describes the runtime identity.
type IdentityConfig struct {
	Name       string
	UID        int
	GID        int
	OnExisting ExistingPolicy
}

// Identity returns the configured identity with home set to home.
func (c IdentityConfig) Identity(home string) Identity {
	return Identity{
		Name:  c.Name,
		UID:   c.UID,
		GID:   c.GID,
		Home:  home,
		Shell: DefaultShell,
	}
}

// PythonConfig describes the manifest inputs and the target interpreter.
type PythonConfig struct {
	Manifest          string
	Lockfile          string
	Groups            []string
	Extras            []string
	VerifyContentHash bool
	RequireHashes     bool
	EnvRoot           string
	PlatformTags      []string
	Target            TargetConfig
}

// TargetConfig describes the interpreter environment markers are evaluated against.
type TargetConfig struct {
	PythonVersion          string
	PythonFullVersion      string
	SysPlatform            string
	PlatformSystem         string
	PlatformMachine        string
	OSName                 string
	ImplementationName     string
	PlatformImplementation string
}

// MarkerEnv returns the PEP 508 environment for the target.
func (t TargetConfig) MarkerEnv() MarkerEnv {
	full := t.PythonFullVersion
	if full == "" {
		full = t.PythonVersion + ".0"
	}
	return MarkerEnv{
		"python_version":                 t.PythonVersion,
		"python_full_version":            full,
		"sys_platform":                   t.SysPlatform,
		"platform_system":                t.PlatformSystem,
		"platform_machine":               t.PlatformMachine,
		"os_name":                        t.OSName,
		"implementation_name":            t.ImplementationName,
		"implementation_version":         full,
		"platform_python_implementation": t.PlatformImplementation,
		"platform_release":               "",
		"platform_version":               "",
		"extra":                          "",
	}
}

// IndexConfig describes where distributions are fetched from.
type IndexConfig struct {
	URL         string
	FindLinks   []string
	Concurrency int
}

// ImageConfig describes the assembled image.
type ImageConfig struct {
	Base     string
	Output   string
	Ref      string
	Platform string
}

// ServerConfig describes the ASGI server invocation.
type ServerConfig struct {
	Command string
	Args    []string
}

// DefaultBuildConfig returns the configuration used when no kiln.yaml is present.
func DefaultBuildConfig() *BuildConfig {
	return &BuildConfig{
		App: AppConfig{
			Entrypoint:  DefaultEntrypoint,
			ASGI:        DefaultASGIAttr,
			Resources:   DefaultResourcesDir,
			InstallRoot: DefaultInstallRoot,
		},
		Identity: IdentityConfig{
			Name:       DefaultIdentityName,
			UID:        DefaultIdentityID,
			GID:        DefaultIdentityID,
			OnExisting: ExistingFail,
		},
		Python: PythonConfig{
			Manifest:          "pyproject.toml",
			Lockfile:          "poetry.lock",
			Groups:            []string{DefaultGroup},
			VerifyContentHash: true,
			RequireHashes:     true,
			EnvRoot:           DefaultEnvRoot,
			PlatformTags:      []string{"py3-none-any"},
			Target: TargetConfig{
				PythonVersion:          "3.12",
				SysPlatform:            "linux",
				PlatformSystem:         "Linux",
				PlatformMachine:        "x86_64",
				OSName:                 "posix",
				ImplementationName:     "cpython",
				PlatformImplementation: "CPython",
			},
		},
		Index: IndexConfig{
			URL:         DefaultIndexURL,
			Concurrency: DefaultFetchConcurrency,
		},
		Image: ImageConfig{
			Output:   DefaultOutputPath,
			Platform: DefaultPlatform,
		},
		Server: ServerConfig{
			Command: DefaultServerCommand,
		},
	}
}

// Path resolves p against the project root unless it is absolute.
func (c *BuildConfig) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// Validate checks every field needed to resolve dependencies.
func (c *BuildConfig) Validate() error {
	if c.Python.Manifest == "" || c.Python.Lockfile == "" {
		return zerr.With(ErrInvalidConfig, "field", "python.manifest/python.lockfile")
	}
	if len(c.Python.Groups) == 0 {
		return zerr.With(ErrInvalidConfig, "field", "python.groups")
	}
	if c.Python.Target.PythonVersion == "" {
		return zerr.With(ErrInvalidConfig, "field", "python.target.python_version")
	}
	if _, err := ParseVersion(c.Python.Target.PythonVersion); err != nil {
		return zerr.With(zerr.Wrap(err, ErrInvalidConfig.Error()), "field", "python.target.python_version")
	}
	return nil
}

// ValidateForBuild checks every field needed to assemble an image.
func (c *BuildConfig) ValidateForBuild() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.AppVersion == "" {
		return zerr.With(ErrInvalidConfig, "field", "app version")
	}
	if !path.IsAbs(c.App.InstallRoot) || path.Clean(c.App.InstallRoot) == "/" {
		return zerr.With(zerr.With(ErrInvalidConfig, "field", "app.install_root"), "value", c.App.InstallRoot)
	}
	if c.App.Entrypoint == "" || !strings.HasSuffix(c.App.Entrypoint, ".py") {
		return zerr.With(zerr.With(ErrInvalidConfig, "field", "app.entrypoint"), "value", c.App.Entrypoint)
	}
	if c.App.Resources == "" {
		return zerr.With(ErrInvalidConfig, "field", "app.resources")
	}
	if c.App.ASGI == "" || c.Server.Command == "" {
		return zerr.With(ErrInvalidConfig, "field", "app.asgi/server.command")
	}
	if !path.IsAbs(c.Python.EnvRoot) || path.Clean(c.Python.EnvRoot) == "/" {
		return zerr.With(zerr.With(ErrInvalidConfig, "field", "python.env_root"), "value", c.Python.EnvRoot)
	}
	if within(c.Python.EnvRoot, c.App.InstallRoot) || within(c.App.InstallRoot, c.Python.EnvRoot) {
		err := zerr.With(zerr.With(ErrInvalidConfig, "field", "python.env_root"), "value", c.Python.EnvRoot)
		return zerr.With(err, "reason", "overlaps app.install_root "+c.App.InstallRoot)
	}
	if c.Index.Concurrency < 1 {
		return zerr.With(zerr.With(ErrInvalidConfig, "field", "index.concurrency"), "value", c.Index.Concurrency)
	}
	if len(c.Python.PlatformTags) == 0 {
		return zerr.With(ErrInvalidConfig, "field", "python.platform_tags")
	}
	if !c.Identity.OnExisting.Valid() {
		return zerr.With(zerr.With(ErrInvalidConfig, "field", "identity.on_existing"), "value", string(c.Identity.OnExisting))
	}
	if c.Image.Output == "" {
		return zerr.With(ErrInvalidConfig, "field", "image.output")
	}
	if _, _, ok := strings.Cut(c.Image.Platform, "/"); !ok {
		return zerr.With(zerr.With(ErrInvalidConfig, "field", "image.platform"), "value", c.Image.Platform)
	}
	return c.Identity.Identity(c.App.InstallRoot).Validate()
}

// within reports whether p is dir or lies below it.
func within(p, dir string) bool {
	p, dir = path.Clean(p), path.Clean(dir)
	return p == dir || strings.HasPrefix(p, dir+"/")
}
