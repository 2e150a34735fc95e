// Package config provides the kiln.yaml configuration loader.
package config

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// SupportedVersion is the only configuration schema version understood.
const SupportedVersion = "1"

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// Load reads the configuration at configPath. Relative paths in the result resolve
// against the directory of configPath. A missing file yields the defaults.
func (l *Loader) Load(configPath string) (*domain.BuildConfig, error) {
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigReadFailed.Error()), "path", configPath)
	}

	cfg := domain.DefaultBuildConfig()
	cfg.Root = filepath.Dir(abs)

	var kf Kilnfile
	found, err := readAndUnmarshalYAML(abs, &kf)
	if err != nil {
		return nil, zerr.With(err, "path", abs)
	}
	if !found {
		l.Logger.Warn(domain.ConfigFileName + " not found, using defaults")
	} else if err := apply(cfg, &kf); err != nil {
		return nil, zerr.With(err, "path", abs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, zerr.With(err, "path", abs)
	}
	return cfg, nil
}

// readAndUnmarshalYAML decodes the file strictly. It reports false when the file does not exist.
func readAndUnmarshalYAML[T any](configPath string, target *T) (bool, error) {
	// #nosec G304 -- configPath is provided by the operator
	data, err := os.ReadFile(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, zerr.Wrap(err, domain.ErrConfigReadFailed.Error())
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return false, zerr.Wrap(err, domain.ErrConfigParseFailed.Error())
	}
	return true, nil
}

func apply(cfg *domain.BuildConfig, kf *Kilnfile) error {
	if kf.Version != "" && kf.Version != SupportedVersion {
		return zerr.With(zerr.With(domain.ErrInvalidConfig, "field", "version"), "value", kf.Version)
	}

	if a := kf.App; a != nil {
		setString(&cfg.App.Entrypoint, a.Entrypoint)
		setString(&cfg.App.ASGI, a.ASGI)
		setString(&cfg.App.Resources, a.Resources)
		setString(&cfg.App.InstallRoot, a.InstallRoot)
	}

	if id := kf.Identity; id != nil {
		setString(&cfg.Identity.Name, id.Name)
		if id.UID != nil {
			cfg.Identity.UID = *id.UID
			cfg.Identity.GID = *id.UID
		}
		if id.GID != nil {
			cfg.Identity.GID = *id.GID
		}
		if id.OnExisting != "" {
			cfg.Identity.OnExisting = domain.ExistingPolicy(id.OnExisting)
		}
	}

	if p := kf.Python; p != nil {
		applyPython(&cfg.Python, p)
	}

	if ix := kf.Index; ix != nil {
		setString(&cfg.Index.URL, ix.URL)
		if ix.FindLinks != nil {
			cfg.Index.FindLinks = ix.FindLinks
		}
		if ix.Concurrency != nil {
			cfg.Index.Concurrency = *ix.Concurrency
		}
	}

	if im := kf.Image; im != nil {
		setString(&cfg.Image.Base, im.Base)
		setString(&cfg.Image.Output, im.Output)
		setString(&cfg.Image.Ref, im.Ref)
		setString(&cfg.Image.Platform, im.Platform)
	}

	if s := kf.Server; s != nil {
		setString(&cfg.Server.Command, s.Command)
		if s.Args != nil {
			cfg.Server.Args = s.Args
		}
	}
	return nil
}

func applyPython(cfg *domain.PythonConfig, p *PythonDTO) {
	setString(&cfg.Manifest, p.Manifest)
	setString(&cfg.Lockfile, p.Lockfile)
	setString(&cfg.EnvRoot, p.EnvRoot)
	if p.Groups != nil {
		cfg.Groups = p.Groups
	}
	if p.Extras != nil {
		cfg.Extras = p.Extras
	}
	if p.PlatformTags != nil {
		cfg.PlatformTags = p.PlatformTags
	}
	if p.VerifyContentHash != nil {
		cfg.VerifyContentHash = *p.VerifyContentHash
	}
	if p.RequireHashes != nil {
		cfg.RequireHashes = *p.RequireHashes
	}

	t := p.Target
	if t == nil {
		return
	}
	setString(&cfg.Target.PythonVersion, t.PythonVersion)
	setString(&cfg.Target.PythonFullVersion, t.PythonFullVersion)
	setString(&cfg.Target.SysPlatform, t.SysPlatform)
	setString(&cfg.Target.PlatformSystem, t.PlatformSystem)
	setString(&cfg.Target.PlatformMachine, t.PlatformMachine)
	setString(&cfg.Target.OSName, t.OSName)
	setString(&cfg.Target.ImplementationName, t.ImplementationName)
	setString(&cfg.Target.PlatformImplementation, t.PlatformImplementation)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
