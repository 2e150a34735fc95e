package domain

import (
	"path"
	"strconv"
	"strings"

	"go.trai.ch/zerr"
)

// LaunchSpec is the process invocation encoded in the image config.
type LaunchSpec struct {
	// User is the numeric "uid:gid" the process runs as.
	User string

	// Env is the complete process environment as KEY=VALUE pairs.
	Env []string

	// Cmd is the argv of the web server process.
	Cmd []string

	// WorkingDir is the directory the process starts in.
	WorkingDir string
}

// NewLaunchSpec derives the launch spec from the build config and the base image environment.
func NewLaunchSpec(cfg *BuildConfig, baseEnv []string) (LaunchSpec, error) {
	id := cfg.Identity.Identity(cfg.App.InstallRoot)
	if id.UID == RootID {
		return LaunchSpec{}, zerr.With(ErrElevatedIdentity, "uid", id.UID)
	}

	return LaunchSpec{
		User:       id.Owner(),
		Env:        LaunchEnv(baseEnv, cfg.Python.EnvRoot, cfg.AppVersion),
		Cmd:        ServerCommand(cfg),
		WorkingDir: cfg.App.InstallRoot,
	}, nil
}

// ServerCommand returns the argv that starts the ASGI server on all interfaces.
// No port is passed; the server resolves it from its own defaults or environment.
func ServerCommand(cfg *BuildConfig) []string {
	cmd := []string{
		cfg.Server.Command,
		ModuleName(cfg.App.Entrypoint) + ":" + cfg.App.ASGI,
		"--host", BindAllInterfaces,
	}
	return append(cmd, cfg.Server.Args...)
}

// ModuleName converts an entry-point file path to its Python module path.
func ModuleName(entrypoint string) string {
	p := path.Clean(strings.ReplaceAll(entrypoint, "\\", "/"))
	p = strings.TrimSuffix(p, ".py")
	return strings.ReplaceAll(strings.TrimPrefix(p, "./"), "/", ".")
}

// LaunchEnv merges the base environment with the variables the launcher contract requires.
// Base order is kept; replaced keys stay in place and new keys follow in a fixed order.
func LaunchEnv(base []string, envRoot, version string) []string {
	basePath := ""
	for _, kv := range base {
		if k, v, _ := strings.Cut(kv, "="); k == "PATH" {
			basePath = v
		}
	}
	if basePath == "" {
		basePath = DefaultPath
	}

	required := []struct{ key, value string }{
		{"PATH", ScriptsPath(envRoot) + ":" + basePath},
		{"PYTHONPATH", SitePackagesPath(envRoot)},
		{UnbufferedEnvVar, "1"},
		{VersionEnvVar, version},
	}

	env := make([]string, 0, len(base)+len(required))
	placed := make(map[string]bool)
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		replaced := false
		for _, r := range required {
			if r.key == k {
				if !placed[k] {
					env = append(env, r.key+"="+r.value)
					placed[k] = true
				}
				replaced = true
				break
			}
		}
		if !replaced {
			env = append(env, kv)
		}
	}
	for _, r := range required {
		if !placed[r.key] {
			env = append(env, r.key+"="+r.value)
		}
	}
	return env
}

// ParseUser parses a numeric "uid:gid" or "uid" user string.
func ParseUser(s string) (uid, gid int, err error) {
	u, g, hasGroup := strings.Cut(s, ":")
	uid, err = strconv.Atoi(u)
	if err != nil || uid < 0 {
		return 0, 0, zerr.With(ErrIdentitySwitch, "user", s)
	}
	gid = uid
	if hasGroup {
		gid, err = strconv.Atoi(g)
		if err != nil || gid < 0 {
			return 0, 0, zerr.With(ErrIdentitySwitch, "user", s)
		}
	}
	return uid, gid, nil
}

// Identity returns the uid and gid of the launch spec, refusing the privileged identity.
func (s LaunchSpec) Identity() (uid, gid int, err error) {
	if s.User == "" {
		return 0, 0, zerr.With(ErrElevatedIdentity, "user", "<unset>")
	}
	uid, gid, err = ParseUser(s.User)
	if err != nil {
		return 0, 0, err
	}
	if uid == RootID {
		return 0, 0, zerr.With(ErrElevatedIdentity, "user", s.User)
	}
	return uid, gid, nil
}

// Getenv returns the value of key in the launch spec environment.
func (s LaunchSpec) Getenv(key string) (string, bool) {
	for _, kv := range s.Env {
		if k, v, _ := strings.Cut(kv, "="); k == key {
			return v, true
		}
	}
	return "", false
}
