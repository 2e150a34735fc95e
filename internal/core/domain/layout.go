package domain

import "path/filepath"

const (
	// KilnDirName is the name of the per-project kiln directory.
	KilnDirName = ".kiln"

	// ConfigFileName is the name of the build configuration file.
	ConfigFileName = "kiln.yaml"

	// RequirementsFileName is the name of the flat requirement list handed between stages.
	RequirementsFileName = "requirements.txt"

	// WorkspacePattern is the os.MkdirTemp pattern for isolated build workspaces.
	WorkspacePattern = "kiln-build-*"

	// DefaultInstallRoot is the conventional installation root inside the image.
	DefaultInstallRoot = "/app"

	// DefaultEntrypoint is the conventional entry-point source file.
	DefaultEntrypoint = "main.py"

	// DefaultResourcesDir is the conventional static resources directory.
	DefaultResourcesDir = "resources"

	// DefaultASGIAttr is the attribute of the entry-point module holding the ASGI application.
	DefaultASGIAttr = "app"

	// DefaultEnvRoot is where the installed Python environment lives inside the image.
	DefaultEnvRoot = "/opt/venv"

	// DefaultServerCommand is the ASGI server started by the launcher.
	DefaultServerCommand = "uvicorn"

	// BindAllInterfaces is the host the web server always binds to.
	BindAllInterfaces = "0.0.0.0"

	// DefaultIndexURL is the PEP 691 simple index used when none is configured.
	DefaultIndexURL = "https://pypi.org/simple"

	// DefaultFetchConcurrency bounds parallel distribution downloads.
	DefaultFetchConcurrency = 4

	// DefaultOutputPath is where the image layout is written.
	DefaultOutputPath = "dist/image"

	// DefaultPlatform is the image platform when none is configured.
	DefaultPlatform = "linux/amd64"

	// VersionEnvVar carries the version identifier inside the running process.
	VersionEnvVar = "APP_VERSION"

	// UnbufferedEnvVar disables output buffering of the Python interpreter.
	UnbufferedEnvVar = "PYTHONUNBUFFERED"

	// SourceDateEpochEnvVar pins layer and config timestamps for reproducible builds.
	SourceDateEpochEnvVar = "SOURCE_DATE_EPOCH"

	// DefaultPath is the PATH inherited when the base image declares none.
	DefaultPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

	// DirPerm is the default permission for host directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for host files (rw-r--r--).
	FilePerm = 0o644

	// ImageDirMode is the mode of directories inside image layers (rwxr-xr-x).
	ImageDirMode = 0o755

	// ImageFileMode is the mode of non-executable files inside image layers (rw-r--r--).
	ImageFileMode = 0o644

	// ImageExecMode is the mode of executable files inside image layers (rwxr-xr-x).
	ImageExecMode = 0o755
)

// SitePackagesPath returns the site-packages directory below an environment root.
func SitePackagesPath(envRoot string) string {
	return filepath.Join(envRoot, "site-packages")
}

// ScriptsPath returns the scripts directory below an environment root.
func ScriptsPath(envRoot string) string {
	return filepath.Join(envRoot, "bin")
}

// DataPath returns the data directory below an environment root.
func DataPath(envRoot string) string {
	return filepath.Join(envRoot, "data")
}
