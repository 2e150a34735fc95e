package config

// Kilnfile represents the structure of the kiln.yaml configuration file.
// Pointer fields distinguish an explicit zero value from an omitted key.
type Kilnfile struct {
	Version  string       `yaml:"version"`
	App      *AppDTO      `yaml:"app"`
	Identity *IdentityDTO `yaml:"identity"`
	Python   *PythonDTO   `yaml:"python"`
	Index    *IndexDTO    `yaml:"index"`
	Image    *ImageDTO    `yaml:"image"`
	Server   *ServerDTO   `yaml:"server"`
}

// AppDTO represents the app section.
type AppDTO struct {
	Entrypoint  string `yaml:"entrypoint"`
	ASGI        string `yaml:"asgi"`
	Resources   string `yaml:"resources"`
	InstallRoot string `yaml:"install_root"`
}

// IdentityDTO represents the identity section.
type IdentityDTO struct {
	Name       string `yaml:"name"`
	UID        *int   `yaml:"uid"`
	GID        *int   `yaml:"gid"`
	OnExisting string `yaml:"on_existing"`
}

// PythonDTO represents the python section.
type PythonDTO struct {
	Manifest          string     `yaml:"manifest"`
	Lockfile          string     `yaml:"lockfile"`
	Groups            []string   `yaml:"groups"`
	Extras            []string   `yaml:"extras"`
	VerifyContentHash *bool      `yaml:"verify_content_hash"`
	RequireHashes     *bool      `yaml:"require_hashes"`
	EnvRoot           string     `yaml:"env_root"`
	PlatformTags      []string   `yaml:"platform_tags"`
	Target            *TargetDTO `yaml:"target"`
}

// TargetDTO represents the interpreter environment markers are evaluated against.
type TargetDTO struct {
	PythonVersion          string `yaml:"python_version"`
	PythonFullVersion      string `yaml:"python_full_version"`
	SysPlatform            string `yaml:"sys_platform"`
	PlatformSystem         string `yaml:"platform_system"`
	PlatformMachine        string `yaml:"platform_machine"`
	OSName                 string `yaml:"os_name"`
	ImplementationName     string `yaml:"implementation_name"`
	PlatformImplementation string `yaml:"platform_python_implementation"`
}

// IndexDTO represents the index section.
type IndexDTO struct {
	URL         string   `yaml:"url"`
	FindLinks   []string `yaml:"find_links"`
	Concurrency *int     `yaml:"concurrency"`
}

// ImageDTO represents the image section.
type ImageDTO struct {
	Base     string `yaml:"base"`
	Output   string `yaml:"output"`
	Ref      string `yaml:"ref"`
	Platform string `yaml:"platform"`
}

// ServerDTO represents the server section.
type ServerDTO struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}
