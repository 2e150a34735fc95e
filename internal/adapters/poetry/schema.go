package poetry

// pyprojectFile is the subset of pyproject.toml kiln reads.
// tool.poetry stays untyped because its tables are hashed verbatim.
type pyprojectFile struct {
	Project *projectTable `toml:"project"`
	Tool    struct {
		Poetry map[string]any `toml:"poetry"`
	} `toml:"tool"`
}

// projectTable is the PEP 621 [project] table.
type projectTable struct {
	Name                 string              `toml:"name"`
	Version              string              `toml:"version"`
	RequiresPython       string              `toml:"requires-python"`
	Dependencies         []string            `toml:"dependencies"`
	OptionalDependencies map[string][]string `toml:"optional-dependencies"`
}

// lockFile is the structure of poetry.lock.
type lockFile struct {
	Package  []lockPackage `toml:"package"`
	Metadata lockMetadata  `toml:"metadata"`
}

type lockPackage struct {
	Name         string              `toml:"name"`
	Version      string              `toml:"version"`
	Files        []lockFileEntry     `toml:"files"`
	Dependencies map[string]any      `toml:"dependencies"`
	Extras       map[string][]string `toml:"extras"`
}

type lockFileEntry struct {
	File string `toml:"file"`
	Hash string `toml:"hash"`
}

type lockMetadata struct {
	LockVersion    string                     `toml:"lock-version"`
	PythonVersions string                     `toml:"python-versions"`
	ContentHash    string                     `toml:"content-hash"`
	Files          map[string][]lockFileEntry `toml:"files"`
}
