//go:build e2e

package e2e_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/rogpeppe/go-internal/testscript"
)

var kilnBinary string

func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "kiln-e2e-*")
	if err != nil {
		panic(err)
	}

	kilnBinary = filepath.Join(tmpDir, "kiln")

	//nolint:gosec // Building binary with static arguments, not user input
	cmd := exec.Command("go", "build", "-o", kilnBinary, "./cmd/kiln")
	cmd.Dir = ".."
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		panic("failed to build kiln binary: " + err.Error())
	}

	exitCode := m.Run()

	_ = os.RemoveAll(tmpDir)

	os.Exit(exitCode)
}

func TestScripts(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir:   "testdata",
		Setup: setupE2E,
		Cmds: map[string]func(ts *testscript.TestScript, neg bool, args []string){
			"mkwheel": mkwheel,
		},
	})
}

func setupE2E(env *testscript.Env) error {
	env.Setenv("NO_COLOR", "1")
	env.Setenv("CI", "true")

	binDir := filepath.Dir(kilnBinary)
	currentPath := env.Getenv("PATH")
	env.Setenv("PATH", binDir+string(os.PathListSeparator)+currentPath)

	homeDir := filepath.Join(env.WorkDir, ".home")
	if err := os.MkdirAll(homeDir, 0o750); err != nil {
		return err
	}
	env.Setenv("HOME", homeDir)

	return nil
}

// mkwheel writes a pure-Python wheel: mkwheel <dir> <name> <version>.
func mkwheel(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("unsupported: ! mkwheel")
	}
	if len(args) != 3 {
		ts.Fatalf("usage: mkwheel <dir> <name> <version>")
	}
	dir, name, version := ts.MkAbs(args[0]), args[1], args[2]
	distInfo := name + "-" + version + ".dist-info"
	members := []struct{ name, body string }{
		{name + "/__init__.py", "__version__ = \"" + version + "\"\n"},
		{distInfo + "/METADATA", "Metadata-Version: 2.1\nName: " + name + "\nVersion: " + version + "\n"},
		{distInfo + "/WHEEL", "Wheel-Version: 1.0\nRoot-Is-Purelib: true\nTag: py3-none-any\n"},
		{distInfo + "/RECORD", name + "/__init__.py,,\n" + distInfo + "/METADATA,,\n" + distInfo + "/WHEEL,,\n" + distInfo + "/RECORD,,\n"},
	}

	ts.Check(os.MkdirAll(dir, 0o750))
	f, err := os.Create(filepath.Join(dir, name+"-"+version+"-py3-none-any.whl"))
	ts.Check(err)
	zw := zip.NewWriter(f)
	for _, m := range members {
		w, err := zw.Create(m.name)
		ts.Check(err)
		_, err = w.Write([]byte(m.body))
		ts.Check(err)
	}
	ts.Check(zw.Close())
	ts.Check(f.Close())
}
