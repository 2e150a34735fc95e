// Package wheel unpacks wheel archives into an environment tree.
package wheel

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/go-ini/ini"
	"github.com/klauspost/compress/zip"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

// InstallerName is written to the INSTALLER file of every installed distribution.
const InstallerName = "kiln"

// scriptShebang starts every generated or rewritten script.
const scriptShebang = "#!/usr/bin/env python3"

// Installer implements ports.WheelInstaller.
type Installer struct{}

// NewInstaller creates a new Installer.
func NewInstaller() *Installer {
	return &Installer{}
}

// Install unpacks the wheel below envDir: package files go to site-packages,
// .data/scripts and console entry points to bin, .data/data to data.
func (i *Installer) Install(wheelPath, envDir string) error {
	zr, err := zip.OpenReader(wheelPath)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrWheelInstallFailed.Error()), "wheel", wheelPath)
	}
	defer func() { _ = zr.Close() }()

	distInfo, err := findDistInfo(zr.File)
	if err != nil {
		return zerr.With(err, "wheel", wheelPath)
	}
	dataDir := distName(distInfo) + ".data"

	site := domain.SitePackagesPath(envDir)
	bin := domain.ScriptsPath(envDir)
	for _, dir := range []string{site, bin, domain.DataPath(envDir)} {
		if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrWheelInstallFailed.Error()), "dir", dir)
		}
	}

	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		if err := checkMemberName(f.Name); err != nil {
			return zerr.With(err, "wheel", wheelPath)
		}
		dst, script, err := destination(f.Name, dataDir, envDir)
		if err != nil {
			return zerr.With(err, "wheel", wheelPath)
		}
		if err := extract(f, dst, script); err != nil {
			if errors.Is(err, fs.ErrExist) {
				err = conflict(envDir, distInfo, dst)
			}
			return zerr.With(err, "wheel", wheelPath)
		}
	}

	entryPoints, err := readMember(zr.File, distInfo+"/entry_points.txt")
	if err != nil {
		return zerr.With(err, "wheel", wheelPath)
	}
	if err := writeEntryPoints(entryPoints, bin); err != nil {
		return zerr.With(err, "wheel", wheelPath)
	}

	installer := filepath.Join(site, distInfo, "INSTALLER")
	if err := os.WriteFile(installer, []byte(InstallerName+"\n"), domain.FilePerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrWheelInstallFailed.Error()), "file", installer)
	}
	return nil
}

// checkMemberName rejects archive members that could escape the environment.
func checkMemberName(name string) error {
	clean := path.Clean(name)
	if name == "" || path.IsAbs(name) || strings.Contains(name, "\\") ||
		clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(name, "\x00") {
		return zerr.With(domain.ErrWheelInstallFailed, "unsafe_member", name)
	}
	return nil
}

// destination maps an archive member to its path below envDir.
func destination(name, dataDir, envDir string) (dst string, script bool, err error) {
	root, rel := domain.SitePackagesPath(envDir), name

	if after, ok := strings.CutPrefix(name, dataDir+"/"); ok {
		scheme, rest, found := strings.Cut(after, "/")
		if !found || rest == "" {
			return "", false, zerr.With(domain.ErrWheelInstallFailed, "unsafe_member", name)
		}
		switch scheme {
		case "purelib", "platlib":
			rel = rest
		case "scripts":
			root, rel, script = domain.ScriptsPath(envDir), rest, true
		case "data":
			root, rel = domain.DataPath(envDir), rest
		case "headers":
			root, rel = filepath.Join(domain.DataPath(envDir), "include"), rest
		default:
			return "", false, zerr.With(domain.ErrWheelInstallFailed, "unknown_scheme", scheme)
		}
	}

	dst, err = securejoin.SecureJoin(root, rel)
	if err != nil {
		return "", false, zerr.With(zerr.Wrap(err, domain.ErrWheelInstallFailed.Error()), "member", name)
	}
	return dst, script, nil
}

func extract(f *zip.File, dst string, script bool) error {
	if err := os.MkdirAll(filepath.Dir(dst), domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrWheelInstallFailed.Error()), "dir", filepath.Dir(dst))
	}

	rc, err := f.Open()
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrWheelInstallFailed.Error()), "member", f.Name)
	}
	defer func() { _ = rc.Close() }()

	var mode os.FileMode = domain.FilePerm
	if script || f.Mode()&0o111 != 0 {
		mode = domain.ImageExecMode
	}

	// #nosec G304 -- dst is confined to the environment by SecureJoin
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrWheelInstallFailed.Error()), "file", dst)
	}

	var src io.Reader = rc
	if script {
		src, err = rewriteShebang(rc)
		if err != nil {
			_ = out.Close()
			return zerr.With(err, "member", f.Name)
		}
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return zerr.With(zerr.Wrap(err, domain.ErrWheelInstallFailed.Error()), "file", dst)
	}
	if err := out.Close(); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrWheelInstallFailed.Error()), "file", dst)
	}
	return nil
}

// conflict reports a file that another distribution already installed at dst.
func conflict(envDir, distInfo, dst string) error {
	rel, err := filepath.Rel(envDir, dst)
	if err != nil {
		rel = dst
	}
	err = zerr.With(zerr.With(domain.ErrConflict, "file", filepath.ToSlash(rel)), "distribution", distName(distInfo))
	if owner := recordOwner(envDir, distInfo, dst); owner != "" {
		err = zerr.With(err, "installed_by", owner)
	}
	return err
}

// recordOwner returns the installed distribution whose RECORD lists dst, skipping self.
func recordOwner(envDir, self, dst string) string {
	site := domain.SitePackagesPath(envDir)
	records, _ := filepath.Glob(filepath.Join(site, "*.dist-info", "RECORD"))
	for _, record := range records {
		distInfo := filepath.Base(filepath.Dir(record))
		if distInfo == self {
			continue
		}
		f, err := os.Open(record) //nolint:gosec // record is below site-packages
		if err != nil {
			continue
		}
		rows, err := csv.NewReader(f).ReadAll()
		_ = f.Close()
		if err != nil {
			continue
		}
		dataDir := distName(distInfo) + ".data"
		for _, row := range rows {
			if len(row) == 0 || checkMemberName(row[0]) != nil {
				continue
			}
			if p, _, err := destination(row[0], dataDir, envDir); err == nil && p == dst {
				return distName(distInfo)
			}
		}
	}
	return ""
}

func distName(distInfo string) string {
	return strings.TrimSuffix(distInfo, ".dist-info")
}

// rewriteShebang replaces the "#!python" placeholder of wheel scripts.
func rewriteShebang(r io.Reader) (io.Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrWheelInstallFailed.Error())
	}
	if rest, ok := bytes.CutPrefix(data, []byte("#!python")); ok {
		if nl := bytes.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl:]
		} else {
			rest = []byte("\n")
		}
		data = append([]byte(scriptShebang), rest...)
	}
	return bytes.NewReader(data), nil
}

const scriptTemplate = `%s
# -*- coding: utf-8 -*-
import re
import sys
from %s import %s
if __name__ == "__main__":
    sys.argv[0] = re.sub(r"(-script\.pyw|\.exe)?$", "", sys.argv[0])
    sys.exit(%s())
`

// writeEntryPoints generates a launcher script per console and gui entry point.
func writeEntryPoints(data []byte, bin string) error {
	if len(data) == 0 {
		return nil
	}
	cfg, err := ini.LoadSources(ini.LoadOptions{
		KeyValueDelimiters:  "=",
		IgnoreInlineComment: true,
		Insensitive:         false,
	}, data)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrWheelInstallFailed.Error()), "member", "entry_points.txt")
	}

	for _, section := range []string{"console_scripts", "gui_scripts"} {
		sec, err := cfg.GetSection(section)
		if err != nil {
			continue
		}
		for _, key := range sec.Keys() {
			script, err := entryPointScript(key.Value())
			if err != nil {
				return zerr.With(err, "entry_point", key.Name())
			}
			dst, err := securejoin.SecureJoin(bin, key.Name())
			if err != nil || filepath.Dir(dst) != filepath.Clean(bin) {
				return zerr.With(domain.ErrWheelInstallFailed, "entry_point", key.Name())
			}
			if err := os.WriteFile(dst, []byte(script), domain.ImageExecMode); err != nil {
				return zerr.With(zerr.Wrap(err, domain.ErrWheelInstallFailed.Error()), "file", dst)
			}
		}
	}
	return nil
}

// entryPointScript renders the launcher for "module:attr.path [extras]".
func entryPointScript(ref string) (string, error) {
	ref, _, _ = strings.Cut(ref, "[")
	module, attr, ok := strings.Cut(strings.TrimSpace(ref), ":")
	module, attr = strings.TrimSpace(module), strings.TrimSpace(attr)
	if !ok || module == "" || attr == "" {
		return "", zerr.With(domain.ErrWheelInstallFailed, "reference", ref)
	}
	head, _, _ := strings.Cut(attr, ".")
	return fmt.Sprintf(scriptTemplate, scriptShebang, module, head, attr), nil
}
