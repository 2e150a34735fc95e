package wheel

import (
	"bytes"
	"io"
	"net/mail"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

// ReadMetadata returns the core metadata of the wheel at wheelPath.
func (i *Installer) ReadMetadata(wheelPath string) (*domain.WheelMetadata, error) {
	zr, err := zip.OpenReader(wheelPath)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrWheelInstallFailed.Error()), "wheel", wheelPath)
	}
	defer func() { _ = zr.Close() }()

	distInfo, err := findDistInfo(zr.File)
	if err != nil {
		return nil, zerr.With(err, "wheel", wheelPath)
	}

	data, err := readMember(zr.File, distInfo+"/METADATA")
	if err != nil {
		return nil, zerr.With(err, "wheel", wheelPath)
	}

	meta, err := parseMetadata(data)
	if err != nil {
		return nil, zerr.With(err, "wheel", wheelPath)
	}
	return meta, nil
}

// parseMetadata parses the RFC 822 style METADATA file.
func parseMetadata(data []byte) (*domain.WheelMetadata, error) {
	// Some wheels omit the description body and its separating blank line.
	if !bytes.Contains(data, []byte("\n\n")) {
		data = append(bytes.TrimRight(data, "\n"), '\n', '\n')
	}
	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrWheelInstallFailed.Error())
	}

	name := msg.Header.Get("Name")
	if name == "" {
		return nil, zerr.With(domain.ErrWheelInstallFailed, "reason", "METADATA has no Name")
	}
	v, err := domain.ParseVersion(msg.Header.Get("Version"))
	if err != nil {
		return nil, err
	}

	meta := &domain.WheelMetadata{Name: domain.PackageName(name), Version: v}
	for _, spec := range msg.Header["Requires-Dist"] {
		dep, err := domain.ParseDependencySpec(spec)
		if err != nil {
			return nil, zerr.With(err, "requires_dist", spec)
		}
		meta.RequiresDist = append(meta.RequiresDist, dep)
	}
	return meta, nil
}

// findDistInfo returns the single top-level .dist-info directory that holds METADATA.
func findDistInfo(files []*zip.File) (string, error) {
	var found string
	for _, f := range files {
		dir, base, ok := strings.Cut(f.Name, "/")
		if !ok || base != "METADATA" || !strings.HasSuffix(dir, ".dist-info") {
			continue
		}
		if found != "" && found != dir {
			return "", zerr.With(domain.ErrWheelInstallFailed, "reason", "multiple .dist-info directories")
		}
		found = dir
	}
	if found == "" {
		return "", zerr.With(domain.ErrWheelInstallFailed, "reason", "no .dist-info/METADATA")
	}
	return found, nil
}

func readMember(files []*zip.File, name string) ([]byte, error) {
	for _, f := range files {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrWheelInstallFailed.Error()), "member", name)
		}
		defer func() { _ = rc.Close() }()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrWheelInstallFailed.Error()), "member", name)
		}
		return data, nil
	}
	return nil, nil
}
