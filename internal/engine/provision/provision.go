// Package provision writes the runtime identity and the installation root into an image layer.
package provision

import (
	"bytes"
	"fmt"
	"path"

	"github.com/moby/sys/user"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	// PasswdPath is the account database inside the image.
	PasswdPath = "/etc/passwd"

	// GroupPath is the group database inside the image.
	GroupPath = "/etc/group"

	minimalPasswd = "root:x:0:0:root:/root:/sbin/nologin\n"
	minimalGroup  = "root:x:0:\n"
)

// Request describes one provisioning run.
type Request struct {
	// Identity is the account to create.
	Identity domain.Identity

	// Policy decides what happens when an identical account already exists.
	Policy domain.ExistingPolicy

	// InstallRoot is the directory handed to the identity.
	InstallRoot string

	// Files holds the base image contents of PasswdPath and GroupPath.
	// A missing entry starts from a root-only database.
	Files map[string][]byte
}

// Provisioner creates the runtime identity.
type Provisioner struct {
	logger ports.Logger
}

// New creates a Provisioner.
func New(logger ports.Logger) *Provisioner {
	return &Provisioner{logger: logger}
}

// Provision validates the identity against the base account databases and writes
// root-owned passwd and group files, root-owned parents of the install root,
// and the install root itself owned by the identity.
func (p *Provisioner) Provision(w ports.LayerWriter, req Request) error {
	id := req.Identity
	if err := id.Validate(); err != nil {
		return err
	}
	if path.Clean(req.InstallRoot) == path.Dir(PasswdPath) {
		return zerr.With(zerr.With(domain.ErrInvalidConfig, "field", "app.install_root"), "value", req.InstallRoot)
	}
	if !req.Policy.Valid() {
		return zerr.With(zerr.With(domain.ErrInvalidConfig, "field", "identity.on_existing"), "value", string(req.Policy))
	}

	passwd := baseFile(req.Files, PasswdPath, minimalPasswd)
	group := baseFile(req.Files, GroupPath, minimalGroup)

	userExists, err := checkUsers(passwd, id)
	if err != nil {
		return err
	}
	groupExists, err := checkGroups(group, id)
	if err != nil {
		return err
	}

	if userExists || groupExists {
		if req.Policy == domain.ExistingFail {
			err := zerr.With(domain.ErrIdentityCreation, "name", id.Name)
			return zerr.With(err, "reason", "identity already present in base image (identity.on_existing: fail)")
		}
		p.logger.Info(fmt.Sprintf("reusing identity %s (%s) from base image", id.Name, id.Owner()))
	}

	if !userExists {
		passwd = appendLine(passwd, fmt.Sprintf("%s:x:%d:%d::%s:%s", id.Name, id.UID, id.GID, id.Home, id.Shell))
	}
	if !groupExists {
		group = appendLine(group, fmt.Sprintf("%s:x:%d:", id.Name, id.GID))
	}

	if err := writeLayer(w, req.InstallRoot, id, passwd, group); err != nil {
		return err
	}
	p.logger.Info(fmt.Sprintf("provisioned identity %s (%s) owning %s", id.Name, id.Owner(), req.InstallRoot))
	return nil
}

func baseFile(files map[string][]byte, name, fallback string) []byte {
	if data, ok := files[name]; ok {
		return bytes.Clone(data)
	}
	return []byte(fallback)
}

// checkUsers reports whether an identical account exists. A name or uid held by a different account is an error.
func checkUsers(passwd []byte, id domain.Identity) (bool, error) {
	users, err := user.ParsePasswd(bytes.NewReader(passwd))
	if err != nil {
		return false, zerr.With(zerr.Wrap(err, domain.ErrIdentityCreation.Error()), "file", PasswdPath)
	}

	exists := false
	for _, u := range users {
		switch {
		case u.Name == id.Name && u.Uid == id.UID && u.Gid == id.GID:
			exists = true
		case u.Name == id.Name:
			err := zerr.With(zerr.With(domain.ErrIdentityCreation, "name", id.Name), "reason", "name already used with a different id")
			return false, zerr.With(err, "existing", fmt.Sprintf("%d:%d", u.Uid, u.Gid))
		case u.Uid == id.UID:
			err := zerr.With(zerr.With(domain.ErrIdentityCreation, "uid", id.UID), "reason", "uid already used by another account")
			return false, zerr.With(err, "existing", u.Name)
		}
	}
	return exists, nil
}

// checkGroups reports whether an identical group exists. A name or gid held by a different group is an error.
func checkGroups(group []byte, id domain.Identity) (bool, error) {
	groups, err := user.ParseGroup(bytes.NewReader(group))
	if err != nil {
		return false, zerr.With(zerr.Wrap(err, domain.ErrIdentityCreation.Error()), "file", GroupPath)
	}

	exists := false
	for _, g := range groups {
		switch {
		case g.Name == id.Name && g.Gid == id.GID:
			exists = true
		case g.Name == id.Name:
			err := zerr.With(zerr.With(domain.ErrIdentityCreation, "group", id.Name), "reason", "group name already used with a different gid")
			return false, zerr.With(err, "existing", g.Gid)
		case g.Gid == id.GID:
			err := zerr.With(zerr.With(domain.ErrIdentityCreation, "gid", id.GID), "reason", "gid already used by another group")
			return false, zerr.With(err, "existing", g.Name)
		}
	}
	return exists, nil
}

func appendLine(data []byte, line string) []byte {
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	return append(append(data, line...), '\n')
}

func writeLayer(w ports.LayerWriter, installRoot string, id domain.Identity, passwd, group []byte) error {
	root := path.Clean(installRoot)
	written := make(map[string]bool)

	dir := func(p string, uid, gid int) error {
		if written[p] {
			return nil
		}
		written[p] = true
		return w.AddDir(domain.LayerEntry{Path: p, Type: domain.EntryDir, Mode: domain.ImageDirMode, UID: uid, GID: gid})
	}

	if err := dir(path.Dir(PasswdPath), domain.RootID, domain.RootID); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		data []byte
	}{{PasswdPath, passwd}, {GroupPath, group}} {
		entry := domain.LayerEntry{
			Path: f.name,
			Type: domain.EntryFile,
			Mode: domain.ImageFileMode,
			UID:  domain.RootID,
			GID:  domain.RootID,
			Size: int64(len(f.data)),
		}
		if err := w.AddFile(entry, bytes.NewReader(f.data)); err != nil {
			return err
		}
	}

	for _, parent := range domain.ParentDirs(root) {
		if err := dir(parent, domain.RootID, domain.RootID); err != nil {
			return err
		}
	}
	return dir(root, id.UID, id.GID)
}
