package domain

import (
	"regexp"
	"strconv"

	"go.trai.ch/zerr"
)

const (
	// MinIdentityID is the lowest uid/gid accepted for the runtime identity (login.defs UID_MIN).
	MinIdentityID = 1000

	// MaxIdentityID is the highest uid/gid accepted for the runtime identity (login.defs UID_MAX).
	MaxIdentityID = 60000

	// NobodyID is the overflow id reserved for the nobody account.
	NobodyID = 65534

	// RootID is the privileged id.
	RootID = 0

	// DefaultIdentityName is the account name used when none is configured.
	DefaultIdentityName = "app"

	// DefaultIdentityID is the uid/gid used when none is configured.
	DefaultIdentityID = 1000

	// DefaultShell is the login shell of the runtime identity.
	DefaultShell = "/sbin/nologin"
)

var identityName = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

// ExistingPolicy decides what happens when the runtime identity is already present in the base image.
type ExistingPolicy string

const (
	// ExistingFail rejects an identity that is already present.
	ExistingFail ExistingPolicy = "fail"

	// ExistingReuse accepts an identical entry that is already present.
	ExistingReuse ExistingPolicy = "reuse"
)

// Valid reports whether p is a known policy.
func (p ExistingPolicy) Valid() bool {
	return p == ExistingFail || p == ExistingReuse
}

// Identity is the unprivileged account the served process runs as.
type Identity struct {
	// Name is the account and primary group name.
	Name string

	// UID is the numeric user id.
	UID int

	// GID is the numeric primary group id.
	GID int

	// Home is the home directory recorded in the passwd entry.
	Home string

	// Shell is the login shell recorded in the passwd entry.
	Shell string
}

// Validate checks the identity name and that both ids are in the non-system range.
func (i Identity) Validate() error {
	if !identityName.MatchString(i.Name) {
		return zerr.With(ErrIdentityCreation, "name", i.Name)
	}
	if err := validateID("uid", i.UID); err != nil {
		return zerr.With(err, "name", i.Name)
	}
	if err := validateID("gid", i.GID); err != nil {
		return zerr.With(err, "name", i.Name)
	}
	return nil
}

func validateID(kind string, id int) error {
	if id == RootID || id == NobodyID || id < MinIdentityID || id > MaxIdentityID {
		err := zerr.With(ErrIdentityCreation, kind, id)
		return zerr.With(err, "valid_range", strconv.Itoa(MinIdentityID)+"-"+strconv.Itoa(MaxIdentityID))
	}
	return nil
}

// Owner returns the numeric "uid:gid" form used in image configs.
func (i Identity) Owner() string {
	return strconv.Itoa(i.UID) + ":" + strconv.Itoa(i.GID)
}
