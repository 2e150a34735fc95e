package domain

import "go.trai.ch/zerr"

// Stage is a state of the build pipeline.
type Stage string

const (
	// StagePending indicates the build has not started.
	StagePending Stage = "pending"
	// StageResolving indicates the lockfile is being projected into a requirement list.
	StageResolving Stage = "resolve"
	// StageInstalling indicates distributions are being fetched and installed.
	StageInstalling Stage = "install"
	// StageProvisioning indicates the runtime identity and installation root are being written.
	StageProvisioning Stage = "provision"
	// StageStaging indicates application assets are being copied.
	StageStaging Stage = "stage"
	// StageAssembling indicates the image layout is being written.
	StageAssembling Stage = "assemble"
	// StageReady indicates the image is complete.
	StageReady Stage = "ready"
	// StageAborted indicates a stage failed and the build stopped.
	StageAborted Stage = "aborted"
)

// StageOrder lists the working stages in execution order.
var StageOrder = []Stage{StageResolving, StageInstalling, StageProvisioning, StageStaging, StageAssembling}

// Next returns the stage that follows s on success. Terminal stages return themselves.
func (s Stage) Next() Stage {
	switch s {
	case StagePending:
		return StageResolving
	case StageResolving:
		return StageInstalling
	case StageInstalling:
		return StageProvisioning
	case StageProvisioning:
		return StageStaging
	case StageStaging:
		return StageAssembling
	case StageAssembling:
		return StageReady
	default:
		return s
	}
}

// IsTerminal reports whether no further transition is possible.
func (s Stage) IsTerminal() bool {
	return s == StageReady || s == StageAborted
}

// Transition validates moving from s to next.
// Only the immediate successor or an abort from a non-terminal stage is allowed.
func (s Stage) Transition(next Stage) (Stage, error) {
	if s.IsTerminal() {
		return s, zerr.With(zerr.With(ErrInvalidTransition, "from", string(s)), "to", string(next))
	}
	if next == StageAborted || next == s.Next() {
		return next, nil
	}
	return s, zerr.With(zerr.With(ErrInvalidTransition, "from", string(s)), "to", string(next))
}
