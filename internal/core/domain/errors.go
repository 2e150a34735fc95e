package domain

import "go.trai.ch/zerr"

var (
	// ErrResolutionMismatch is returned when the lockfile was not generated from the manifest.
	ErrResolutionMismatch = zerr.New("lockfile does not match manifest")

	// ErrUnresolvableDependency is returned when a pinned entry cannot be located or installed.
	ErrUnresolvableDependency = zerr.New("unresolvable dependency")

	// ErrConflict is returned when two entries impose incompatible requirements on a shared dependency,
	// or when two distributions install the same file.
	ErrConflict = zerr.New("conflicting dependency requirements")

	// ErrHashMismatch is returned when a downloaded distribution does not match any pinned hash.
	ErrHashMismatch = zerr.New("distribution hash does not match lockfile")

	// ErrIdentityCreation is returned when the runtime identity is invalid or already in use.
	ErrIdentityCreation = zerr.New("failed to create runtime identity")

	// ErrStageCopy is returned when a declared source asset is missing at copy time.
	ErrStageCopy = zerr.New("failed to stage asset")

	// ErrOwnershipViolation is returned when staged content is not owned exclusively by the runtime identity.
	ErrOwnershipViolation = zerr.New("installation root ownership violated")

	// ErrElevatedIdentity is returned when a process would run as the privileged identity.
	ErrElevatedIdentity = zerr.New("refusing to run as privileged identity")

	// ErrIdentitySwitch is returned when the current process cannot assume the runtime identity.
	ErrIdentitySwitch = zerr.New("cannot switch to runtime identity")

	// ErrInvalidVersion is returned when a version string is not a valid PEP 440 version.
	ErrInvalidVersion = zerr.New("invalid version")

	// ErrInvalidConstraint is returned when a version constraint cannot be parsed.
	ErrInvalidConstraint = zerr.New("invalid version constraint")

	// ErrInvalidMarker is returned when an environment marker cannot be parsed.
	ErrInvalidMarker = zerr.New("invalid environment marker")

	// ErrInvalidRequirement is returned when a requirement line is malformed or not exactly pinned.
	ErrInvalidRequirement = zerr.New("invalid requirement")

	// ErrInvalidConfig is returned when the build configuration fails validation.
	ErrInvalidConfig = zerr.New("invalid build configuration")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrManifestReadFailed is returned when the dependency manifest cannot be read.
	ErrManifestReadFailed = zerr.New("failed to read dependency manifest")

	// ErrManifestParseFailed is returned when the dependency manifest cannot be parsed.
	ErrManifestParseFailed = zerr.New("failed to parse dependency manifest")

	// ErrLockfileReadFailed is returned when the lockfile cannot be read.
	ErrLockfileReadFailed = zerr.New("failed to read lockfile")

	// ErrLockfileParseFailed is returned when the lockfile cannot be parsed.
	ErrLockfileParseFailed = zerr.New("failed to parse lockfile")

	// ErrIndexRequestFailed is returned when a package index request fails.
	ErrIndexRequestFailed = zerr.New("failed to query package index")

	// ErrIndexParseFailed is returned when a package index response cannot be parsed.
	ErrIndexParseFailed = zerr.New("failed to parse package index response")

	// ErrDistributionFetchFailed is returned when a distribution cannot be downloaded.
	ErrDistributionFetchFailed = zerr.New("failed to fetch distribution")

	// ErrWheelInstallFailed is returned when a wheel cannot be unpacked.
	ErrWheelInstallFailed = zerr.New("failed to install wheel")

	// ErrWorkspaceCreateFailed is returned when the isolated build workspace cannot be created.
	ErrWorkspaceCreateFailed = zerr.New("failed to create build workspace")

	// ErrHandoffFailed is returned when the requirement list cannot cross the stage boundary.
	ErrHandoffFailed = zerr.New("failed to hand off requirement list")

	// ErrLayerWriteFailed is returned when an image layer cannot be written.
	ErrLayerWriteFailed = zerr.New("failed to write image layer")

	// ErrBaseImageReadFailed is returned when the base image layout cannot be read.
	ErrBaseImageReadFailed = zerr.New("failed to read base image")

	// ErrImageWriteFailed is returned when the image layout cannot be written.
	ErrImageWriteFailed = zerr.New("failed to write image layout")

	// ErrImageReadFailed is returned when a built image layout cannot be read.
	ErrImageReadFailed = zerr.New("failed to read image layout")

	// ErrInvalidTransition is returned when the pipeline is asked to move to a stage out of order.
	ErrInvalidTransition = zerr.New("invalid pipeline transition")

	// ErrStageFailed is returned when a pipeline stage fails.
	ErrStageFailed = zerr.New("build stage failed")

	// ErrBuildFailed is returned when the build aborts.
	ErrBuildFailed = zerr.New("build failed")

	// ErrLaunchFailed is returned when the launched process cannot be started.
	ErrLaunchFailed = zerr.New("failed to launch process")
)
