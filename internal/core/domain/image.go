package domain

import "time"

// BaseImage is the parsed base image an image layout is built on.
type BaseImage struct {
	// Layout is the directory of the base OCI image layout.
	Layout string

	// Layers lists the base layers bottom-up.
	Layers []Layer

	// Env is the base config environment.
	Env []string

	// OS and Architecture describe the base platform.
	OS           string
	Architecture string

	// Files holds the contents of requested files as seen from the top-most layer.
	Files map[string][]byte
}

// ImageMeta carries everything the image config and index need besides the layers.
type ImageMeta struct {
	Launch      LaunchSpec
	Ref         string
	Version     string
	Fingerprint string
	Platform    string
	Created     time.Time
}

// WheelMetadata is the subset of a wheel's METADATA used for conflict detection.
type WheelMetadata struct {
	Name         InternedString
	Version      Version
	RequiresDist []Dependency
}

// LaunchOptions adjusts a host launch of a built image.
type LaunchOptions struct {
	// WorkingDir overrides the launch spec working directory, for images staged outside their install root.
	WorkingDir string

	// TTY runs the process on a pseudo-terminal.
	TTY bool
}
