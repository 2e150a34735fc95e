package domain

// BuildResult describes a completed build.
type BuildResult struct {
	// ImageDigest is the digest of the image manifest.
	ImageDigest string

	// Layout is the directory holding the OCI image layout.
	Layout string

	// Requirements is the flat requirement list the environment was installed from.
	Requirements *RequirementList

	// Installed counts the distributions installed for the target.
	Installed int

	// Fingerprint is the xxhash fingerprint of the build inputs.
	Fingerprint string

	// Launch is the process invocation encoded in the image.
	Launch LaunchSpec
}
