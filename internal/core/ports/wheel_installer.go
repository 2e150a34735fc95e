package ports

import "go.trai.ch/kiln/internal/core/domain"

// WheelInstaller unpacks wheels into an environment tree.
//
//go:generate mockgen -source=wheel_installer.go -destination=mocks/mock_wheel_installer.go -package=mocks
type WheelInstaller interface {
	// ReadMetadata returns the name, version and Requires-Dist entries of a wheel.
	ReadMetadata(wheelPath string) (*domain.WheelMetadata, error)

	// Install unpacks the wheel below envDir, which mirrors the image environment root.
	Install(wheelPath, envDir string) error
}
