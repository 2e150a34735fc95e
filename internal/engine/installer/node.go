package installer

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/adapters/logger"  //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/pyindex" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/wheel"   //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/core/ports"
)

// NodeID is the unique identifier for the installer Graft node.
const NodeID graft.ID = "engine.installer"

func init() {
	graft.Register(graft.Node[*Installer]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID, pyindex.NodeID, wheel.NodeID},
		Run: func(ctx context.Context) (*Installer, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			indexes, err := graft.Dep[ports.IndexFactory](ctx)
			if err != nil {
				return nil, err
			}

			wheels, err := graft.Dep[ports.WheelInstaller](ctx)
			if err != nil {
				return nil, err
			}

			return New(log, indexes, wheels), nil
		},
	})
}
