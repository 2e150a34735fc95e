package wheel

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/core/ports"
)

// NodeID is the unique identifier for the wheel installer Graft node.
const NodeID graft.ID = "adapter.wheel"

func init() {
	graft.Register(graft.Node[ports.WheelInstaller]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.WheelInstaller, error) {
			return NewInstaller(), nil
		},
	})
}
