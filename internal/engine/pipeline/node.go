package pipeline

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/adapters/fs"        //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/logger"    //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/oci"       //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/poetry"    //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/telemetry" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/installer"
	"go.trai.ch/kiln/internal/engine/provision"
	"go.trai.ch/kiln/internal/engine/resolver"
	"go.trai.ch/kiln/internal/engine/stager"
)

// NodeID is the unique identifier for the pipeline Graft node.
const NodeID graft.ID = "engine.pipeline"

func init() {
	graft.Register(graft.Node[*Pipeline]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			logger.NodeID,
			telemetry.TracerNodeID,
			poetry.NodeID,
			oci.NodeID,
			fs.HasherNodeID,
			resolver.NodeID,
			installer.NodeID,
			provision.NodeID,
			stager.NodeID,
		},
		Run: runNode,
	})
}

func runNode(ctx context.Context) (*Pipeline, error) {
	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}
	tracer, err := graft.Dep[ports.Tracer](ctx)
	if err != nil {
		return nil, err
	}
	projects, err := graft.Dep[ports.ProjectLoader](ctx)
	if err != nil {
		return nil, err
	}
	images, err := graft.Dep[ports.ImageStore](ctx)
	if err != nil {
		return nil, err
	}
	hasher, err := graft.Dep[ports.Hasher](ctx)
	if err != nil {
		return nil, err
	}
	res, err := graft.Dep[*resolver.Resolver](ctx)
	if err != nil {
		return nil, err
	}
	inst, err := graft.Dep[*installer.Installer](ctx)
	if err != nil {
		return nil, err
	}
	prov, err := graft.Dep[*provision.Provisioner](ctx)
	if err != nil {
		return nil, err
	}
	stg, err := graft.Dep[*stager.Stager](ctx)
	if err != nil {
		return nil, err
	}

	return New(log, tracer, projects, images, hasher, res, inst, prov, stg), nil
}
