// Package system provides the lifecycle-managed Service interface and a
// deterministic start/stop Manager, shared by the scheduler and any other
// background component.
package system

import (
	"context"

	core "github.com/candlewarehouse/engine/internal/app/core/service"
)

// Service represents a lifecycle-managed component. Every background
// component in the engine implements this so the manager can start and stop
// them deterministically.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// DescriptorProvider optionally advertises service metadata.
type DescriptorProvider interface {
	Descriptor() core.Descriptor
}
