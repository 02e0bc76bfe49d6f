// Package service holds small, dependency-free helpers shared by every
// domain service: descriptors for orchestration introspection, observation
// hooks, and list-limit clamping.
package service

// Layer describes the architectural slice a component belongs to.
type Layer string

const (
	LayerIngress Layer = "ingress"
	LayerAdapter Layer = "adapter"
	LayerEngine  Layer = "engine"
	LayerData    Layer = "data"
)

// Descriptor advertises a component's placement and capabilities. It does
// not change runtime behavior; it lets the scheduler and CLI introspect
// registered components uniformly.
type Descriptor struct {
	Name         string
	Domain       string
	Layer        Layer
	Capabilities []string
}

// WithCapabilities returns a copy of d with additional capabilities appended.
func (d Descriptor) WithCapabilities(caps ...string) Descriptor {
	if len(caps) == 0 {
		return d
	}
	combined := make([]string, 0, len(d.Capabilities)+len(caps))
	combined = append(combined, d.Capabilities...)
	combined = append(combined, caps...)
	d.Capabilities = combined
	return d
}
