// Package passregistry holds the ordered declaration of passes with their
// fixed configuration and search-space generator (§3/§4.4's PassDescriptor
// and PassInstance).
package passregistry

import (
	"fmt"

	"github.com/elliotchance/orderedmap/v3"

	"github.com/olivefarm/enginecore/internal/hardware"
)

// SearchPoint is the strategy-chosen per-pass configuration, keyed by pass
// name, preserving declaration/choice order exactly like Olive's
// `pass_config`/`passes` dicts.
type SearchPoint = *orderedmap.OrderedMap[string, map[string]any]

// NewSearchPoint returns an empty, order-preserving SearchPoint.
func NewSearchPoint() SearchPoint {
	return orderedmap.NewOrderedMap[string, map[string]any]()
}

// PassInstance is a PassDescriptor bound to one AcceleratorSpec.
type PassInstance interface {
	// SearchSpace returns this pass's tunable parameters, possibly empty.
	SearchSpace() map[string]any
	// ValidateSearchPoint reports whether a chosen point is legal for this
	// pass's search space.
	ValidateSearchPoint(point map[string]any) bool
	// ConfigAt resolves a chosen search point into the pass's run config.
	ConfigAt(point map[string]any) (map[string]any, error)
	// SerializeConfig renders a resolved config into its cache-hash form.
	SerializeConfig(cfg map[string]any) map[string]any
	// IsAcceleratorAgnostic reports whether this pass's output is
	// independent of the given accelerator (eliding the accelerator
	// suffix from its cache key).
	IsAcceleratorAgnostic(spec hardware.AcceleratorSpec) bool
}

// Descriptor is a registered pass declaration, not yet bound to an
// accelerator.
type Descriptor struct {
	Type          string
	FixedConfig   map[string]any
	DisableSearch bool
	Host          string // "" means the engine-wide default host
	Evaluator     string // "" means the engine-wide default evaluator
	CleanRunCache bool
	OutputName    string

	// Generate produces a PassInstance bound to spec, mirroring Olive's
	// static generate_search_space(spec, fixed_config, disable_search).
	Generate func(spec hardware.AcceleratorSpec, fixedConfig map[string]any, disableSearch bool) (PassInstance, error)
}

// Registry is the ordered set of registered passes, in the order they will
// run within a single step (§5's "within a step, passes run strictly in
// the order provided").
type Registry struct {
	descriptors *orderedmap.OrderedMap[string, *Descriptor]
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{descriptors: orderedmap.NewOrderedMap[string, *Descriptor]()}
}

// Register adds a pass under name, renaming it with a numeric suffix if
// name collides with an already-registered pass (matching the prior
// auto-incrementing collision-avoidance convention for named resources).
func (r *Registry) Register(name string, d *Descriptor) string {
	final := name
	for i := 1; ; i++ {
		if _, exists := r.descriptors.Get(final); !exists {
			break
		}
		final = fmt.Sprintf("%s_%d", name, i)
	}
	r.descriptors.Set(final, d)
	return final
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	return r.descriptors.Get(name)
}

// Names returns registered pass names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, 0, r.descriptors.Len())
	for k := range r.descriptors.Keys() {
		out = append(out, k)
	}
	return out
}

// Len reports the number of registered passes.
func (r *Registry) Len() int { return r.descriptors.Len() }

// Instantiate binds every registered pass to spec, in registration order,
// producing the (name, PassInstance) pairs the SearchDriver iterates.
func (r *Registry) Instantiate(spec hardware.AcceleratorSpec) ([]NamedInstance, error) {
	out := make([]NamedInstance, 0, r.descriptors.Len())
	for name, d := range r.descriptors.AllFromFront() {
		inst, err := d.Generate(spec, d.FixedConfig, d.DisableSearch)
		if err != nil {
			return nil, fmt.Errorf("passregistry: instantiate %s: %w", name, err)
		}
		out = append(out, NamedInstance{Name: name, Descriptor: d, Instance: inst})
	}
	return out, nil
}

// NamedInstance pairs a registered pass name with its accelerator-bound
// instance and original descriptor.
type NamedInstance struct {
	Name       string
	Descriptor *Descriptor
	Instance   PassInstance
}
