package opt

import (
	"errors"
	"fmt"
)

// ErrUnknownStrategy is a configuration error: the requested name is not registered.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Registry maps case-sensitive names to strategies, preserving registration order.
type Registry struct {
	order  []string
	byName map[string]Strategy
}

// NewRegistry panics on duplicate names.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{byName: make(map[string]Strategy, len(strategies))}
	for _, s := range strategies {
		if _, dup := r.byName[s.Name()]; dup {
			panic("opt: duplicate strategy " + s.Name())
		}
		r.byName[s.Name()] = s
		r.order = append(r.order, s.Name())
	}
	return r
}

// Default registers every built-in strategy. seed drives the random strategy.
func Default(seed int64) *Registry {
	return NewRegistry(
		LargestFirst(),
		SmallestFirst(),
		BestFit(),
		EarliestArrival(),
		TemporaryFirst(),
		ShortStayFirst(),
		LongStayFirst(),
		Random(seed),
		MultiObjective(),
		SlotTypeMatching(),
		ConstraintBased(),
		HybridOptimal(),
		Seasonal(),
		TimeBlock(),
	)
}

func (r *Registry) Lookup(name string) (Strategy, error) {
	s, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return s, nil
}

// Resolve maps names to strategies. No names selects every strategy; repeated
// names are run once.
func (r *Registry) Resolve(names []string) ([]Strategy, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	seen := map[string]struct{}{}
	out := make([]Strategy, 0, len(names))
	for _, n := range names {
		s, err := r.Lookup(n)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

func (r *Registry) Names() []string { return append([]string(nil), r.order...) }

func (r *Registry) All() []Strategy {
	out := make([]Strategy, len(r.order))
	for i, n := range r.order {
		out[i] = r.byName[n]
	}
	return out
}
