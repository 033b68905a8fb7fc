package workflow

import (
	"context"
	"fmt"
	"sort"
)

// GuardFunc decides whether a transition may be taken. A non-nil error
// refuses the transition and is reported as the reason.
type GuardFunc func(ctx context.Context) error

// Transition describes one applied state change
type Transition struct {
	From    State
	To      State
	Trigger Trigger
}

type edge struct {
	to    State
	guard GuardFunc
}

// Definition is an immutable set of permitted transitions.
// Build one with NewBuilder and share it across machines.
type Definition struct {
	edges map[State]map[Trigger][]edge
}

// Builder configures a Definition
type Builder struct {
	edges map[State]map[Trigger][]edge
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{edges: make(map[State]map[Trigger][]edge)}
}

// StateConfig configures the outgoing transitions of one state
type StateConfig struct {
	builder *Builder
	from    State
}

// Configure returns the configuration of a state. It panics on an unknown
// state since lifecycles are wired at startup.
func (b *Builder) Configure(state State) *StateConfig {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	if _, ok := b.edges[state]; !ok {
		b.edges[state] = make(map[Trigger][]edge)
	}
	return &StateConfig{builder: b, from: state}
}

// Permit allows trigger to move the state to toState
func (c *StateConfig) Permit(trigger Trigger, toState State) *StateConfig {
	return c.PermitIf(trigger, toState, nil)
}

// PermitIf allows the transition when guard returns nil. Guards for the
// same trigger are tried in registration order.
func (c *StateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) *StateConfig {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	c.builder.edges[c.from][trigger] = append(c.builder.edges[c.from][trigger], edge{to: toState, guard: guard})
	return c
}

// Definition freezes the configured transitions
func (b *Builder) Definition() *Definition {
	frozen := make(map[State]map[Trigger][]edge, len(b.edges))
	for state, triggers := range b.edges {
		copied := make(map[Trigger][]edge, len(triggers))
		for trigger, edges := range triggers {
			copied[trigger] = append([]edge(nil), edges...)
		}
		frozen[state] = copied
	}
	return &Definition{edges: frozen}
}

// Machine tracks the state of a single entity against a Definition
type Machine struct {
	def     *Definition
	current State
}

// NewMachine starts a machine at the given state
func (d *Definition) NewMachine(current State) (*Machine, error) {
	if !current.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, current)
	}
	return &Machine{def: d, current: current}, nil
}

// State returns the current state
func (m *Machine) State() State {
	return m.current
}

// CanFire reports whether any transition exists for trigger, without running guards
func (m *Machine) CanFire(trigger Trigger) bool {
	return len(m.def.edges[m.current][trigger]) > 0
}

// Fire applies the first transition whose guard passes
func (m *Machine) Fire(ctx context.Context, trigger Trigger) (Transition, error) {
	edges := m.def.edges[m.current][trigger]
	if len(edges) == 0 {
		return Transition{}, fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, trigger, m.current)
	}

	var refusal error
	for _, e := range edges {
		if e.guard != nil {
			if err := e.guard(ctx); err != nil {
				refusal = err
				continue
			}
		}
		t := Transition{From: m.current, To: e.to, Trigger: trigger}
		m.current = e.to
		return t, nil
	}

	return Transition{}, fmt.Errorf("%w: %s from %s: %v", ErrGuardFailed, trigger, m.current, refusal)
}

// PermittedTriggers returns the triggers configured for the current state, sorted
func (m *Machine) PermittedTriggers() []Trigger {
	triggers := make([]Trigger, 0, len(m.def.edges[m.current]))
	for trigger := range m.def.edges[m.current] {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
