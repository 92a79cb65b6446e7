package workflow

// Transition is one edge set of a lifecycle: Action moves a resource from
// any of From to To.
type Transition[S ~string] struct {
	Action string
	From   []S
	To     S
}

// Machine is an immutable transition table keyed by action.
type Machine[S ~string] struct {
	edges map[string]edge[S]
}

type edge[S ~string] struct {
	from map[S]struct{}
	to   S
}

// NewMachine builds a table from transitions. Repeating an action merges its
// source states; the last target wins.
func NewMachine[S ~string](transitions ...Transition[S]) *Machine[S] {
	m := &Machine[S]{edges: make(map[string]edge[S], len(transitions))}
	for _, t := range transitions {
		e, ok := m.edges[t.Action]
		if !ok {
			e = edge[S]{from: make(map[S]struct{}, len(t.From))}
		}
		for _, s := range t.From {
			e.from[s] = struct{}{}
		}
		e.to = t.To
		m.edges[t.Action] = e
	}
	return m
}

// Can reports whether action is legal from current.
func (m *Machine[S]) Can(action string, current S) bool {
	e, ok := m.edges[action]
	if !ok {
		return false
	}
	_, ok = e.from[current]
	return ok
}

// Next returns the state action leads to from current, or an invalid-state
// conflict.
func (m *Machine[S]) Next(action string, current S) (S, error) {
	if !m.Can(action, current) {
		var zero S
		return zero, InvalidState(action, string(current))
	}
	return m.edges[action].to, nil
}

// Target returns the state action leads to, regardless of the source.
func (m *Machine[S]) Target(action string) (S, bool) {
	e, ok := m.edges[action]
	return e.to, ok
}
