package patch

import "sync"

// Handler is the capability bundle a Kind registers (spec §4.1 and the
// "dynamic op registry" design note of spec §9). The teacher dispatches on
// a fixed switch in MakeOperation; this registry generalizes that switch
// into an extension point so a caller can add new Kinds without touching
// the transform engine.
type Handler interface {
	// Like classifies the kind's structural effect for the transform engine.
	Like() Like

	// Apply applies op to state, returning the new state.
	Apply(state interface{}, op Operation) (interface{}, error)

	// Transform rewrites op to run after against has already been applied
	// to state (the state as it was before against was applied). Returning
	// nil means op is fully subsumed and should be dropped.
	Transform(state interface{}, against, op Operation) (*Operation, error)

	// Compose merges two same-kind operations on the same path into one,
	// or reports ok=false if the kind declares no compose behaviour.
	Compose(state interface{}, a, b Operation) (merged *Operation, ok bool)
}

// Registry maps Kind to Handler. The zero value is empty; use
// DefaultRegistry for the built-in kinds.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Kind]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Kind]Handler)}
}

// Register adds or replaces the handler for kind.
func (r *Registry) Register(kind Kind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Lookup returns the handler registered for kind.
func (r *Registry) Lookup(kind Kind) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

var defaultRegistry = buildDefaultRegistry()

// DefaultRegistry returns the process-wide registry pre-populated with the
// built-in kinds (add, replace, remove, move, copy, @inc, @bit, @min, @max,
// @txt). Callers that need an isolated registry for a custom extension
// should build their own with NewRegistry and Register.
func DefaultRegistry() *Registry { return defaultRegistry }

func buildDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KindAdd, addHandler{})
	r.Register(KindReplace, replaceHandler{})
	r.Register(KindRemove, removeHandler{})
	r.Register(KindMove, moveHandler{})
	r.Register(KindCopy, copyHandler{})
	r.Register(KindInc, incHandler{})
	r.Register(KindBit, bitHandler{})
	r.Register(KindMin, minHandler{})
	r.Register(KindMax, maxHandler{})
	r.Register(KindTxt, txtHandler{})
	return r
}

// Apply applies every operation of p to state in order, using r to resolve
// each Kind's handler. Intermediate states are valid per spec §3.
func Apply(r *Registry, state interface{}, p Patch) (interface{}, error) {
	cur := state
	for _, op := range p {
		h, ok := r.Lookup(op.Op)
		if !ok {
			return nil, ErrUnknownKind{Kind: op.Op}
		}
		if op.Soft && Exists(cur, op.Path) {
			continue
		}
		next, err := h.Apply(cur, op)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}
