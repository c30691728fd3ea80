package patch

// addHandler implements "add": create an object key or insert into an
// array (spec §3, §4.1).
type addHandler struct{}

func (addHandler) Like() Like { return LikeAdd }

func (addHandler) Apply(state interface{}, op Operation) (interface{}, error) {
	return SetAdd(state, op.Path, op.Value)
}

func (addHandler) Transform(state interface{}, against, op Operation) (*Operation, error) {
	return transformStructural(state, against, op)
}

func (addHandler) Compose(_ interface{}, _, b Operation) (*Operation, bool) {
	// Two adds on the same path compose to the later value, same as a
	// replace would — but composition is opt-in per kind and add/add
	// composition is not part of the spec's testable properties, so we
	// decline rather than guess at intent.
	return nil, false
}

// replaceHandler implements "replace": overwrite an existing key/index.
type replaceHandler struct{}

func (replaceHandler) Like() Like { return LikeReplace }

func (replaceHandler) Apply(state interface{}, op Operation) (interface{}, error) {
	return SetReplace(state, op.Path, op.Value)
}

func (replaceHandler) Transform(state interface{}, against, op Operation) (*Operation, error) {
	return transformStructural(state, against, op)
}

func (replaceHandler) Compose(_ interface{}, a, b Operation) (*Operation, bool) {
	if a.Path != b.Path {
		return nil, false
	}
	composed := b
	return &composed, true
}

// removeHandler implements "remove".
type removeHandler struct{}

func (removeHandler) Like() Like { return LikeRemove }

func (removeHandler) Apply(state interface{}, op Operation) (interface{}, error) {
	newState, _, err := Remove(state, op.Path)
	return newState, err
}

func (removeHandler) Transform(state interface{}, against, op Operation) (*Operation, error) {
	return transformStructural(state, against, op)
}

func (removeHandler) Compose(_ interface{}, _, _ Operation) (*Operation, bool) {
	return nil, false
}

// moveHandler implements "move": remove the value at From and add it at
// Path (JSON Patch semantics — removal happens first, so Path is resolved
// against the post-removal array indices).
type moveHandler struct{}

func (moveHandler) Like() Like { return LikeMove }

func (moveHandler) Apply(state interface{}, op Operation) (interface{}, error) {
	if op.From == "" {
		return nil, ErrInvalidOperation{Message: "move requires From"}
	}
	if op.From == op.Path {
		return state, nil
	}
	removed, value, err := Remove(state, op.From)
	if err != nil {
		return nil, err
	}
	return SetAdd(removed, op.Path, value)
}

func (moveHandler) Transform(state interface{}, against, op Operation) (*Operation, error) {
	return transformMove(state, against, op)
}

func (moveHandler) Compose(_ interface{}, _, _ Operation) (*Operation, bool) {
	return nil, false
}

// copyHandler implements "copy": read the value at From and add it at Path,
// leaving From untouched.
type copyHandler struct{}

func (copyHandler) Like() Like { return LikeCopy }

func (copyHandler) Apply(state interface{}, op Operation) (interface{}, error) {
	if op.From == "" {
		return nil, ErrInvalidOperation{Message: "copy requires From"}
	}
	value, ok := Get(state, op.From)
	if !ok {
		return nil, ErrBadPath{Path: string(op.From), Message: "copy source does not exist"}
	}
	return SetAdd(state, op.Path, value)
}

func (copyHandler) Transform(state interface{}, against, op Operation) (*Operation, error) {
	return transformStructural(state, against, op)
}

func (copyHandler) Compose(_ interface{}, _, _ Operation) (*Operation, bool) {
	return nil, false
}
