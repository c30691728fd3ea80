package patch

import "fmt"

// State is an arbitrary JSON value: map[string]interface{}, []interface{},
// or a JSON scalar (string, float64, bool, nil). Handlers read State but
// never mutate it in place (spec §9 "State mutation inside handlers") — every
// function in this file returns a new State built by cloning only the
// containers on the path being changed, leaving everything else shared.

// Get resolves ptr against state and reports whether it exists.
func Get(state interface{}, ptr Pointer) (interface{}, bool) {
	toks := ptr.Tokens()
	cur := state
	for _, tok := range toks {
		switch c := cur.(type) {
		case map[string]interface{}:
			v, ok := c[tok]
			if !ok {
				return nil, false
			}
			cur = v
		case []interface{}:
			idx, ok := parseIndex(tok)
			if !ok || idx < 0 || idx >= len(c) {
				return nil, false
			}
			cur = c[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Exists reports whether ptr resolves against state.
func Exists(state interface{}, ptr Pointer) bool {
	if ptr.IsRoot() {
		return state != nil
	}
	_, ok := Get(state, ptr)
	return ok
}

// cloneAlong walks state along toks, shallow-cloning each container it
// passes through, and invokes leaf(container, lastToken) once it reaches the
// parent of the final token. leaf returns the replacement for that
// container (the mutation) plus an arbitrary result value threaded back to
// the caller (e.g. the value that was removed).
func cloneAlong(state interface{}, toks []string, leaf func(container interface{}, token string) (interface{}, interface{}, error)) (interface{}, interface{}, error) {
	if len(toks) == 0 {
		return nil, nil, fmt.Errorf("patch: cloneAlong requires a non-root pointer")
	}
	return cloneAlongRec(state, toks, leaf)
}

func cloneAlongRec(cur interface{}, toks []string, leaf func(container interface{}, token string) (interface{}, interface{}, error)) (interface{}, interface{}, error) {
	tok := toks[0]
	if len(toks) == 1 {
		newContainer, result, err := leaf(cur, tok)
		return newContainer, result, err
	}

	switch c := cur.(type) {
	case map[string]interface{}:
		child, ok := c[tok]
		if !ok {
			return nil, nil, ErrBadPath{Path: tok, Message: "path does not exist"}
		}
		newChild, result, err := cloneAlongRec(child, toks[1:], leaf)
		if err != nil {
			return nil, nil, err
		}
		clone := cloneMap(c)
		clone[tok] = newChild
		return clone, result, nil
	case []interface{}:
		idx, ok := parseIndex(tok)
		if !ok || idx < 0 || idx >= len(c) {
			return nil, nil, ErrBadPath{Path: tok, Message: "array index out of range"}
		}
		newChild, result, err := cloneAlongRec(c[idx], toks[1:], leaf)
		if err != nil {
			return nil, nil, err
		}
		clone := cloneSlice(c)
		clone[idx] = newChild
		return clone, result, nil
	default:
		return nil, nil, ErrBadPath{Path: tok, Message: "cannot descend into scalar"}
	}
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSlice(s []interface{}) []interface{} {
	out := make([]interface{}, len(s))
	copy(out, s)
	return out
}

// SetAdd implements "add" semantics at ptr: creates or overwrites an object
// key, or inserts into an array (appending on "-"), shifting later elements.
func SetAdd(state interface{}, ptr Pointer, value interface{}) (interface{}, error) {
	if ptr.IsRoot() {
		return value, nil
	}
	toks := ptr.Tokens()
	newState, _, err := cloneAlong(state, toks, func(container interface{}, token string) (interface{}, interface{}, error) {
		switch c := container.(type) {
		case map[string]interface{}:
			clone := cloneMap(c)
			clone[token] = value
			return clone, nil, nil
		case []interface{}:
			if token == "-" {
				out := make([]interface{}, len(c)+1)
				copy(out, c)
				out[len(c)] = value
				return out, nil, nil
			}
			idx, ok := parseIndex(token)
			if !ok || idx < 0 || idx > len(c) {
				return nil, nil, ErrBadPath{Path: token, Message: "array index out of range for add"}
			}
			out := make([]interface{}, len(c)+1)
			copy(out, c[:idx])
			out[idx] = value
			copy(out[idx+1:], c[idx:])
			return out, nil, nil
		default:
			return nil, nil, ErrBadPath{Path: token, Message: "parent is not a container"}
		}
	})
	return newState, err
}

// SetReplace implements "replace" semantics: the target must already exist.
func SetReplace(state interface{}, ptr Pointer, value interface{}) (interface{}, error) {
	if ptr.IsRoot() {
		return value, nil
	}
	toks := ptr.Tokens()
	newState, _, err := cloneAlong(state, toks, func(container interface{}, token string) (interface{}, interface{}, error) {
		switch c := container.(type) {
		case map[string]interface{}:
			if _, ok := c[token]; !ok {
				return nil, nil, ErrBadPath{Path: token, Message: "replace target does not exist"}
			}
			clone := cloneMap(c)
			clone[token] = value
			return clone, nil, nil
		case []interface{}:
			idx, ok := parseIndex(token)
			if !ok || idx < 0 || idx >= len(c) {
				return nil, nil, ErrBadPath{Path: token, Message: "array index out of range for replace"}
			}
			clone := cloneSlice(c)
			clone[idx] = value
			return clone, nil, nil
		default:
			return nil, nil, ErrBadPath{Path: token, Message: "parent is not a container"}
		}
	})
	return newState, err
}

// Remove implements "remove" semantics, returning the new state and the
// value that was removed.
func Remove(state interface{}, ptr Pointer) (interface{}, interface{}, error) {
	if ptr.IsRoot() {
		return nil, state, nil
	}
	toks := ptr.Tokens()
	newState, removed, err := cloneAlong(state, toks, func(container interface{}, token string) (interface{}, interface{}, error) {
		switch c := container.(type) {
		case map[string]interface{}:
			v, ok := c[token]
			if !ok {
				return nil, nil, ErrBadPath{Path: token, Message: "remove target does not exist"}
			}
			clone := cloneMap(c)
			delete(clone, token)
			return clone, v, nil
		case []interface{}:
			idx, ok := parseIndex(token)
			if !ok || idx < 0 || idx >= len(c) {
				return nil, nil, ErrBadPath{Path: token, Message: "array index out of range for remove"}
			}
			out := make([]interface{}, len(c)-1)
			copy(out, c[:idx])
			copy(out[idx:], c[idx+1:])
			return out, c[idx], nil
		default:
			return nil, nil, ErrBadPath{Path: token, Message: "parent is not a container"}
		}
	})
	return newState, removed, err
}
