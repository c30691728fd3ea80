package patch

import "strings"

// Pointer is a JSON Pointer (RFC 6901) string: "/"-separated tokens, with
// "-" as the last token of an array path meaning "append". The empty
// string addresses the document root.
type Pointer string

// Tokens splits the pointer into its unescaped path segments. "" -> nil,
// "/foo/bar" -> ["foo", "bar"].
func (p Pointer) Tokens() []string {
	s := string(p)
	if s == "" {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(s, "/"), "/")
	out := make([]string, len(parts))
	for i, part := range parts {
		out[i] = unescapeToken(part)
	}
	return out
}

// Parent returns the pointer to the containing object/array and the final
// token (the key or index segment). Parent("") is ("", "", false).
func (p Pointer) Parent() (parent Pointer, key string, ok bool) {
	toks := p.Tokens()
	if len(toks) == 0 {
		return "", "", false
	}
	return FromTokens(toks[:len(toks)-1]), toks[len(toks)-1], true
}

// IsRoot reports whether p addresses the document root.
func (p Pointer) IsRoot() bool { return string(p) == "" }

// HasPrefix reports whether p is equal to prefix or addresses something
// nested under prefix.
func (p Pointer) HasPrefix(prefix Pointer) bool {
	if prefix.IsRoot() {
		return true
	}
	ps, pfx := string(p), string(prefix)
	return ps == pfx || strings.HasPrefix(ps, pfx+"/")
}

// FromTokens joins raw (unescaped) tokens into a Pointer, escaping as needed.
func FromTokens(toks []string) Pointer {
	if len(toks) == 0 {
		return ""
	}
	var b strings.Builder
	for _, t := range toks {
		b.WriteByte('/')
		b.WriteString(escapeToken(t))
	}
	return Pointer(b.String())
}

// Append returns a new pointer with token appended.
func (p Pointer) Append(token string) Pointer {
	return Pointer(string(p) + "/" + escapeToken(token))
}

func escapeToken(t string) string {
	t = strings.ReplaceAll(t, "~", "~0")
	t = strings.ReplaceAll(t, "/", "~1")
	return t
}

func unescapeToken(t string) string {
	t = strings.ReplaceAll(t, "~1", "/")
	t = strings.ReplaceAll(t, "~0", "~")
	return t
}

// arrayIndexPrefix reports whether p lies under container prefix with a
// numeric array index as the token right after container's tokens; it
// returns that index and the rest of p after it (p may address the element
// itself or something nested inside it). Used by the transform engine's
// index shifting rules (spec §4.2 "Array index adjustment").
func arrayIndexPrefix(p Pointer, container Pointer) (index int, rest Pointer, ok bool) {
	toks := p.Tokens()
	ctoks := container.Tokens()
	if len(toks) <= len(ctoks) {
		return 0, "", false
	}
	for i, t := range ctoks {
		if toks[i] != t {
			return 0, "", false
		}
	}
	idxTok := toks[len(ctoks)]
	n, ok := parseIndex(idxTok)
	if !ok {
		return 0, "", false
	}
	return n, FromTokens(toks[len(ctoks)+1:]), true
}

func parseIndex(tok string) (int, bool) {
	if tok == "" || tok == "-" {
		return 0, false
	}
	n := 0
	for _, c := range tok {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
