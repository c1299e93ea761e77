// Package operation defines the path-addressed, typed mutation model that
// every primitive and transaction is built on: OperationPath locates a
// value inside the document tree, Operation is a minimal mutation at a
// path, and Definition records whether an operation kind is deduplicable
// (payload shapes and apply functions live with the primitives).
package operation

import "strings"

// Path is an ordered sequence of non-empty string tokens identifying a
// location inside a document's state tree. Empty tokens are never
// produced by the constructors below and are ignored by every comparison.
type Path struct {
	tokens []string
}

// NewPath builds a Path from the given tokens, dropping any empty ones.
func NewPath(tokens ...string) Path {
	return Path{tokens: compact(tokens)}
}

func compact(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of tokens in the path.
func (p Path) Len() int { return len(p.tokens) }

// Empty reports whether the path has no tokens.
func (p Path) Empty() bool { return len(p.tokens) == 0 }

// Head returns the first token and true, or "" and false if the path is
// empty.
func (p Path) Head() (string, bool) {
	if len(p.tokens) == 0 {
		return "", false
	}
	return p.tokens[0], true
}

// Append returns a new Path with t appended. Empty tokens are ignored.
func (p Path) Append(t string) Path {
	if t == "" {
		return p
	}
	next := make([]string, len(p.tokens)+1)
	copy(next, p.tokens)
	next[len(p.tokens)] = t
	return Path{tokens: next}
}

// Pop returns a new Path with the last token removed. Popping an empty
// path returns an empty path.
func (p Path) Pop() Path {
	if len(p.tokens) == 0 {
		return p
	}
	return Path{tokens: append([]string(nil), p.tokens[:len(p.tokens)-1]...)}
}

// Shift returns the first token and a new Path with that token removed.
// Shifting an empty path returns ("", the empty path).
func (p Path) Shift() (string, Path) {
	if len(p.tokens) == 0 {
		return "", p
	}
	return p.tokens[0], Path{tokens: append([]string(nil), p.tokens[1:]...)}
}

// ToTokens returns the path's tokens as a new slice.
func (p Path) ToTokens() []string {
	return append([]string(nil), p.tokens...)
}

// FromTokens is the inverse of ToTokens.
func FromTokens(tokens []string) Path {
	return NewPath(tokens...)
}

// String renders the path using "/" as a separator, for logging.
func (p Path) String() string {
	if len(p.tokens) == 0 {
		return "/"
	}
	return "/" + strings.Join(p.tokens, "/")
}

// Equal reports whether two paths have identical token sequences.
func Equal(a, b Path) bool {
	if len(a.tokens) != len(b.tokens) {
		return false
	}
	for i := range a.tokens {
		if a.tokens[i] != b.tokens[i] {
			return false
		}
	}
	return true
}

// IsPrefix reports whether a is a prefix of b (a itself counts as a
// prefix of itself).
func IsPrefix(a, b Path) bool {
	if len(a.tokens) > len(b.tokens) {
		return false
	}
	for i := range a.tokens {
		if a.tokens[i] != b.tokens[i] {
			return false
		}
	}
	return true
}

// Overlap reports whether one of a, b is a prefix of the other (in either
// direction; equal paths overlap).
func Overlap(a, b Path) bool {
	return IsPrefix(a, b) || IsPrefix(b, a)
}
