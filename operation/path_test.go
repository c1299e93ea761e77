package operation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathAppendPopShift(t *testing.T) {
	p := NewPath("a", "b", "c")
	assert.Equal(t, []string{"a", "b", "c"}, p.ToTokens())

	p2 := p.Append("d")
	assert.Equal(t, []string{"a", "b", "c", "d"}, p2.ToTokens())
	assert.Equal(t, []string{"a", "b", "c"}, p.ToTokens(), "original path must not mutate")

	p3 := p2.Pop()
	assert.Equal(t, []string{"a", "b", "c"}, p3.ToTokens())

	head, rest := p3.Shift()
	assert.Equal(t, "a", head)
	assert.Equal(t, []string{"b", "c"}, rest.ToTokens())
}

func TestPathIgnoresEmptyTokens(t *testing.T) {
	p := NewPath("a", "", "b")
	assert.Equal(t, []string{"a", "b"}, p.ToTokens())

	p2 := p.Append("")
	assert.Equal(t, []string{"a", "b"}, p2.ToTokens())
}

func TestFromTokensRoundTrip(t *testing.T) {
	p := NewPath("x", "y", "z")
	p2 := FromTokens(p.ToTokens())
	assert.True(t, Equal(p, p2))
}

func TestIsPrefixAndOverlap(t *testing.T) {
	root := NewPath("a")
	child := NewPath("a", "b")
	sibling := NewPath("c")

	assert.True(t, IsPrefix(root, child))
	assert.False(t, IsPrefix(child, root))
	assert.True(t, Overlap(root, child))
	assert.True(t, Overlap(child, root))
	assert.False(t, Overlap(root, sibling))

	assert.True(t, IsPrefix(root, root))
	assert.True(t, Overlap(root, root))
}

func TestPathEqual(t *testing.T) {
	assert.True(t, Equal(NewPath("a", "b"), NewPath("a", "b")))
	assert.False(t, Equal(NewPath("a", "b"), NewPath("a", "c")))
	assert.False(t, Equal(NewPath("a"), NewPath("a", "b")))
}

func TestPathString(t *testing.T) {
	assert.Equal(t, "/", NewPath().String())
	assert.Equal(t, "/a/b", NewPath("a", "b").String())
}
