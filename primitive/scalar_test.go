package primitive

import (
	"errors"
	"testing"

	"docengine/operation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEnv is a minimal Env for exercising proxies in isolation: Push
// records the operation instead of routing it through a document.
type fakeEnv struct {
	states map[string]State
	pushed []operation.Operation
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{states: map[string]State{}}
}

func (e *fakeEnv) Push(op operation.Operation) error {
	e.pushed = append(e.pushed, op)
	return nil
}

func (e *fakeEnv) GetState(path operation.Path) State {
	return e.states[path.String()]
}

func TestStringPrimitiveApplyOperation(t *testing.T) {
	p := String().Refine(func(v string) error {
		if v == "" {
			return errors.New("must not be empty")
		}
		return nil
	})

	_, err := p.ApplyOperation(nil, operation.New(operation.KindStringSet, operation.NewPath(), ""))
	require.Error(t, err)

	state, err := p.ApplyOperation(nil, operation.New(operation.KindStringSet, operation.NewPath(), "hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", state)

	_, err = p.ApplyOperation(nil, operation.New(operation.KindNumberSet, operation.NewPath(), "hello"))
	assert.Error(t, err)
}

func TestStringProxy(t *testing.T) {
	env := newFakeEnv()
	path := operation.NewPath("title")
	proxy := String().CreateProxy(env, path).(StringProxy)

	assert.Equal(t, "", proxy.Get())
	require.NoError(t, proxy.Set("hi"))
	require.Len(t, env.pushed, 1)
	assert.Equal(t, operation.KindStringSet, env.pushed[0].Kind)
	assert.True(t, env.pushed[0].Deduplicable)
}

func TestNumberPrimitiveMinMax(t *testing.T) {
	p := Number().Min(0).Max(10)

	_, err := p.ApplyOperation(nil, operation.New(operation.KindNumberSet, operation.NewPath(), -1.0))
	assert.Error(t, err)

	_, err = p.ApplyOperation(nil, operation.New(operation.KindNumberSet, operation.NewPath(), 11.0))
	assert.Error(t, err)

	state, err := p.ApplyOperation(nil, operation.New(operation.KindNumberSet, operation.NewPath(), 5.0))
	require.NoError(t, err)
	assert.Equal(t, 5.0, state)
}

func TestNumberPrimitiveDefault(t *testing.T) {
	p := Number().Default(42)
	assert.Equal(t, 42.0, p.InitialState())
	assert.False(t, p.IsRequired())

	required := Number().Required()
	assert.True(t, required.IsRequired())
	assert.Nil(t, required.InitialState())
}

func TestBooleanPrimitive(t *testing.T) {
	p := Boolean().Default(true)
	assert.Equal(t, true, p.InitialState())

	state, err := p.ApplyOperation(nil, operation.New(operation.KindBooleanSet, operation.NewPath(), false))
	require.NoError(t, err)
	assert.Equal(t, false, state)

	_, err = p.ApplyOperation(nil, operation.New(operation.KindBooleanSet, operation.NewPath(), "nope"))
	assert.Error(t, err)
}

func TestLiteralPrimitive(t *testing.T) {
	p := Literal("draft")
	assert.Equal(t, "draft", p.InitialState())

	state, err := p.ApplyOperation(nil, operation.New(operation.KindLiteralSet, operation.NewPath(), "draft"))
	require.NoError(t, err)
	assert.Equal(t, "draft", state)

	_, err = p.ApplyOperation(nil, operation.New(operation.KindLiteralSet, operation.NewPath(), "published"))
	assert.Error(t, err)
}

func TestEitherConstructionRejectsCollisions(t *testing.T) {
	_, err := Either(Literal("a"), Literal("a"))
	assert.Error(t, err)

	_, err = Either(Number(), Number())
	assert.Error(t, err)

	_, err = Either(Number())
	assert.Error(t, err, "either needs at least two variants")
}

func TestEitherLiteralWinsOnCollision(t *testing.T) {
	p := MustEither(Literal(0.0), Number())

	state, err := p.ApplyOperation(nil, operation.New(operation.KindEitherSet, operation.NewPath(), 0.0))
	require.NoError(t, err)
	assert.Equal(t, 0.0, state)

	state, err = p.ApplyOperation(nil, operation.New(operation.KindEitherSet, operation.NewPath(), 3.0))
	require.NoError(t, err)
	assert.Equal(t, 3.0, state)
}

func TestEitherRejectsUnmatchedPayload(t *testing.T) {
	p := MustEither(String(), Boolean())

	_, err := p.ApplyOperation(nil, operation.New(operation.KindEitherSet, operation.NewPath(), 1.0))
	assert.Error(t, err)
}

func TestEitherRunsVariantRefinements(t *testing.T) {
	p := MustEither(String().Refine(func(v string) error {
		if len(v) == 0 {
			return errors.New("empty")
		}
		return nil
	}), Boolean())

	_, err := p.ApplyOperation(nil, operation.New(operation.KindEitherSet, operation.NewPath(), ""))
	assert.Error(t, err)

	state, err := p.ApplyOperation(nil, operation.New(operation.KindEitherSet, operation.NewPath(), "ok"))
	require.NoError(t, err)
	assert.Equal(t, "ok", state)
}
