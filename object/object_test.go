package object_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/dusk/object"
)

func TestNewTableBuiltinBases(t *testing.T) {
	tbl := object.NewTable()

	intType := tbl.TypeOf(tbl.New(object.TagInt, int64(1), false))
	assert.Equal(t, "int", tbl.TypeName(intType))

	objType := tbl.TypeOf(tbl.New(object.TagObject, nil, true))
	assert.Same(t, objType, tbl.Base(intType))
	assert.Nil(t, tbl.Base(objType))
}

func TestGetAttrWalksTypeChainAndBinds(t *testing.T) {
	tbl := object.NewTable()
	module := tbl.New(object.TagModule, nil, true)

	base, err := tbl.NewType(module, "Animal", nil)
	require.NoError(t, err)
	speak := tbl.New(object.TagFunction, "speak-code", true)
	require.NoError(t, tbl.SetAttr(base, "speak", speak))

	child, err := tbl.NewType(module, "Dog", base)
	require.NoError(t, err)

	inst := tbl.New(object.Tag(child.Payload.(int)), nil, true)

	bound, err := tbl.GetAttr(inst, "speak", true)
	require.NoError(t, err)
	require.True(t, bound.IsType(object.TagBoundMethod))
	bm := bound.Payload.(object.BoundMethod)
	assert.Same(t, inst, bm.Receiver)
	assert.Same(t, speak, bm.Func)
}

func TestGetAttrMissingRaisesWhenRequested(t *testing.T) {
	tbl := object.NewTable()
	inst := tbl.New(object.TagObject, nil, true)
	_, err := tbl.GetAttr(inst, "nope", true)
	require.Error(t, err)

	val, err := tbl.GetAttr(inst, "nope", false)
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestSetAttrRejectsImmutablePayload(t *testing.T) {
	tbl := object.NewTable()
	i := tbl.New(object.TagInt, int64(1), false)
	err := tbl.SetAttr(i, "x", tbl.None)
	require.Error(t, err)
	assert.IsType(t, &object.TypeError{}, err)
}

func TestSuperDelegatesLookupAboveRootType(t *testing.T) {
	tbl := object.NewTable()
	module := tbl.New(object.TagModule, nil, true)

	grand, err := tbl.NewType(module, "Grand", nil)
	require.NoError(t, err)
	require.NoError(t, tbl.SetAttr(grand, "greet", tbl.New(object.TagFunction, "grand-greet", true)))

	parent, err := tbl.NewType(module, "Parent", grand)
	require.NoError(t, err)
	require.NoError(t, tbl.SetAttr(parent, "greet", tbl.New(object.TagFunction, "parent-greet", true)))

	child, err := tbl.NewType(module, "Child", parent)
	require.NoError(t, err)

	inst := tbl.New(object.Tag(child.Payload.(int)), nil, true)
	sup := tbl.New(object.TagSuper, object.Super{Root: inst, Depth: 1}, false)

	found, err := tbl.GetAttr(sup, "greet", true)
	require.NoError(t, err)
	bm := found.Payload.(object.BoundMethod)
	fn, ok := bm.Func.Payload.(string)
	require.True(t, ok)
	assert.Equal(t, "parent-greet", fn)
}

func TestHashMatchesForEqualHashableValues(t *testing.T) {
	tbl := object.NewTable()
	a := tbl.New(object.TagTuple, []*object.Handle{
		tbl.New(object.TagInt, int64(1), false),
		tbl.New(object.TagStr, "x", false),
	}, false)
	b := tbl.New(object.TagTuple, []*object.Handle{
		tbl.New(object.TagInt, int64(1), false),
		tbl.New(object.TagStr, "x", false),
	}, false)

	ha, err := tbl.Hash(a)
	require.NoError(t, err)
	hb, err := tbl.Hash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestHashRejectsUnhashableType(t *testing.T) {
	tbl := object.NewTable()
	list := tbl.New(object.TagList, []*object.Handle{}, true)
	_, err := tbl.Hash(list)
	require.Error(t, err)
}

func TestNumNegatedPreservesType(t *testing.T) {
	tbl := object.NewTable()
	i, err := tbl.NumNegated(tbl.New(object.TagInt, int64(5), false))
	require.NoError(t, err)
	assert.Equal(t, int64(-5), i.Payload.(int64))

	f, err := tbl.NumNegated(tbl.New(object.TagFloat, 2.5, false))
	require.NoError(t, err)
	assert.Equal(t, -2.5, f.Payload.(float64))

	_, err = tbl.NumNegated(tbl.New(object.TagStr, "x", false))
	require.Error(t, err)
}
