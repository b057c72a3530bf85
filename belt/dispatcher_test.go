package belt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ullo-labs/bbelt/belt"
)

func TestDispatch_NoHandlerIsNoOp(t *testing.T) {
	d := belt.NewDispatcher()

	assert.NotPanics(t, func() {
		d.Dispatch(belt.Sample{Primary: 1})
	})
}

func TestDispatch_InvokesHandlerSynchronously(t *testing.T) {
	d := belt.NewDispatcher()

	var got []belt.Sample
	d.Register(func(s belt.Sample) {
		got = append(got, s)
	})

	d.Dispatch(belt.Sample{Primary: 5, Secondary: 7})
	d.Dispatch(belt.Sample{Primary: 6, Secondary: 7})

	// The handler appends without synchronization: passing proves each
	// Dispatch completed the call before returning
	assert.Equal(t, []belt.Sample{
		{Primary: 5, Secondary: 7},
		{Primary: 6, Secondary: 7},
	}, got)
}

func TestRegister_ReplacesPreviousHandler(t *testing.T) {
	d := belt.NewDispatcher()

	var first, second int
	d.Register(func(belt.Sample) { first++ })
	d.Register(func(belt.Sample) { second++ })

	d.Dispatch(belt.Sample{})

	assert.Equal(t, 0, first, "replaced handler MUST NOT be invoked")
	assert.Equal(t, 1, second)
}

func TestRegister_NilClearsHandler(t *testing.T) {
	d := belt.NewDispatcher()

	var calls int
	d.Register(func(belt.Sample) { calls++ })
	d.Register(nil)

	d.Dispatch(belt.Sample{})

	assert.Equal(t, 0, calls)
}
