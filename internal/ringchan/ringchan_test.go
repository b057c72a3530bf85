package ringchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_OverwritesOldestWhenFull(t *testing.T) {
	rc := NewRingChannel[int](3)

	for i := 0; i < 10; i++ {
		rc.Send(i)
	}
	rc.Close()

	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}

	assert.Equal(t, []int{7, 8, 9}, got, "only the newest capacity-many values MUST survive")

	m := rc.GetMetrics()
	assert.Equal(t, int64(10), m.Written)
	assert.Equal(t, int64(7), m.Overwritten)
}

func TestTrySend_FailsWhenFull(t *testing.T) {
	rc := NewRingChannel[string](1)

	require.True(t, rc.TrySend("first"))
	assert.False(t, rc.TrySend("second"), "TrySend MUST fail on a full buffer")

	v, ok := rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "first", v)
}

func TestForceSend_ReportsDrop(t *testing.T) {
	rc := NewRingChannel[int](1)

	assert.False(t, rc.ForceSend(1), "no drop on an empty buffer")
	assert.True(t, rc.ForceSend(2), "drop MUST be reported when making room")

	v, ok := rc.Receive()
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestReceive_TracksProcessed(t *testing.T) {
	rc := NewRingChannel[int](4)
	rc.Send(10)
	rc.Send(20)

	v, ok := rc.Receive()
	require.True(t, ok)
	assert.Equal(t, 10, v)

	v, ok = rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 20, v)

	_, ok = rc.TryReceive()
	assert.False(t, ok, "TryReceive on an empty buffer MUST not block")

	m := rc.GetMetrics()
	assert.Equal(t, int64(2), m.Processed)
}

func TestReceive_ClosedChannel(t *testing.T) {
	rc := NewRingChannel[int](2)
	rc.Send(1)
	rc.Close()

	v, ok := rc.Receive()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = rc.Receive()
	assert.False(t, ok, "Receive MUST report closed after drain")
}

func TestNewRingChannel_PanicsOnInvalidCapacity(t *testing.T) {
	assert.Panics(t, func() { NewRingChannel[int](0) })
	assert.Panics(t, func() { NewRingChannel[int](-1) })
}
