package belt

import (
	"encoding/binary"
	"sync/atomic"
)

const (
	primarySize   = 4
	secondarySize = 4
)

// Decoder parses notification payloads into samples.
//
// It is stateful: the secondary channel value survives across payloads, so a
// short payload reuses the value from the last payload that carried one.
// Decode must be called from a single goroutine (the transport's delivery
// goroutine); the counters may be read concurrently.
type Decoder struct {
	lastSecondary uint32
	window        int64 // accepted since the last TakeCount
	accepted      int64 // accepted since creation
	dropped       int64 // undersized since creation
}

// NewDecoder creates a decoder with a zero secondary channel.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode parses one payload. ok is false when the payload is too short to
// carry a primary value, in which case the payload is counted as dropped and
// the decoder state is untouched.
func (d *Decoder) Decode(data []byte) (Sample, bool) {
	if len(data) < primarySize {
		atomic.AddInt64(&d.dropped, 1)
		return Sample{}, false
	}

	s := Sample{Primary: binary.BigEndian.Uint32(data[0:primarySize])}

	if len(data) >= primarySize+secondarySize {
		d.lastSecondary = binary.BigEndian.Uint32(data[primarySize : primarySize+secondarySize])
	}
	s.Secondary = d.lastSecondary

	atomic.AddInt64(&d.window, 1)
	atomic.AddInt64(&d.accepted, 1)
	return s, true
}

// TakeCount returns the number of payloads accepted since the previous call
// and resets that window. Safe to call concurrently with Decode.
func (d *Decoder) TakeCount() int64 {
	return atomic.SwapInt64(&d.window, 0)
}

// Accepted returns the total number of payloads decoded since creation.
func (d *Decoder) Accepted() int64 {
	return atomic.LoadInt64(&d.accepted)
}

// Dropped returns the total number of undersized payloads since creation.
func (d *Decoder) Dropped() int64 {
	return atomic.LoadInt64(&d.dropped)
}
