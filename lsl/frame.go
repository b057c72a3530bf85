package lsl

import (
	"encoding/binary"
	"math"
)

// One frame per sample: a tag byte announcing a transmitted timestamp, the
// float64 stream-clock timestamp, then one float32 per channel. All
// multi-byte values little-endian, matching liblsl's on-wire order.
const (
	sampleTag     = 2 // sample with explicit timestamp
	timestampSize = 8
	valueSize     = 4
)

// frameSize returns the encoded size of one sample frame.
func frameSize(channelCount int) int {
	return 1 + timestampSize + channelCount*valueSize
}

// encodeFrame appends one sample frame to dst and returns the result.
func encodeFrame(dst []byte, timestamp float64, values []float32) []byte {
	var scratch [timestampSize]byte

	dst = append(dst, sampleTag)
	binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(timestamp))
	dst = append(dst, scratch[:]...)
	for _, v := range values {
		binary.LittleEndian.PutUint32(scratch[:valueSize], math.Float32bits(v))
		dst = append(dst, scratch[:valueSize]...)
	}
	return dst
}
