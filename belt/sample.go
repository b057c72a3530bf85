package belt

// Sample is one decoded belt measurement.
type Sample struct {
	Primary   uint32 // breathing amplitude
	Secondary uint32 // auxiliary channel, repeated from the last full payload
}

// Channels returns the sample as float32 values in outlet channel order.
func (s Sample) Channels() [2]float32 {
	return [2]float32{float32(s.Primary), float32(s.Secondary)}
}
