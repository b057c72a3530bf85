// Package belt turns raw notification payloads from an Ullo breathing belt
// into two-channel samples and drives the acquisition session around them.
//
// The payload layout is two big-endian uint32 values: breathing amplitude
// first, an optional secondary channel second. Firmware revisions that send
// only the amplitude omit the second value, in which case the decoder repeats
// the last secondary value it has seen.
package belt
