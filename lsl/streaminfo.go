package lsl

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"os"
)

// protocolVersion is the LSL protocol version advertised in stream metadata
// and handshakes.
const protocolVersion = "1.100"

// StreamInfo describes one outlet: what it publishes and how to reach it.
type StreamInfo struct {
	Name          string
	Type          string
	ChannelCount  int
	NominalSRate  float64 // Hz; declared, not enforced
	ChannelFormat string
	SourceID      string
	UID           string
	SessionID     string
	Hostname      string
	CreatedAt     float64

	// Port is the bound streamfeed port, filled in by the outlet.
	Port int
}

// NewStreamInfo builds the metadata for a float32 stream. The UID is
// regenerated per process so restarted outlets are distinguishable even with
// an identical source id.
func NewStreamInfo(name, streamType string, channelCount int, nominalSRate float64, sourceID string) *StreamInfo {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	return &StreamInfo{
		Name:          name,
		Type:          streamType,
		ChannelCount:  channelCount,
		NominalSRate:  nominalSRate,
		ChannelFormat: "float32",
		SourceID:      sourceID,
		UID:           newUID(),
		SessionID:     "default",
		Hostname:      hostname,
		CreatedAt:     Now(),
	}
}

// SourceIDFor builds the canonical source id for a belt stream:
// <name>_<type>_<mac>.
func SourceIDFor(name, streamType, mac string) string {
	return fmt.Sprintf("%s_%s_%s", name, streamType, mac)
}

// newUID returns a random RFC 4122 style identifier.
func newUID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is unrecoverable for identity purposes
		panic(fmt.Sprintf("lsl: cannot generate uid: %v", err))
	}
	b[6] = (b[6] & 0x0f) | 0x40 // version 4
	b[8] = (b[8] & 0x3f) | 0x80 // variant 10

	dst := hex.EncodeToString(b[:])
	return fmt.Sprintf("%s-%s-%s-%s-%s", dst[0:8], dst[8:12], dst[12:16], dst[16:20], dst[20:32])
}

// shortInfoXML mirrors the element layout liblsl emits for shortinfo
// responses, so standard consumers can parse it.
type shortInfoXML struct {
	XMLName       xml.Name `xml:"info"`
	Name          string   `xml:"name"`
	Type          string   `xml:"type"`
	ChannelCount  int      `xml:"channel_count"`
	NominalSRate  float64  `xml:"nominal_srate"`
	ChannelFormat string   `xml:"channel_format"`
	SourceID      string   `xml:"source_id"`
	Version       string   `xml:"version"`
	CreatedAt     float64  `xml:"created_at"`
	UID           string   `xml:"uid"`
	SessionID     string   `xml:"session_id"`
	Hostname      string   `xml:"hostname"`
	V4Address     string   `xml:"v4address"`
	V4DataPort    int      `xml:"v4data_port"`
	V4ServicePort int      `xml:"v4service_port"`
	V6Address     string   `xml:"v6address"`
	V6DataPort    int      `xml:"v6data_port"`
	V6ServicePort int      `xml:"v6service_port"`
}

// ShortInfoXML renders the discovery document for this stream.
func (si *StreamInfo) ShortInfoXML() ([]byte, error) {
	doc := shortInfoXML{
		Name:          si.Name,
		Type:          si.Type,
		ChannelCount:  si.ChannelCount,
		NominalSRate:  si.NominalSRate,
		ChannelFormat: si.ChannelFormat,
		SourceID:      si.SourceID,
		Version:       protocolVersion,
		CreatedAt:     si.CreatedAt,
		UID:           si.UID,
		SessionID:     si.SessionID,
		Hostname:      si.Hostname,
		V4DataPort:    si.Port,
		V4ServicePort: si.Port,
	}

	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream info: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// matches reports whether a discovery query selects this stream. The query
// grammar is reduced to its common case: every quoted literal must equal one
// of the stream's identifying fields. An empty query matches everything.
func (si *StreamInfo) matches(query string) bool {
	literals := quotedLiterals(query)
	if len(literals) == 0 {
		return true
	}

	for _, lit := range literals {
		switch lit {
		case si.Name, si.Type, si.SourceID, si.UID:
		default:
			return false
		}
	}
	return true
}

// quotedLiterals extracts 'single' and "double" quoted substrings.
func quotedLiterals(s string) []string {
	var out []string
	for i := 0; i < len(s); i++ {
		q := s[i]
		if q != '\'' && q != '"' {
			continue
		}
		end := -1
		for j := i + 1; j < len(s); j++ {
			if s[j] == q {
				end = j
				break
			}
		}
		if end < 0 {
			break
		}
		out = append(out, s[i+1:end])
		i = end
	}
	return out
}
