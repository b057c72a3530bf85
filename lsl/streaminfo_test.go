package lsl

import (
	"encoding/xml"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStreamInfo(t *testing.T) {
	info := NewStreamInfo("breath", "breathing_amp", 2, 12.0, "breath_breathing_amp_FB:88:11:1E:90:F3")

	assert.Equal(t, "breath", info.Name)
	assert.Equal(t, "breathing_amp", info.Type)
	assert.Equal(t, 2, info.ChannelCount)
	assert.Equal(t, 12.0, info.NominalSRate)
	assert.Equal(t, "float32", info.ChannelFormat)
	assert.Equal(t, "breath_breathing_amp_FB:88:11:1E:90:F3", info.SourceID)
	assert.Equal(t, "default", info.SessionID)
	assert.NotEmpty(t, info.UID)
	assert.NotEmpty(t, info.Hostname)
	assert.GreaterOrEqual(t, info.CreatedAt, 0.0)
}

func TestSourceIDFor(t *testing.T) {
	got := SourceIDFor("breath", "breathing_amp", "FB:88:11:1E:90:F3")
	assert.Equal(t, "breath_breathing_amp_FB:88:11:1E:90:F3", got)
}

func TestNewUID(t *testing.T) {
	uuidPattern := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

	uid := newUID()
	assert.Regexp(t, uuidPattern, uid, "UID must be a version 4 UUID")

	// Two calls must never collide
	assert.NotEqual(t, uid, newUID())
}

func TestShortInfoXML(t *testing.T) {
	info := NewStreamInfo("breath", "breathing_amp", 2, 12.0, "src-1")
	info.Port = 16572

	raw, err := info.ShortInfoXML()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "<?xml", "document must carry an XML header")

	var parsed shortInfoXML
	require.NoError(t, xml.Unmarshal(raw, &parsed))

	assert.Equal(t, "breath", parsed.Name)
	assert.Equal(t, "breathing_amp", parsed.Type)
	assert.Equal(t, 2, parsed.ChannelCount)
	assert.Equal(t, 12.0, parsed.NominalSRate)
	assert.Equal(t, "float32", parsed.ChannelFormat)
	assert.Equal(t, "src-1", parsed.SourceID)
	assert.Equal(t, protocolVersion, parsed.Version)
	assert.Equal(t, info.UID, parsed.UID)
	assert.Equal(t, "default", parsed.SessionID)
	assert.Equal(t, info.Hostname, parsed.Hostname)
	assert.Equal(t, 16572, parsed.V4DataPort)
	assert.Equal(t, 16572, parsed.V4ServicePort)
}

func TestStreamInfoMatches(t *testing.T) {
	info := NewStreamInfo("breath", "breathing_amp", 2, 12.0, "breath_breathing_amp_FB:88:11:1E:90:F3")

	tests := []struct {
		name    string
		query   string
		matches bool
	}{
		{
			name:    "empty query matches everything",
			query:   "",
			matches: true,
		},
		{
			name:    "query without literals matches everything",
			query:   "session_id",
			matches: true,
		},
		{
			name:    "name literal",
			query:   "name='breath'",
			matches: true,
		},
		{
			name:    "type literal",
			query:   "type='breathing_amp'",
			matches: true,
		},
		{
			name:    "source id literal",
			query:   "source_id='breath_breathing_amp_FB:88:11:1E:90:F3'",
			matches: true,
		},
		{
			name:    "uid literal",
			query:   "uid='" + info.UID + "'",
			matches: true,
		},
		{
			name:    "name and type conjunction",
			query:   "name='breath' and type='breathing_amp'",
			matches: true,
		},
		{
			name:    "double quoted literal",
			query:   `name="breath"`,
			matches: true,
		},
		{
			name:    "wrong name",
			query:   "name='pulse'",
			matches: false,
		},
		{
			name:    "one matching and one foreign literal",
			query:   "name='breath' and type='ecg'",
			matches: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.matches, info.matches(tt.query))
		})
	}
}

func TestQuotedLiterals(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "single quotes",
			input:    "name='breath'",
			expected: []string{"breath"},
		},
		{
			name:     "double quotes",
			input:    `type="breathing_amp"`,
			expected: []string{"breathing_amp"},
		},
		{
			name:     "multiple literals",
			input:    "name='a' and type='b'",
			expected: []string{"a", "b"},
		},
		{
			name:     "mixed quote styles",
			input:    `name='a' and type="b"`,
			expected: []string{"a", "b"},
		},
		{
			name:     "no literals",
			input:    "name and type",
			expected: nil,
		},
		{
			name:     "unterminated quote is ignored",
			input:    "name='a' and type='b",
			expected: []string{"a"},
		},
		{
			name:     "empty literal",
			input:    "name=''",
			expected: []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, quotedLiterals(tt.input))
		})
	}
}

func TestFrameSize(t *testing.T) {
	assert.Equal(t, 17, frameSize(2), "tag + float64 timestamp + 2 float32 values")
	assert.Equal(t, 9, frameSize(0))
}
