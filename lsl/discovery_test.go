package lsl

import (
	"context"
	"encoding/xml"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResponder(t *testing.T, info *StreamInfo) *discoveryResponder {
	t.Helper()

	d, err := newDiscoveryResponder(info, "127.0.0.1:0", newTestLogger())
	require.NoError(t, err)
	t.Cleanup(d.close)

	go func() { _ = d.run(context.Background()) }()
	return d
}

func newDiscoveryClient(t *testing.T) net.PacketConn {
	t.Helper()

	client, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func readReply(t *testing.T, client net.PacketConn) string {
	t.Helper()

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 65536)
	n, _, err := client.ReadFrom(buf)
	require.NoError(t, err, "expected a discovery reply")
	return string(buf[:n])
}

func expectNoReply(t *testing.T, client net.PacketConn) {
	t.Helper()

	require.NoError(t, client.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := client.ReadFrom(make([]byte, 65536))
	require.Error(t, err, "no reply expected")
	var nerr net.Error
	require.ErrorAs(t, err, &nerr)
	assert.True(t, nerr.Timeout(), "read MUST time out rather than fail")
}

func TestDiscovery_AnswersMatchingQuery(t *testing.T) {
	info := NewStreamInfo("breath", "breathing_amp", 2, 12.0, "src-42")
	info.Port = 17577
	d := newTestResponder(t, info)

	client := newDiscoveryClient(t)
	clientPort := client.LocalAddr().(*net.UDPAddr).Port

	// Return port and query id on the third line, liblsl style
	req := fmt.Sprintf("LSL:shortinfo\r\nname='breath'\r\n%d 4D2\r\n", clientPort)
	_, err := client.WriteTo([]byte(req), d.localAddr())
	require.NoError(t, err)

	reply := readReply(t, client)
	idx := strings.Index(reply, "\r\n")
	require.Greater(t, idx, 0, "reply MUST start with the query id")
	assert.Equal(t, "4D2", reply[:idx])

	var parsed shortInfoXML
	require.NoError(t, xml.Unmarshal([]byte(reply[idx+2:]), &parsed))
	assert.Equal(t, "breath", parsed.Name)
	assert.Equal(t, "breathing_amp", parsed.Type)
	assert.Equal(t, "src-42", parsed.SourceID)
	assert.Equal(t, info.UID, parsed.UID)
	assert.Equal(t, 17577, parsed.V4DataPort)
}

func TestDiscovery_RepliesToSenderWithoutReturnPort(t *testing.T) {
	info := NewStreamInfo("breath", "breathing_amp", 2, 12.0, "src")
	d := newTestResponder(t, info)

	client := newDiscoveryClient(t)

	_, err := client.WriteTo([]byte("LSL:shortinfo\r\nname='breath'\r\n"), d.localAddr())
	require.NoError(t, err)

	reply := readReply(t, client)
	assert.True(t, strings.HasPrefix(reply, "\r\n<?xml"),
		"reply without a query id MUST still carry the XML document")
}

func TestDiscovery_IgnoresNonMatchingQueries(t *testing.T) {
	info := NewStreamInfo("breath", "breathing_amp", 2, 12.0, "src")
	d := newTestResponder(t, info)

	client := newDiscoveryClient(t)

	tests := []struct {
		name    string
		payload string
	}{
		{
			name:    "foreign stream name",
			payload: "LSL:shortinfo\r\nname='pulse'\r\n",
		},
		{
			name:    "unknown method",
			payload: "LSL:fullinfo\r\nname='breath'\r\n",
		},
		{
			name:    "missing predicate line",
			payload: "LSL:shortinfo",
		},
		{
			name:    "not a discovery datagram",
			payload: "hello",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.WriteTo([]byte(tt.payload), d.localAddr())
			require.NoError(t, err)
			expectNoReply(t, client)
		})
	}
}
