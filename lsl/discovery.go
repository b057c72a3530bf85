package lsl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Standard LSL discovery endpoint.
const (
	DiscoveryMulticastGroup = "224.0.0.183"
	DiscoveryPort           = 16571
)

// discoveryResponder answers `LSL:shortinfo` queries with the stream's
// shortinfo XML so inlets can resolve the stream without configuration.
type discoveryResponder struct {
	pc     net.PacketConn
	info   *StreamInfo
	logger *logrus.Logger
}

// newDiscoveryResponder binds the discovery socket. With an empty addr it
// joins the LSL multicast group, falling back to a plain UDP socket when
// multicast is unavailable. A non-empty addr binds that address directly,
// which lets tests run against loopback.
func newDiscoveryResponder(info *StreamInfo, addr string, logger *logrus.Logger) (*discoveryResponder, error) {
	var pc net.PacketConn
	var err error

	if addr == "" {
		group := &net.UDPAddr{IP: net.ParseIP(DiscoveryMulticastGroup), Port: DiscoveryPort}
		pc, err = net.ListenMulticastUDP("udp4", nil, group)
		if err != nil {
			logger.WithField("error", err).Warn("Multicast discovery unavailable, falling back to unicast")
			pc, err = net.ListenPacket("udp4", fmt.Sprintf(":%d", DiscoveryPort))
		}
	} else {
		pc, err = net.ListenPacket("udp4", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to bind discovery socket: %w", err)
	}

	return &discoveryResponder{pc: pc, info: info, logger: logger}, nil
}

func (d *discoveryResponder) run(ctx context.Context) error {
	buf := make([]byte, 4096)
	for {
		n, from, err := d.pc.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("discovery read failed: %w", err)
		}
		d.handleQuery(string(buf[:n]), from)
	}
}

// handleQuery parses one shortinfo request. The datagram carries the
// method line, an XPath-style predicate, and optionally a return port
// and query id:
//
//	LSL:shortinfo
//	name='breath' and type='breathing_amp'
//	16575 A1B2C3
//
// Replies echo the query id followed by the shortinfo XML.
func (d *discoveryResponder) handleQuery(payload string, from net.Addr) {
	lines := strings.Split(strings.ReplaceAll(payload, "\r\n", "\n"), "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[0]) != "LSL:shortinfo" {
		return
	}

	query := strings.TrimSpace(lines[1])
	if !d.info.matches(query) {
		return
	}

	dest := from
	queryID := ""
	if len(lines) > 2 {
		fields := strings.Fields(lines[2])
		if len(fields) > 0 {
			if port, err := strconv.Atoi(fields[0]); err == nil && port > 0 {
				if udpFrom, ok := from.(*net.UDPAddr); ok {
					dest = &net.UDPAddr{IP: udpFrom.IP, Port: port, Zone: udpFrom.Zone}
				}
			}
		}
		if len(fields) > 1 {
			queryID = fields[1]
		}
	}

	doc, err := d.info.ShortInfoXML()
	if err != nil {
		d.logger.WithField("error", err).Error("Failed to render shortinfo reply")
		return
	}

	reply := append([]byte(queryID+"\r\n"), doc...)
	if _, err := d.pc.WriteTo(reply, dest); err != nil {
		d.logger.WithFields(logrus.Fields{
			"dest":  dest.String(),
			"error": err,
		}).Debug("Discovery reply failed")
		return
	}

	d.logger.WithFields(logrus.Fields{
		"query": query,
		"dest":  dest.String(),
	}).Debug("Answered discovery query")
}

func (d *discoveryResponder) close() {
	_ = d.pc.Close()
}

func (d *discoveryResponder) localAddr() net.Addr {
	return d.pc.LocalAddr()
}
