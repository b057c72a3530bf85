package lsl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ullo-labs/bbelt/internal/groutine"
)

// Default streamfeed port window, matching liblsl's configuration.
const (
	DataPortStart = 16572
	DataPortEnd   = 16604
)

const handshakeTimeout = 5 * time.Second

// OutletOptions tune listener placement. The zero value selects the
// standard LSL ports on all interfaces.
type OutletOptions struct {
	PortStart        int    // first streamfeed port to try (default 16572)
	PortEnd          int    // last streamfeed port to try (default 16604)
	BindHost         string // listen host (default all interfaces)
	DiscoveryAddress string // discovery bind address (default: LSL multicast group)
}

// Outlet publishes one stream: it answers discovery queries and serves
// sample frames to every connected streamfeed consumer.
type Outlet struct {
	info   *StreamInfo
	logger *logrus.Logger

	listener net.Listener
	disc     *discoveryResponder

	mu           sync.Mutex
	consumers    map[*consumer]struct{}
	droppedTotal int64 // frames lost by consumers that already left
	isClosed     bool

	group     *errgroup.Group
	closed    chan struct{}
	closeOnce sync.Once
}

// NewOutlet binds the streamfeed listener on the first free port of the
// configured range and the discovery socket, filling info.Port in as a side
// effect. Call Start to begin serving.
func NewOutlet(info *StreamInfo, opts *OutletOptions, logger *logrus.Logger) (*Outlet, error) {
	if info == nil {
		return nil, fmt.Errorf("stream info is nil")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil {
		opts = &OutletOptions{}
	}

	portStart := opts.PortStart
	if portStart == 0 {
		portStart = DataPortStart
	}
	portEnd := opts.PortEnd
	if portEnd == 0 {
		portEnd = DataPortEnd
	}
	if portEnd < portStart {
		return nil, fmt.Errorf("invalid streamfeed port range %d-%d", portStart, portEnd)
	}

	var listener net.Listener
	var lastErr error
	for port := portStart; port <= portEnd; port++ {
		l, err := net.Listen("tcp", net.JoinHostPort(opts.BindHost, fmt.Sprintf("%d", port)))
		if err != nil {
			lastErr = err
			continue
		}
		listener = l
		info.Port = port
		break
	}
	if listener == nil {
		return nil, fmt.Errorf("no free streamfeed port in %d-%d: %w", portStart, portEnd, lastErr)
	}

	disc, err := newDiscoveryResponder(info, opts.DiscoveryAddress, logger)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	o := &Outlet{
		info:      info,
		logger:    logger,
		listener:  listener,
		disc:      disc,
		consumers: make(map[*consumer]struct{}),
		closed:    make(chan struct{}),
	}

	logger.WithFields(logrus.Fields{
		"source_id": info.SourceID,
		"uid":       info.UID,
		"port":      info.Port,
	}).Info("LSL outlet ready")

	return o, nil
}

// Start runs the accept and discovery loops until ctx is canceled or Close
// is called. Non-blocking.
func (o *Outlet) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	o.group = g

	g.Go(func() error { return o.acceptLoop(gctx) })
	g.Go(func() error { return o.disc.run(gctx) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-o.closed:
		}
		o.shutdown()
		return nil
	})
}

// Close tears the outlet down and waits for its loops to finish.
// Safe to call more than once.
func (o *Outlet) Close() error {
	o.closeOnce.Do(func() { close(o.closed) })

	if o.group != nil {
		return o.group.Wait()
	}

	// Start was never called; release the sockets directly
	o.shutdown()
	return nil
}

// shutdown closes the sockets and every consumer. New consumers arriving
// concurrently see isClosed and are rejected.
func (o *Outlet) shutdown() {
	o.mu.Lock()
	if o.isClosed {
		o.mu.Unlock()
		return
	}
	o.isClosed = true
	consumers := make([]*consumer, 0, len(o.consumers))
	for c := range o.consumers {
		consumers = append(consumers, c)
	}
	o.mu.Unlock()

	_ = o.listener.Close()
	o.disc.close()
	for _, c := range consumers {
		c.close()
	}

	o.logger.WithField("source_id", o.info.SourceID).Info("LSL outlet closed")
}

// PushSample broadcasts one sample to every connected consumer without
// blocking. The values length must match the stream's channel count;
// mismatched samples are dropped with a warning.
func (o *Outlet) PushSample(values []float32) {
	if len(values) != o.info.ChannelCount {
		o.logger.WithFields(logrus.Fields{
			"got":  len(values),
			"want": o.info.ChannelCount,
		}).Warn("Dropping sample with wrong channel count")
		return
	}

	frame := encodeFrame(make([]byte, 0, frameSize(len(values))), Now(), values)

	o.mu.Lock()
	for c := range o.consumers {
		c.enqueue(frame)
	}
	o.mu.Unlock()
}

// ConsumerCount returns how many streamfeed clients are connected.
func (o *Outlet) ConsumerCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.consumers)
}

// DroppedFrames returns how many frames slow consumers have lost since the
// outlet was created, including consumers that already disconnected.
func (o *Outlet) DroppedFrames() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	total := o.droppedTotal
	for c := range o.consumers {
		total += c.dropCount()
	}
	return total
}

// Port returns the bound streamfeed port.
func (o *Outlet) Port() int {
	return o.info.Port
}

// DiscoveryAddr returns the bound discovery socket address.
func (o *Outlet) DiscoveryAddr() net.Addr {
	return o.disc.localAddr()
}

func (o *Outlet) acceptLoop(ctx context.Context) error {
	for {
		conn, err := o.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		groutine.Go(ctx, "lsl-consumer", func(cctx context.Context) {
			o.handleConn(cctx, conn)
		})
	}
}

// handleConn performs the streamfeed handshake, registers the consumer and
// serves it frames until it disconnects or the outlet shuts down.
//
// The handshake is plain text: a request line `LSL:streamfeed/110 <query>`,
// advisory `Key: value` headers until a blank line, answered with a
// `200 OK` status block before the first frame.
func (o *Outlet) handleConn(ctx context.Context, conn net.Conn) {
	logger := o.logger.WithField("consumer", conn.RemoteAddr().String())

	if err := conn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		_ = conn.Close()
		return
	}

	reader := bufio.NewReader(conn)
	request, err := readCRLFLine(reader)
	if err != nil {
		logger.WithField("error", err).Debug("Handshake read failed")
		_ = conn.Close()
		return
	}
	if !strings.HasPrefix(request, "LSL:streamfeed") {
		logger.WithField("request", request).Warn("Rejecting non-streamfeed request")
		_ = conn.Close()
		return
	}

	for {
		line, err := readCRLFLine(reader)
		if err != nil {
			logger.WithField("error", err).Debug("Handshake header read failed")
			_ = conn.Close()
			return
		}
		if line == "" {
			break
		}
	}
	_ = conn.SetReadDeadline(time.Time{})

	reply := fmt.Sprintf(
		"LSL:streamfeed/110 200 OK\r\nUID: %s\r\nByte-Order: 1234\r\nData-Protocol-Version: 110\r\n\r\n",
		o.info.UID)
	_ = conn.SetWriteDeadline(time.Now().Add(handshakeTimeout))
	if _, err := conn.Write([]byte(reply)); err != nil {
		logger.WithField("error", err).Debug("Handshake reply failed")
		_ = conn.Close()
		return
	}
	_ = conn.SetWriteDeadline(time.Time{})

	o.mu.Lock()
	if o.isClosed {
		o.mu.Unlock()
		_ = conn.Close()
		return
	}
	c := newConsumer(conn, logger, o.removeConsumer)
	o.consumers[c] = struct{}{}
	count := len(o.consumers)
	o.mu.Unlock()

	logger.WithField("consumers", count).Info("LSL consumer connected")
	c.writeLoop(ctx)
}

func (o *Outlet) removeConsumer(c *consumer) {
	o.mu.Lock()
	delete(o.consumers, c)
	o.droppedTotal += c.dropCount()
	count := len(o.consumers)
	o.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"consumers":      count,
		"dropped_frames": c.dropCount(),
	}).Info("LSL consumer disconnected")
}

// readCRLFLine reads one line, tolerating bare-LF clients.
func readCRLFLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
