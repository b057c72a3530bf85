package lsl

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
)

const (
	// consumerBufferSize bounds the per-consumer backlog; at the belt's
	// frame size and nominal rate this is well over a hundred seconds.
	consumerBufferSize = 8 * 1024

	writeTimeout = 5 * time.Second
)

// consumer is one connected streamfeed client. Frames are staged in a ring
// buffer and flushed by a dedicated writer goroutine; a consumer that cannot
// keep up loses whole frames, never fragments, and never blocks the
// producer.
type consumer struct {
	conn      net.Conn
	ring      *ringbuffer.RingBuffer
	logger    *logrus.Entry
	notify    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	dropped   int64
	onClose   func(*consumer)
}

func newConsumer(conn net.Conn, logger *logrus.Entry, onClose func(*consumer)) *consumer {
	return &consumer{
		conn:    conn,
		ring:    ringbuffer.New(consumerBufferSize),
		logger:  logger,
		notify:  make(chan struct{}, 1),
		closed:  make(chan struct{}),
		onClose: onClose,
	}
}

// enqueue stages one frame without blocking.
func (c *consumer) enqueue(frame []byte) {
	if c.ring.Free() < len(frame) {
		if atomic.AddInt64(&c.dropped, 1) == 1 {
			c.logger.Warn("Consumer is falling behind, dropping frames")
		}
		return
	}
	if _, err := c.ring.Write(frame); err != nil {
		atomic.AddInt64(&c.dropped, 1)
		return
	}

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// dropCount returns how many frames were discarded for this consumer.
func (c *consumer) dropCount() int64 {
	return atomic.LoadInt64(&c.dropped)
}

// writeLoop drains the ring into the connection until the consumer
// disconnects or the outlet shuts down.
func (c *consumer) writeLoop(ctx context.Context) {
	defer c.close()

	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-c.notify:
		}

		for {
			n, err := c.ring.Read(buf)
			if n > 0 {
				if derr := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); derr != nil {
					return
				}
				if _, werr := c.conn.Write(buf[:n]); werr != nil {
					c.logger.WithField("error", werr).Debug("Consumer write failed, dropping connection")
					return
				}
			}
			if err != nil {
				break // ring drained
			}
		}
	}
}

func (c *consumer) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}
