package belt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ullo-labs/bbelt/internal/device"
	"github.com/ullo-labs/bbelt/internal/groutine"
)

// NominalRate is the declared outlet sampling rate in Hz. The belt firmware
// pushes roughly this many payloads per second under normal breathing.
const NominalRate = 12.0

// RateInterval is the diagnostic window: every interval the session reports
// how many payloads were accepted and resets the counter. Kept independent
// of NominalRate; the two are unrelated constants.
const RateInterval = 5 * time.Second

// ErrConnectionLost is returned by Run when the peripheral drops the link
// while streaming.
var ErrConnectionLost = errors.New("connection lost")

// State tracks the session through its lifecycle.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateSubscribed
	StateStreaming
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	case StateTerminating:
		return "terminating"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// RateReporter receives the per-window acceptance count and the derived rate
// in Hz.
type RateReporter func(count int64, rate float64)

// StateListener observes lifecycle transitions.
type StateListener func(State)

// Config holds the session parameters.
type Config struct {
	// Address is the belt's MAC address.
	Address string
	// CharacteristicUUID selects the notification source on the belt.
	CharacteristicUUID string
	// ConnectTimeout bounds the dial. Zero blocks until the transport
	// itself gives up.
	ConnectTimeout time.Duration
}

// Session drives one acquisition: connect, subscribe, stream until canceled,
// tear down. Sessions are single-use; Run may be called once.
type Session struct {
	cfg        Config
	dev        device.Device
	decoder    *Decoder
	dispatcher *Dispatcher
	logger     *logrus.Logger

	launched   int32
	state      int32
	subscribed bool
	onRate     RateReporter
	onState    StateListener
	done       chan struct{}
	termOnce   sync.Once
}

// NewSession wires a session around dev. Decoded samples go through
// dispatcher; register a handler there before calling Run.
func NewSession(cfg Config, dev device.Device, dispatcher *Dispatcher, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher()
	}

	return &Session{
		cfg:        cfg,
		dev:        dev,
		decoder:    NewDecoder(),
		dispatcher: dispatcher,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Session) setState(st State) {
	old := State(atomic.SwapInt32(&s.state, int32(st)))
	if old != st {
		s.logger.WithFields(logrus.Fields{
			"from": old.String(),
			"to":   st.String(),
		}).Debug("Session state changed")
		if s.onState != nil {
			s.onState(st)
		}
	}
}

// SetRateReporter registers fn for the periodic rate report. Must be called
// before Run.
func (s *Session) SetRateReporter(fn RateReporter) {
	s.onRate = fn
}

// SetStateListener registers fn for lifecycle transitions. It is invoked
// synchronously from the session goroutine. Must be called before Run.
func (s *Session) SetStateListener(fn StateListener) {
	s.onState = fn
}

// Stats reports how many payloads the decoder accepted and dropped since the
// session was created.
func (s *Session) Stats() (accepted, dropped int64) {
	return s.decoder.Accepted(), s.decoder.Dropped()
}

// Run drives the session until ctx is canceled, the link drops, or setup
// fails. Teardown always runs before it returns, whatever the exit path.
// On cancellation the context's error is returned so callers can treat a
// clean interrupt as a non-error.
func (s *Session) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.launched, 0, 1) {
		return fmt.Errorf("session already launched")
	}
	s.setState(StateConnecting)

	s.logger.WithFields(logrus.Fields{
		"address":        s.cfg.Address,
		"characteristic": s.cfg.CharacteristicUUID,
	}).Info("Starting belt session")

	defer s.terminate()

	if err := s.dev.Connect(ctx, &device.ConnectOptions{ConnectTimeout: s.cfg.ConnectTimeout}); err != nil {
		return fmt.Errorf("failed to connect to belt: %w", err)
	}

	conn := s.dev.GetConnection()
	if conn == nil {
		return device.ErrNotInitialized
	}

	if err := conn.Subscribe(s.cfg.CharacteristicUUID, s.handleNotification); err != nil {
		return fmt.Errorf("failed to subscribe to characteristic %s: %w", s.cfg.CharacteristicUUID, err)
	}
	s.subscribed = true
	s.setState(StateSubscribed)

	groutine.Go(ctx, "belt-rate-ticker", s.rateLoop)

	s.setState(StateStreaming)
	s.logger.Info("Streaming belt samples")

	select {
	case <-ctx.Done():
		s.logger.Info("Session canceled, shutting down")
		return ctx.Err()
	case <-conn.Disconnected():
		return ErrConnectionLost
	}
}

// handleNotification runs on the transport's delivery goroutine, so decode
// and dispatch stay strictly ordered with no queue in between.
func (s *Session) handleNotification(charUUID string, data []byte) {
	sample, ok := s.decoder.Decode(data)
	if !ok {
		s.logger.WithFields(logrus.Fields{
			"charUUID": charUUID,
			"len":      len(data),
		}).Debug("Ignoring undersized payload")
		return
	}

	s.dispatcher.Dispatch(sample)
}

func (s *Session) rateLoop(ctx context.Context) {
	ticker := time.NewTicker(RateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			count := s.decoder.TakeCount()
			rate := float64(count) / RateInterval.Seconds()
			s.logger.WithFields(logrus.Fields{
				"count": count,
				"rate":  rate,
			}).Debug("Observed sample rate")
			if s.onRate != nil {
				s.onRate(count, rate)
			}
		}
	}
}

// terminate is the single teardown path shared by every exit: unsubscribe,
// disconnect, report idle. Errors are logged and swallowed so shutdown
// always completes.
func (s *Session) terminate() {
	s.termOnce.Do(func() {
		s.setState(StateTerminating)
		close(s.done)

		if s.subscribed {
			if conn := s.dev.GetConnection(); conn != nil {
				if err := conn.Unsubscribe(s.cfg.CharacteristicUUID); err != nil {
					s.logger.WithField("error", err).Warn("Failed to unsubscribe during teardown")
				}
			}
		}

		if err := s.dev.Disconnect(); err != nil {
			s.logger.WithField("error", err).Warn("Failed to disconnect during teardown")
		}

		s.setState(StateIdle)
		s.logger.Info("Belt session terminated")
	})
}
