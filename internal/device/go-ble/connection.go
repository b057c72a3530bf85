package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/ullo-labs/bbelt/internal/bledb"
	"github.com/ullo-labs/bbelt/internal/device"
	"github.com/ullo-labs/bbelt/internal/groutine"
)

// GAP service and Device Name characteristic, read after connect to resolve
// the authoritative device name.
const (
	gapServiceUUID     = "1800"
	deviceNameCharUUID = "2a00"
)

// activeSubscription records a live notification subscription and the mode it
// was established with, so the matching unsubscribe uses the same mode.
type activeSubscription struct {
	char     *BLECharacteristic
	indicate bool
}

// ----------------------------
// BLE Connection
// ----------------------------

// BLEConnection represents a live BLE connection: the discovered profile plus
// active notification subscriptions.
type BLEConnection struct {
	client      ble.Client
	logger      *logrus.Logger
	connMutex   sync.RWMutex
	isConnected bool

	services      *orderedmap.OrderedMap[string, *BLEService]
	subscriptions map[string]*activeSubscription

	done      chan struct{}
	closeDone sync.Once
}

func NewBLEConnection(logger *logrus.Logger) *BLEConnection {
	return &BLEConnection{
		services:      orderedmap.New[string, *BLEService](),
		subscriptions: make(map[string]*activeSubscription),
		done:          make(chan struct{}),
		logger:        logger,
	}
}

// Connect establishes a BLE connection and populates live characteristics
func (c *BLEConnection) Connect(ctx context.Context, address string, opts *device.ConnectOptions) error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if strings.TrimSpace(address) == "" {
		c.logger.Error("Connection attempt with empty address")
		return fmt.Errorf("device address is empty")
	}

	if c.isConnectedInternal() {
		c.logger.WithField("address", address).Warn("Connection attempt while already connected")
		return device.ErrAlreadyConnected
	}

	c.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": opts.ConnectTimeout,
	}).Info("Connecting to BLE device...")

	// Create a BLE device using the factory (allows for mocking in tests)
	dev, err := DeviceFactory()
	if err != nil {
		c.logger.WithField("error", err).Error("Failed to create BLE device")
		return fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	ble.SetDefaultDevice(dev)

	// A zero timeout blocks until the transport itself gives up
	connCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	c.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := ble.Dial(connCtx, ble.NewAddr(address))
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}

	// Discover services and characteristics
	c.logger.WithField("address", address).Debug("Discovering services and characteristics...")
	bleProfile, err := client.DiscoverProfile(true)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to discover profile")
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			c.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection after discovery failure")
		}
		return fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	c.logger.WithFields(logrus.Fields{
		"address":  address,
		"services": len(bleProfile.Services),
	}).Debug("Profile discovered successfully")

	// Populate services and characteristics in discovery order
	totalChars := 0
	for _, bleSvc := range bleProfile.Services {
		svcRawUUID := bleSvc.UUID.String()
		svcUUID := device.NormalizeUUID(svcRawUUID)
		c.logger.WithField("service_uuid", svcRawUUID).Debug("Found service UUID")

		svc, ok := c.services.Get(svcUUID)
		if !ok {
			svc = newBLEService(svcUUID, bledb.LookupService(svcRawUUID))
			c.services.Set(svcUUID, svc)
		}

		for _, bleChar := range bleSvc.Characteristics {
			c.logger.WithFields(logrus.Fields{
				"service_uuid": svcUUID,
				"char_uuid":    bleChar.UUID.String(),
			}).Debug("Found characteristic UUID")
			svc.addCharacteristic(NewCharacteristic(bleChar))
			totalChars++
		}
	}

	c.client = client
	c.isConnected = true

	// Monitor the client's Disconnected channel so consumers learn about
	// peripheral-side drops. Not every client implementation exposes it.
	if monitored, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(context.Background(), "ble-connection-monitor", func(context.Context) {
			select {
			case <-monitored.Disconnected():
				if c.logger != nil {
					c.logger.Warn("Transport reported disconnection")
				}
				c.markDisconnected()
			case <-c.done:
			}
		})
	} else if c.logger != nil {
		c.logger.Debug("Client does not expose a Disconnected() channel")
	}

	c.logger.WithFields(logrus.Fields{
		"address":         address,
		"services":        c.services.Len(),
		"characteristics": totalChars,
	}).Info("BLE device connected successfully")
	return nil
}

// Disconnect releases still-active subscriptions, then drops the link.
// Safe to call when already disconnected.
func (c *BLEConnection) Disconnect() error {
	c.connMutex.Lock()
	if c.client == nil || !c.isConnected {
		c.connMutex.Unlock()
		if c.logger != nil {
			c.logger.Debug("Disconnect called but already disconnected")
		}
		return nil
	}

	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"services":      c.services.Len(),
			"subscriptions": len(c.subscriptions),
		}).Info("Disconnecting BLE device...")
	}

	// Snapshot under lock, then do network calls outside it
	client := c.client
	remaining := c.subscriptions
	c.subscriptions = make(map[string]*activeSubscription)
	c.client = nil
	c.isConnected = false
	c.connMutex.Unlock()

	var unsubscribeErrors []string
	for charUUID, sub := range remaining {
		if err := NormalizeError(client.Unsubscribe(sub.char.BLEChar, sub.indicate)); err != nil {
			unsubscribeErrors = append(unsubscribeErrors, fmt.Sprintf("%s: %v", charUUID, err))
		}
	}
	if len(unsubscribeErrors) > 0 && c.logger != nil {
		c.logger.WithField("errors", strings.Join(unsubscribeErrors, "; ")).Warn("Failed to unsubscribe from some characteristics during disconnect")
	}

	c.markDisconnected()

	disconnectErr := client.CancelConnection()

	if c.logger != nil {
		if disconnectErr != nil {
			c.logger.WithField("error", disconnectErr).Warn("BLE device disconnected with errors")
		} else {
			c.logger.Info("BLE device disconnected successfully")
		}
	}

	return disconnectErr
}

// Disconnected is closed once the link drops, locally or peripheral-side.
func (c *BLEConnection) Disconnected() <-chan struct{} {
	return c.done
}

func (c *BLEConnection) markDisconnected() {
	c.closeDone.Do(func() { close(c.done) })
}

func (c *BLEConnection) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.isConnectedInternal()
}

// isConnectedInternal checks the connection status without acquiring locks.
// Should only be called when the caller already holds connMutex.
func (c *BLEConnection) isConnectedInternal() bool {
	return c.client != nil && c.isConnected
}

// Services returns all discovered BLE services in discovery order. Thread-safe.
func (c *BLEConnection) Services() []device.Service {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	result := make([]device.Service, 0, c.services.Len())
	for pair := c.services.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}
	return result
}

// GetService retrieves a specific service by its UUID.
// The UUID is normalized for consistent lookup (lowercase, no dashes).
// Returns a NotFoundError if the service is not found.
func (c *BLEConnection) GetService(uuid string) (device.Service, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	svc, ok := c.services.Get(device.NormalizeUUID(uuid))
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
	}
	return svc, nil
}

// GetCharacteristic retrieves a characteristic by service and characteristic UUID.
// Both UUIDs are normalized for consistent lookup. Returns a NotFoundError if
// the service or characteristic is not found.
func (c *BLEConnection) GetCharacteristic(serviceUUID, charUUID string) (device.Characteristic, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	svc, ok := c.services.Get(device.NormalizeUUID(serviceUUID))
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{serviceUUID}}
	}

	char, ok := svc.characteristic(device.NormalizeUUID(charUUID))
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{serviceUUID, charUUID}}
	}
	return char, nil
}

// FindCharacteristic locates a characteristic by UUID across all services.
func (c *BLEConnection) FindCharacteristic(uuid string) (device.Characteristic, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	char, ok := c.findCharacteristicLocked(device.NormalizeUUID(uuid))
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{uuid}}
	}
	return char, nil
}

// findCharacteristicLocked searches services in discovery order.
// Caller must hold connMutex.
func (c *BLEConnection) findCharacteristicLocked(normalizedUUID string) (*BLECharacteristic, bool) {
	for pair := c.services.Oldest(); pair != nil; pair = pair.Next() {
		if char, ok := pair.Value.characteristic(normalizedUUID); ok {
			return char, true
		}
	}
	return nil, false
}

// Subscribe registers handler for notifications on the given characteristic.
// Notify is preferred when the characteristic supports both modes. The handler
// is invoked synchronously on the transport's delivery goroutine: there is no
// queue between the radio and the handler.
func (c *BLEConnection) Subscribe(charUUID string, handler device.NotificationHandler) error {
	if handler == nil {
		return fmt.Errorf("notification handler is nil")
	}

	normalized := device.NormalizeUUID(charUUID)

	c.connMutex.Lock()
	if !c.isConnectedInternal() {
		c.connMutex.Unlock()
		return device.ErrNotConnected
	}

	char, ok := c.findCharacteristicLocked(normalized)
	if !ok {
		c.connMutex.Unlock()
		return &device.NotFoundError{Resource: "characteristic", UUIDs: []string{charUUID}}
	}

	if _, exists := c.subscriptions[normalized]; exists {
		c.connMutex.Unlock()
		return fmt.Errorf("characteristic %s is already subscribed", normalized)
	}

	var indicate bool
	switch {
	case char.supportsNotify():
		indicate = false
	case char.supportsIndicate():
		indicate = true
	default:
		c.connMutex.Unlock()
		return fmt.Errorf("characteristic %s does not support notifications: %w", normalized, device.ErrUnsupported)
	}

	client := c.client
	c.subscriptions[normalized] = &activeSubscription{char: char, indicate: indicate}
	c.connMutex.Unlock()

	err := NormalizeError(client.Subscribe(char.BLEChar, indicate, func(data []byte) {
		handler(normalized, data)
	}))
	if err != nil {
		c.connMutex.Lock()
		delete(c.subscriptions, normalized)
		c.connMutex.Unlock()
		if c.logger != nil {
			c.logger.WithFields(logrus.Fields{
				"charUUID": normalized,
				"error":    err,
			}).Error("Failed to subscribe to characteristic notifications")
		}
		return err
	}

	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"charUUID": normalized,
			"indicate": indicate,
		}).Info("Subscribed to characteristic notifications")
	}
	return nil
}

// Unsubscribe cancels an active subscription using the mode it was established
// with. The subscription is considered released even when the remote call
// fails, so teardown paths never issue a second unsubscribe for the same
// characteristic.
func (c *BLEConnection) Unsubscribe(charUUID string) error {
	normalized := device.NormalizeUUID(charUUID)

	c.connMutex.Lock()
	sub, ok := c.subscriptions[normalized]
	if !ok {
		c.connMutex.Unlock()
		return fmt.Errorf("characteristic %s is not subscribed", normalized)
	}
	delete(c.subscriptions, normalized)
	client := c.client
	c.connMutex.Unlock()

	if client == nil {
		return device.ErrNotConnected
	}

	err := NormalizeError(client.Unsubscribe(sub.char.BLEChar, sub.indicate))
	if err != nil {
		if c.logger != nil {
			c.logger.WithFields(logrus.Fields{
				"charUUID": normalized,
				"error":    err,
			}).Error("Failed to unsubscribe from characteristic notifications")
		}
		return err
	}

	if c.logger != nil {
		c.logger.WithField("charUUID", normalized).Debug("Unsubscribed from characteristic notifications")
	}
	return nil
}

// readGAPDeviceName reads the GAP Device Name characteristic when present.
// Best-effort: returns "" on any failure.
func (c *BLEConnection) readGAPDeviceName() string {
	c.connMutex.RLock()
	client := c.client
	var char *BLECharacteristic
	if svc, ok := c.services.Get(gapServiceUUID); ok {
		char, _ = svc.characteristic(deviceNameCharUUID)
	}
	c.connMutex.RUnlock()

	if client == nil || char == nil || char.BLEChar == nil {
		return ""
	}

	data, err := client.ReadCharacteristic(char.BLEChar)
	if err != nil || len(data) == 0 {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(string(data), "\x00"))
}
