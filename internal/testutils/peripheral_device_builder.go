package testutils

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"

	"github.com/ullo-labs/bbelt/internal/device"
	blemocks "github.com/ullo-labs/bbelt/internal/testutils/mocks/goble"
)

// createMockUUID creates a ble.UUID from a string for testing. Panics on
// invalid input, which is fine for fixture data.
func createMockUUID(name string) blelib.UUID {
	return blelib.MustParse(name)
}

// CharacteristicConfig represents a BLE characteristic configuration for mocking
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value      []byte `json:"value,omitempty"`
}

// ServiceConfig represents a BLE service configuration for mocking
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete device profile for mocking
type DeviceProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// CharacteristicOption tunes per-characteristic mock behavior.
type CharacteristicOption func(*characteristicBehavior)

type characteristicBehavior struct {
	readDelay time.Duration
}

// WithReadDelay makes ReadCharacteristic block for d before returning,
// for exercising timeout paths.
func WithReadDelay(d time.Duration) CharacteristicOption {
	return func(b *characteristicBehavior) {
		b.readDelay = d
	}
}

// PeripheralDeviceBuilder builds a mocked ble.Device with full
// service/characteristic support. Subscription handlers are captured on
// Subscribe, so tests can push synthetic notification payloads through
// FireNotification after the code under test has connected.
type PeripheralDeviceBuilder struct {
	t                  *testing.T
	profile            DeviceProfileConfig
	behaviors          map[string]*characteristicBehavior // keyed by normalized UUID
	scanAdvertisements []blelib.Advertisement

	mu             sync.Mutex
	notifyHandlers map[string]blelib.NotificationHandler
	disconnectCh   chan struct{}
	disconnectOnce *sync.Once
}

// NewPeripheralDeviceBuilder creates a new peripheral device builder.
func NewPeripheralDeviceBuilder(t *testing.T) *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{
		t:              t,
		behaviors:      make(map[string]*characteristicBehavior),
		notifyHandlers: make(map[string]blelib.NotificationHandler),
	}
}

// WithService adds a service to the device profile.
func (b *PeripheralDeviceBuilder) WithService(uuid string) *PeripheralDeviceBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{
		UUID: uuid,
	})
	return b
}

// WithCharacteristic adds a characteristic to the last added service.
func (b *PeripheralDeviceBuilder) WithCharacteristic(uuid, properties string, value []byte, opts ...CharacteristicOption) *PeripheralDeviceBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics,
		CharacteristicConfig{
			UUID:       uuid,
			Properties: properties,
			Value:      value,
		})

	if len(opts) > 0 {
		behavior := &characteristicBehavior{}
		for _, opt := range opts {
			opt(behavior)
		}
		b.behaviors[device.NormalizeUUID(uuid)] = behavior
	}
	return b
}

// FromJSON fills the device profile from JSON. Panics on invalid input.
func (b *PeripheralDeviceBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralDeviceBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	b.profile = config
	return b
}

// WithScanAdvertisements returns an AdvertisementArrayBuilder whose Build()
// attaches the advertisements to this peripheral and returns the builder.
func (b *PeripheralDeviceBuilder) WithScanAdvertisements() *AdvertisementArrayBuilder[*PeripheralDeviceBuilder] {
	arrayBuilder := NewAdvertisementArrayBuilder[*PeripheralDeviceBuilder]()
	arrayBuilder.parent = b
	arrayBuilder.buildFunc = func(parent *PeripheralDeviceBuilder, ads []blelib.Advertisement) *PeripheralDeviceBuilder {
		parent.scanAdvertisements = append(parent.scanAdvertisements, ads...)
		return parent
	}
	return arrayBuilder
}

// GetServices returns the configured services.
func (b *PeripheralDeviceBuilder) GetServices() []ServiceConfig {
	return b.profile.Services
}

// parseCharacteristicProperties converts a comma-separated property list to
// ble.Property flags. An empty string defaults to read,write,notify.
func parseCharacteristicProperties(props string) blelib.Property {
	if props == "" {
		return blelib.CharRead | blelib.CharWrite | blelib.CharNotify
	}

	var property blelib.Property
	for _, p := range strings.Split(props, ",") {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "broadcast":
			property |= blelib.CharBroadcast
		case "read":
			property |= blelib.CharRead
		case "write-without-response":
			property |= blelib.CharWriteNR
		case "write":
			property |= blelib.CharWrite
		case "notify":
			property |= blelib.CharNotify
		case "indicate":
			property |= blelib.CharIndicate
		}
	}
	return property
}

// Build creates a mocked ble.Device serving the configured profile. Each
// call produces a fresh device and client sharing this builder's handler
// registry, so FireNotification reaches the most recent subscriber.
func (b *PeripheralDeviceBuilder) Build() blelib.Device {
	mockDevice := &blemocks.MockDevice{}
	mockClient := &blemocks.MockClient{}

	var bleServices []*blelib.Service
	for _, svcConfig := range b.profile.Services {
		bleService := &blelib.Service{
			UUID: createMockUUID(svcConfig.UUID),
		}

		for _, charConfig := range svcConfig.Characteristics {
			bleService.Characteristics = append(bleService.Characteristics, &blelib.Characteristic{
				UUID:     createMockUUID(charConfig.UUID),
				Property: parseCharacteristicProperties(charConfig.Properties),
				Value:    charConfig.Value,
			})
		}
		bleServices = append(bleServices, bleService)
	}

	mockProfile := &blelib.Profile{
		Services: bleServices,
	}

	// Connection lifecycle: Dial hands out the client, CancelConnection
	// fires the disconnect channel like a real link drop would
	disconnectCh := make(chan struct{})
	once := &sync.Once{}
	b.mu.Lock()
	b.disconnectCh = disconnectCh
	b.disconnectOnce = once
	b.mu.Unlock()

	mockDevice.On("Dial", mock.Anything, mock.Anything).Return(mockClient, nil)
	mockClient.On("DiscoverProfile", true).Return(mockProfile, nil)
	mockClient.On("Disconnected").Return((<-chan struct{})(disconnectCh))
	mockClient.On("CancelConnection").Run(func(mock.Arguments) {
		once.Do(func() { close(disconnectCh) })
	}).Return(nil)

	// Leftover connection monitors must not outlive the test
	b.t.Cleanup(func() {
		once.Do(func() { close(disconnectCh) })
	})

	for _, svc := range bleServices {
		for _, char := range svc.Characteristics {
			char := char
			key := device.NormalizeUUID(char.UUID.String())

			capture := func(args mock.Arguments) {
				if h, ok := args.Get(2).(blelib.NotificationHandler); ok {
					b.setNotifyHandler(key, h)
				}
			}
			release := func(mock.Arguments) { b.clearNotifyHandler(key) }

			mockClient.On("Subscribe", char, false, mock.Anything).Run(capture).Return(nil)
			mockClient.On("Subscribe", char, true, mock.Anything).Run(capture).Return(nil)
			mockClient.On("Unsubscribe", char, false).Run(release).Return(nil)
			mockClient.On("Unsubscribe", char, true).Run(release).Return(nil)

			call := mockClient.On("ReadCharacteristic", char)
			if behavior, ok := b.behaviors[key]; ok && behavior.readDelay > 0 {
				delay := behavior.readDelay
				call.Run(func(mock.Arguments) { time.Sleep(delay) })
			}
			if char.Property&blelib.CharRead != 0 {
				call.Return(char.Value, nil)
			} else {
				call.Return(nil, fmt.Errorf("characteristic does not support read"))
			}
		}
	}

	// Scanning replays the configured advertisements and completes
	mockDevice.On("Scan", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		if handler, ok := args.Get(2).(blelib.AdvHandler); ok {
			for _, adv := range b.scanAdvertisements {
				handler(adv)
			}
		}
	}).Return(nil)

	return mockDevice
}

// FireNotification pushes a synthetic payload to the handler subscribed on
// the given characteristic. Fails when nothing is subscribed.
func (b *PeripheralDeviceBuilder) FireNotification(charUUID string, data []byte) error {
	b.mu.Lock()
	handler, ok := b.notifyHandlers[device.NormalizeUUID(charUUID)]
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("no active subscription for characteristic %s", charUUID)
	}
	handler(data)
	return nil
}

// TriggerDisconnect simulates the peripheral dropping the link.
func (b *PeripheralDeviceBuilder) TriggerDisconnect() {
	b.mu.Lock()
	once, ch := b.disconnectOnce, b.disconnectCh
	b.mu.Unlock()

	if once != nil {
		once.Do(func() { close(ch) })
	}
}

func (b *PeripheralDeviceBuilder) setNotifyHandler(key string, h blelib.NotificationHandler) {
	b.mu.Lock()
	b.notifyHandlers[key] = h
	b.mu.Unlock()
}

func (b *PeripheralDeviceBuilder) clearNotifyHandler(key string) {
	b.mu.Lock()
	delete(b.notifyHandlers, key)
	b.mu.Unlock()
}
