package goble

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/ullo-labs/bbelt/internal/device"
)

// ----------------------------
// BLE Service
// ----------------------------

// BLEService represents a GATT service and its characteristics.
// Characteristics are kept in discovery order.
type BLEService struct {
	uuid            string
	knownName       string
	characteristics *orderedmap.OrderedMap[string, *BLECharacteristic]
}

func newBLEService(uuid, knownName string) *BLEService {
	return &BLEService{
		uuid:            uuid,
		knownName:       knownName,
		characteristics: orderedmap.New[string, *BLECharacteristic](),
	}
}

func (s *BLEService) UUID() string {
	return s.uuid
}

func (s *BLEService) KnownName() string {
	return s.knownName
}

func (s *BLEService) GetCharacteristics() []device.Characteristic {
	result := make([]device.Characteristic, 0, s.characteristics.Len())
	for pair := s.characteristics.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}
	return result
}

func (s *BLEService) addCharacteristic(char *BLECharacteristic) {
	s.characteristics.Set(char.UUID(), char)
}

func (s *BLEService) characteristic(uuid string) (*BLECharacteristic, bool) {
	return s.characteristics.Get(uuid)
}
