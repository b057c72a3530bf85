package testutils

import (
	"encoding/json"
	"strings"

	"github.com/ullo-labs/bbelt/internal/device"
)

type DeviceJSONFull struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	Address            string      `json:"address"`
	RSSI               int         `json:"rssi"`
	TxPower            *int        `json:"txPower,omitempty"`
	Connectable        bool        `json:"connectable"`
	AdvertisedServices []string    `json:"advertisedServices"`
	ManufacturerData   interface{} `json:"manufacturerData,omitempty"`
	ServiceData        interface{} `json:"serviceData,omitempty"`
}

type ServiceJSON struct {
	UUID            string               `json:"uuid"`
	KnownName       string               `json:"knownName,omitempty"`
	Characteristics []CharacteristicJSON `json:"characteristics"`
}

type CharacteristicJSON struct {
	UUID       string `json:"uuid"`
	KnownName  string `json:"knownName,omitempty"`
	Properties string `json:"properties"`
}

// DeviceToJSON converts a device snapshot to a JSON string. Byte payloads are
// rendered as integer arrays so expected JSON in tests stays readable instead
// of base64.
func DeviceToJSON(d device.DeviceInfo) string {
	var manufData interface{}
	if d.ManufacturerData() != nil {
		manufData = bytesToInts(d.ManufacturerData())
	}

	var serviceData interface{}
	if len(d.ServiceData()) > 0 {
		svcData := make(map[string][]int)
		for k, v := range d.ServiceData() {
			svcData[k] = bytesToInts(v)
		}
		serviceData = svcData
	}

	jsonStruct := DeviceJSONFull{
		ID:                 d.ID(),
		Name:               d.Name(),
		Address:            d.Address(),
		RSSI:               d.RSSI(),
		TxPower:            d.TxPower(),
		Connectable:        d.IsConnectable(),
		AdvertisedServices: d.AdvertisedServices(),
		ManufacturerData:   manufData,
		ServiceData:        serviceData,
	}

	b, err := json.Marshal(jsonStruct)
	if err != nil {
		panic(err)
	}

	return string(b)
}

// ConnectionToJSON converts a discovered GATT profile to a JSON string for
// assertions against expected service layouts.
func ConnectionToJSON(conn device.Connection) string {
	var services []ServiceJSON
	for _, svc := range conn.Services() {
		var chars []CharacteristicJSON
		for _, char := range svc.GetCharacteristics() {
			chars = append(chars, CharacteristicJSON{
				UUID:       char.UUID(),
				KnownName:  char.KnownName(),
				Properties: propertiesToString(char.GetProperties()),
			})
		}
		services = append(services, ServiceJSON{
			UUID:            svc.UUID(),
			KnownName:       svc.KnownName(),
			Characteristics: chars,
		})
	}

	b, err := json.Marshal(map[string][]ServiceJSON{"services": services})
	if err != nil {
		panic(err)
	}

	return string(b)
}

// propertiesToString joins the known names of the set properties in
// declaration order, e.g. "Read,Notify".
func propertiesToString(props device.Properties) string {
	if props == nil {
		return ""
	}

	var names []string
	for _, p := range []device.Property{
		props.Broadcast(),
		props.Read(),
		props.WriteWithoutResponse(),
		props.Write(),
		props.Notify(),
		props.Indicate(),
		props.AuthenticatedSignedWrites(),
		props.ExtendedProperties(),
	} {
		if p != nil {
			names = append(names, p.KnownName())
		}
	}
	return strings.Join(names, ",")
}

func bytesToInts(data []byte) []int {
	ints := make([]int, len(data))
	for i, b := range data {
		ints[i] = int(b)
	}
	return ints
}
