// Package device defines transport-agnostic Bluetooth Low Energy (BLE)
// abstractions: devices, connections, GATT services/characteristics,
// advertisements, and a structured error taxonomy.
//
// The concrete go-ble backed implementation lives in the go-ble subpackage;
// this package carries only interfaces and shared helpers so that commands
// and tests depend on behavior, not on a particular BLE stack.
package device
