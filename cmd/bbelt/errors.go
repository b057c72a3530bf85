package main

import (
	"errors"

	"github.com/ullo-labs/bbelt/belt"
	"github.com/ullo-labs/bbelt/internal/device"
)

// FormatUserError turns internal errors into messages that tell the user
// what to do next, falling back to the raw error text.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off - enable it and try again"
	case errors.Is(err, device.ErrTimeout):
		return "operation timed out - check that the belt is powered on and in range"
	case errors.Is(err, belt.ErrConnectionLost):
		return "connection lost - the belt disconnected"
	case errors.Is(err, device.ErrNotConnected):
		return "device is not connected"
	case errors.Is(err, device.ErrAlreadyConnected):
		return "device is already connected"
	default:
		return err.Error()
	}
}
