//go:build linux

package main

const (
	exampleDeviceAddress = "FB:88:11:1E:90:F3"
	deviceAddressNote    = "Device address format: 48-bit MAC, colon-separated\n  Example: FB:88:11:1E:90:F3\n  Use 'bbelt scan' to discover devices"
)
