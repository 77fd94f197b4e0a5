//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_MS = 1  // ADC sweep interval in milliseconds (all channels per sweep)
	NUM_SAMPLES        = 20 // Sweeps averaged into one output line (~50 lines/s)

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)
	ADC_MAX          = 4095

	// Serial configuration
	// Text line: 7 values of "x.xxx" plus separators = ~42 bytes per line.
	// 50 lines/sec * 42 bytes = 2,100 bytes/sec, 21,000 baud at 8N1.
	// 115200 leaves ~5x headroom, and JSON mode (~100 bytes/line) still fits.
	UART_BAUD_RATE = 115200
)

// FSR voltage dividers, heel last. Order defines fsr0..fsr6 on the host.
var fsrPins = [...]machine.Pin{
	machine.A0,
	machine.A1,
	machine.A2,
	machine.A3,
	machine.A4,
	machine.A5,
	machine.A6,
}
