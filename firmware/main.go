//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"
)

const numSensors = len(fsrPins)

var (
	adcs [numSensors]machine.ADC
	uart = machine.UART0

	// ADC averaging - running sums per channel and sweep count
	sums  [numSensors]uint32
	count int

	// Output format, toggled from the host
	jsonMode bool

	// Timing
	lastADCRead time.Time

	// Serial buffer for reading commands
	serialBuffer [8]byte
	serialPos    int
)

func main() {
	adcConfig := machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	}
	for i, pin := range fsrPins {
		pin.Configure(machine.PinConfig{Mode: machine.PinInput})
		adcs[i] = machine.ADC{Pin: pin}
		adcs[i].Configure(adcConfig)
	}

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	lastADCRead = time.Now()

	for {
		now := time.Now()

		processSerial()

		if now.Sub(lastADCRead) >= time.Duration(SAMPLE_INTERVAL_MS)*time.Millisecond {
			sweep()
			lastADCRead = now
		}

		if count >= NUM_SAMPLES {
			outputAveragedValues()
			for i := range sums {
				sums[i] = 0
			}
			count = 0
		}

		time.Sleep(100 * time.Microsecond)
	}
}

func sweep() {
	for i := range adcs {
		// machine.ADC.Get is left-aligned to 16 bits regardless of resolution
		sums[i] += uint32(adcs[i].Get() >> (16 - ADC_RESOLUTION))
	}
	count++
}

// millivolts converts an averaged ADC reading.
func millivolts(sum uint32, n int) uint32 {
	if n == 0 {
		return 0
	}
	return (sum / uint32(n)) * ADC_REFERENCE_MV / ADC_MAX
}

// Output formats:
//
//	text: "0.012 1.530 0.000 0.004 2.210 0.000 0.031\n"
//	json: {"fsr0":0.012,"fsr1":1.530,...}
func outputAveragedValues() {
	if jsonMode {
		print("{")
	}
	for i := range sums {
		if i > 0 {
			if jsonMode {
				print(",")
			} else {
				print(" ")
			}
		}
		if jsonMode {
			print("\"fsr", i, "\":")
		}
		printVolts(millivolts(sums[i], count))
	}
	if jsonMode {
		print("}")
	}
	print("\n")
}

// printVolts prints mv as volts with three decimals; print(float) would use
// exponent notation.
func printVolts(mv uint32) {
	print(mv / 1000)
	print(".")
	frac := mv % 1000
	if frac < 100 {
		print("0")
	}
	if frac < 10 {
		print("0")
	}
	print(frac)
}

// processSerial handles single-letter commands: "j" switches to JSON output,
// "t" back to whitespace separated text.
func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if serialPos == 1 {
				handleCommand(serialBuffer[0])
			}
			serialPos = 0
			continue
		}

		if data == ' ' || data == '\t' {
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		}
	}
}

func handleCommand(c byte) {
	switch c {
	case 'j':
		jsonMode = true
	case 't':
		jsonMode = false
	}
}
