package link

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	// DefaultBaudRate is the standard baud rate of the insole firmware.
	DefaultBaudRate = 115200
	// DefaultReadTimeout bounds a single read so the stop signal is seen promptly.
	DefaultReadTimeout = 200 * time.Millisecond
	// DefaultSettleDelay covers the reset an Arduino performs when the port opens.
	DefaultSettleDelay = 2 * time.Second
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(details))
	for _, d := range details {
		desc := d.Name
		if d.IsUSB {
			desc = fmt.Sprintf("%s (USB %s:%s %s)", d.Name, d.VID, d.PID, d.Product)
		}
		result = append(result, Port{
			Name:        d.Name,
			Description: desc,
		})
	}

	return result, nil
}

// Serial is a transport over a serial port.
type Serial struct {
	name string

	mu    sync.Mutex
	port  serial.Port
	lines *lineReader
}

// OpenSerial opens name, waits settle for the board to boot and discards
// whatever it printed meanwhile. Cancelling ctx during the settle delay
// closes the port and returns the context error.
func OpenSerial(ctx context.Context, name string, baudRate int, readTimeout, settle time.Duration) (*Serial, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if readTimeout == 0 {
		readTimeout = DefaultReadTimeout
	}

	port, err := serial.Open(name, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", name, err)
	}

	if settle > 0 {
		timer := time.NewTimer(settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			port.Close()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to flush %s: %w", name, err)
	}

	return &Serial{
		name:  name,
		port:  port,
		lines: newLineReader(port),
	}, nil
}

// ReadLine implements Transport.
func (s *Serial) ReadLine() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return "", ErrNotConnected
	}
	line, err := s.lines.readLine()
	if err != nil {
		return "", fmt.Errorf("serial read %s: %w", s.name, err)
	}
	return line, nil
}

// Close implements Transport.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.lines.reset()
	return err
}

func (s *Serial) String() string {
	return "serial:" + s.name
}
