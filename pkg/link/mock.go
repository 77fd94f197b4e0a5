package link

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/itohio/insole/pkg/config"
)

const (
	mockRestVoltage  = 0.05 // Unloaded FSR output (V)
	mockPeakVoltage  = 2.5  // Peak loaded FSR output (V)
	mockStanceRatio  = 0.6  // Fraction of a step the foot is on the ground
	mockLoadSpread   = 0.18 // Width of the heel-to-toe load wave
	mockLineCapacity = 100
)

// Mock simulates the insole microcontroller, emitting whitespace separated
// voltages for a walking gait.
type Mock struct {
	cfg         *config.MockConfig
	sensors     int
	readTimeout time.Duration

	lines     chan string
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool

	startTime time.Time
}

// NewMock creates a simulated device with the given number of sensors.
func NewMock(cfg *config.MockConfig, sensors int, readTimeout time.Duration) *Mock {
	if cfg == nil {
		cfg = &config.MockConfig{
			SampleRate: 20 * time.Millisecond,
			NoiseLevel: 0.005,
			StepPeriod: 1200 * time.Millisecond,
		}
	}
	if sensors <= 0 {
		sensors = 7
	}
	if readTimeout == 0 {
		readTimeout = DefaultReadTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Mock{
		cfg:         cfg,
		sensors:     sensors,
		readTimeout: readTimeout,
		lines:       make(chan string, mockLineCapacity),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Connect starts generating lines.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}
	if m.ctx.Err() != nil {
		return ErrNotConnected
	}

	m.connected = true
	m.startTime = time.Now()

	go m.generateLines()

	return nil
}

// ReadLine implements Transport.
func (m *Mock) ReadLine() (string, error) {
	timer := time.NewTimer(m.readTimeout)
	defer timer.Stop()

	select {
	case line, ok := <-m.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-timer.C:
		return "", nil
	}
}

// Close stops the simulated device. The line channel is closed by the
// generator once it exits.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancel()
	m.connected = false
	return nil
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *Mock) String() string {
	return "mock"
}

func (m *Mock) generateLines() {
	defer close(m.lines)

	ticker := time.NewTicker(m.cfg.SampleRate)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case now := <-ticker.C:
			line := m.generateLine(now.Sub(m.startTime))
			select {
			case m.lines <- line:
			case <-m.ctx.Done():
				return
			default:
				// Nobody is reading, drop like a UART overrun would.
			}
		}
	}
}

// generateLine renders the sensor voltages at elapsed time t.
func (m *Mock) generateLine(t time.Duration) string {
	values := m.voltages(t)
	var sb strings.Builder
	for i, v := range values {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatFloat(v, 'f', 3, 64))
	}
	return sb.String()
}

// voltages models a load wave travelling from the heel (last sensor) to the
// toes (first sensor) during the stance part of each step.
func (m *Mock) voltages(t time.Duration) []float64 {
	out := make([]float64, m.sensors)

	phase := 0.0
	if m.cfg.StepPeriod > 0 {
		phase = float64(t%m.cfg.StepPeriod) / float64(m.cfg.StepPeriod)
	}

	elapsed := float64(t.Nanoseconds())
	for i := range out {
		v := mockRestVoltage
		if phase < mockStanceRatio {
			progress := phase / mockStanceRatio
			center := 1.0
			if m.sensors > 1 {
				center = 1.0 - float64(i)/float64(m.sensors-1)
			}
			d := (progress - center) / mockLoadSpread
			v += mockPeakVoltage * math.Exp(-0.5*d*d)
		}

		noise := (math.Sin(elapsed*0.001+float64(i)) +
			math.Cos(elapsed*0.0013+float64(i)*0.7)) *
			m.cfg.NoiseLevel * 0.5
		v += noise

		out[i] = math.Max(0, math.Min(5, v))
	}
	return out
}
