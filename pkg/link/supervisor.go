package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/itohio/insole/pkg/config"
	"github.com/itohio/insole/pkg/metrics"
)

// DefaultRetryInterval is the pause between full passes over the candidates.
const DefaultRetryInterval = time.Second

// Opener opens one transport.
type Opener func(ctx context.Context) (Transport, error)

// Candidate is a named way to reach the device.
type Candidate struct {
	Name string
	Open Opener
}

// Supervisor keeps trying its candidates, in order, until one connects.
type Supervisor struct {
	candidates []Candidate
	retry      time.Duration
	logger     *log.Logger
	metrics    *metrics.Metrics
}

// NewSupervisor creates a supervisor over a prioritized candidate list.
func NewSupervisor(candidates []Candidate, retry time.Duration, logger *log.Logger, m *metrics.Metrics) *Supervisor {
	if retry <= 0 {
		retry = DefaultRetryInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Supervisor{
		candidates: candidates,
		retry:      retry,
		logger:     logger,
		metrics:    m,
	}
}

// Acquire blocks until a candidate connects. Every candidate is tried once
// per pass; passes repeat every retry interval until ctx is cancelled, in
// which case ErrConnectionAborted is returned.
func (s *Supervisor) Acquire(ctx context.Context) (Transport, error) {
	if len(s.candidates) == 0 {
		return nil, errors.New("no transport candidates configured")
	}

	for {
		for _, c := range s.candidates {
			if ctx.Err() != nil {
				return nil, ErrConnectionAborted
			}

			t, err := c.Open(ctx)
			s.metrics.ConnectAttempt(c.Name, err)
			if err == nil {
				s.logger.Info("connected", "transport", t.String())
				return t, nil
			}
			if ctx.Err() != nil {
				return nil, ErrConnectionAborted
			}
			s.logger.Warn("connect failed", "transport", c.Name, "err", err)
		}

		s.logger.Debug("no transport available, retrying", "in", s.retry)
		timer := time.NewTimer(s.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ErrConnectionAborted
		case <-timer.C:
		}
	}
}

// Candidates builds the candidate list for the configured transport.
// Missing required settings are configuration errors.
func Candidates(cfg *config.Config) ([]Candidate, error) {
	tc := cfg.Transport
	switch tc.Kind {
	case config.TransportSerial:
		if len(tc.Serial.Ports) == 0 {
			return nil, errors.New("no serial port configured")
		}
		out := make([]Candidate, 0, len(tc.Serial.Ports))
		for _, name := range tc.Serial.Ports {
			out = append(out, Candidate{
				Name: "serial:" + name,
				Open: func(ctx context.Context) (Transport, error) {
					s, err := OpenSerial(ctx, name, tc.Serial.BaudRate, tc.Serial.ReadTimeout, tc.Serial.SettleDelay)
					if err != nil {
						return nil, err
					}
					return s, nil
				},
			})
		}
		return out, nil

	case config.TransportBluetooth:
		bt := tc.Bluetooth
		if bt.Address == "" {
			return nil, errors.New("bluetooth address not configured")
		}
		if _, err := parseBDAddr(bt.Address); err != nil {
			return nil, err
		}
		return []Candidate{{
			Name: fmt.Sprintf("bluetooth:%s/%d", bt.Address, bt.Channel),
			Open: func(ctx context.Context) (Transport, error) {
				b, err := OpenBluetooth(ctx, bt.Address, bt.Channel, bt.ReadTimeout)
				if err != nil {
					return nil, err
				}
				return b, nil
			},
		}}, nil

	case config.TransportMock:
		mockCfg := cfg.Mock
		sensors := cfg.Sensors.Count
		return []Candidate{{
			Name: "mock",
			Open: func(ctx context.Context) (Transport, error) {
				m := NewMock(&mockCfg, sensors, tc.Serial.ReadTimeout)
				if err := m.Connect(); err != nil {
					return nil, err
				}
				return m, nil
			},
		}}, nil

	default:
		return nil, fmt.Errorf("unknown transport %q", tc.Kind)
	}
}
