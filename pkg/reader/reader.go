// Package reader runs the ingestion loop: it keeps a transport connected,
// turns every received line into a filtered reading and publishes it to the
// snapshot cache.
package reader

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/itohio/insole/pkg/config"
	"github.com/itohio/insole/pkg/link"
	"github.com/itohio/insole/pkg/metrics"
	"github.com/itohio/insole/pkg/sensor"
	"github.com/itohio/insole/pkg/snapshot"
)

// Acquirer hands out connected transports. *link.Supervisor implements it.
type Acquirer interface {
	Acquire(ctx context.Context) (link.Transport, error)
}

// Reader owns the registry and filter state. Run is the only writer of that
// state; Latest may be called from any goroutine.
type Reader struct {
	acquirer Acquirer
	parser   *sensor.Parser
	filter   *sensor.Filter
	cache    *snapshot.Cache
	metrics  *metrics.Metrics
	logger   *log.Logger

	callbacks []func(snapshot.Snapshot)
	cbMu      sync.RWMutex
}

// New creates a reader with a fresh registry of cfg.Sensors.Count sensors.
func New(cfg *config.Config, acquirer Acquirer, m *metrics.Metrics, logger *log.Logger) *Reader {
	if logger == nil {
		logger = log.Default()
	}
	reg := sensor.NewRegistry(cfg.Sensors.Count)
	sensorLog := logger.WithPrefix("sensor")

	r := &Reader{
		acquirer: acquirer,
		parser:   sensor.NewParser(reg, sensorLog),
		filter:   sensor.NewFilter(reg, cfg, sensorLog),
		cache:    snapshot.New(),
		metrics:  m,
		logger:   logger,
	}
	m.SetSensors(reg.Len(), 0)
	return r
}

// Registry returns the sensor registry.
func (r *Reader) Registry() *sensor.Registry {
	return r.filter.Registry()
}

// Cache returns the snapshot cache the loop publishes to.
func (r *Reader) Cache() *snapshot.Cache {
	return r.cache
}

// OnPublish registers a callback invoked from the ingestion loop after every
// publish. Callbacks must return quickly.
func (r *Reader) OnPublish(callback func(snapshot.Snapshot)) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.callbacks = append(r.callbacks, callback)
}

// Run connects, reads and publishes until ctx is cancelled. Read errors
// close the transport and reconnect; malformed lines are dropped. It returns
// nil on cancellation and an error only when no transport can ever be
// acquired (misconfiguration).
func (r *Reader) Run(ctx context.Context) error {
	var t link.Transport
	defer func() {
		r.disconnect(t)
	}()

	for {
		r.disconnect(t)
		t = nil

		tr, err := r.acquirer.Acquire(ctx)
		if err != nil {
			if errors.Is(err, link.ErrConnectionAborted) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		t = tr
		r.metrics.SetConnected(true)

		err = r.readLoop(ctx, t)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		r.metrics.ReadError()
		r.logger.Warn("read failed, reconnecting", "transport", t.String(), "err", err)
	}
}

// readLoop returns nil once ctx is done and the read error otherwise.
func (r *Reader) readLoop(ctx context.Context, t link.Transport) error {
	for ctx.Err() == nil {
		line, err := t.ReadLine()
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}
		r.metrics.LineReceived()
		r.process(line)
	}
	return nil
}

func (r *Reader) process(line string) {
	raw, ok := r.parser.Parse(strings.ToValidUTF8(line, ""))
	if !ok {
		r.metrics.LineDiscarded()
		r.logger.Debug("discarding line", "line", line)
		return
	}

	reading := r.filter.Apply(raw, true)
	r.publish(snapshot.Snapshot{Timestamp: time.Now(), Values: reading})
}

func (r *Reader) publish(s snapshot.Snapshot) {
	r.cache.Publish(s)

	reg := r.filter.Registry()
	r.metrics.ReadingPublished()
	r.metrics.SetSensors(reg.Len(), len(reg.AutoDisabled()))

	r.cbMu.RLock()
	defer r.cbMu.RUnlock()
	for _, cb := range r.callbacks {
		cb(snapshot.Snapshot{Timestamp: s.Timestamp, Values: s.Values.Clone()})
	}
}

func (r *Reader) disconnect(t link.Transport) {
	if t == nil {
		return
	}
	if err := t.Close(); err != nil {
		r.logger.Debug("close failed", "transport", t.String(), "err", err)
	}
	r.metrics.SetConnected(false)
}

// Latest waits up to timeout for a reading that was not yet delivered to any
// caller. When none arrives it returns a simulated reading if allowSimulated
// is set, otherwise false.
func (r *Reader) Latest(timeout time.Duration, allowSimulated bool) (sensor.Reading, bool) {
	if s, ok := r.cache.Wait(timeout); ok {
		return s.Values, true
	}
	if !allowSimulated {
		return nil, false
	}
	r.metrics.SimulatedServed()
	return r.simulate(), true
}
