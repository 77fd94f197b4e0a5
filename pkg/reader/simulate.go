package reader

import (
	"math"
	"math/rand"

	"github.com/itohio/insole/pkg/sensor"
)

const (
	simCenterVoltage = 2.5
	simSwingVoltage  = 2.5
	simJitter        = 0.9
)

// simulate produces a plausible raw packet for every known sensor and runs it
// through the filter without learning, so masks still apply.
func (r *Reader) simulate() sensor.Reading {
	keys := r.filter.Registry().Keys()
	raw := make(sensor.Raw, len(keys))
	for _, key := range keys {
		v := simCenterVoltage + simSwingVoltage*(rand.Float64()*2*simJitter-simJitter)
		raw[key] = math.Max(0, math.Min(5, v))
	}
	return r.filter.Apply(raw, false)
}
