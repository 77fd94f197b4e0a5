package sensor

import (
	"math"

	"github.com/charmbracelet/log"
	"github.com/itohio/insole/pkg/config"
	"github.com/montanaflynn/stats"
)

// minOutlierPopulation is the smallest number of loaded sensors for which a
// median/MAD estimate is trusted.
const minOutlierPopulation = 3

// Filter is the adaptive filter applied to every parsed packet. It mutates
// the per-sensor state of its registry when learning.
type Filter struct {
	reg    *Registry
	cfg    config.FilterConfig
	logger *log.Logger

	disabled map[string]struct{}
	allowed  map[string]struct{}
}

// NewFilter creates a filter over reg using the thresholds and static sensor
// masks from cfg.
func NewFilter(reg *Registry, cfg *config.Config, logger *log.Logger) *Filter {
	if logger == nil {
		logger = log.Default()
	}
	f := &Filter{
		reg:      reg,
		cfg:      cfg.Filter,
		logger:   logger,
		disabled: make(map[string]struct{}, len(cfg.Sensors.Disabled)),
		allowed:  make(map[string]struct{}, len(cfg.Sensors.Allowed)),
	}
	for _, key := range cfg.Sensors.Disabled {
		f.disabled[key] = struct{}{}
	}
	for _, key := range cfg.Sensors.Allowed {
		f.allowed[key] = struct{}{}
	}
	return f
}

// Registry returns the registry the filter works on.
func (f *Filter) Registry() *Registry {
	return f.reg
}

// Apply corrects raw against the learned baselines and masks disabled
// sensors. Registry keys missing from raw count as 0; unknown keys are
// ignored. With learn set, baselines, noise and outlier counters are updated.
func (f *Filter) Apply(raw Raw, learn bool) Reading {
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()

	values := make([]float64, len(f.reg.keys))
	for i, key := range f.reg.keys {
		values[i] = raw[key]
	}

	active := f.footActive(values)
	corrected := f.correct(values, learn, active)
	if learn {
		f.detectNoise(corrected, active)
		f.detectOutliers(corrected)
	}
	return f.mask(corrected)
}

// footActive reports whether enough sensors carry load to count as contact.
func (f *Filter) footActive(values []float64) bool {
	n := 0
	for _, v := range values {
		if v >= f.cfg.ContactMinVoltage {
			n++
		}
	}
	return n >= f.cfg.MinActiveSensors
}

func (f *Filter) correct(values []float64, learn, active bool) []float64 {
	track := learn && !active
	out := make([]float64, len(values))
	for i, v := range values {
		st := &f.reg.states[i]
		if !st.Calibrated {
			// A first sample taken under load must not become the zero point.
			st.Baseline = 0
			if track {
				st.Baseline = v
			}
			st.Calibrated = true
		}
		if track {
			st.Baseline += (v - st.Baseline) * f.cfg.LearnRate
		}
		c := v - st.Baseline
		if c < f.cfg.BaselineOffsetTolerance {
			c = 0
		}
		out[i] = c
	}
	return out
}

func (f *Filter) detectNoise(corrected []float64, active bool) {
	if active {
		for i := range f.reg.states {
			f.reg.states[i].Noise = 0
		}
		return
	}
	for i, v := range corrected {
		st := &f.reg.states[i]
		if v > f.cfg.NoiseThresholdVoltage {
			st.Noise++
			if st.Noise >= f.cfg.NoiseTriggerCount && !st.AutoDisabled {
				st.AutoDisabled = true
				f.logger.Warn("sensor disabled: persistent noise", "sensor", f.reg.keys[i], "value", v, "samples", st.Noise)
			}
		} else if st.Noise > 0 {
			st.Noise--
		}
	}
}

func (f *Filter) detectOutliers(corrected []float64) {
	magnitudes := make(stats.Float64Data, 0, len(corrected))
	for _, v := range corrected {
		if v != 0 {
			magnitudes = append(magnitudes, math.Abs(v))
		}
	}
	if len(magnitudes) < minOutlierPopulation {
		for i := range f.reg.states {
			f.reg.states[i].Outlier = 0
		}
		return
	}

	// Both only fail on empty input.
	median, _ := stats.Median(magnitudes)
	mad, _ := stats.MedianAbsoluteDeviationPopulation(magnitudes)
	threshold := math.Max(f.cfg.OutlierMinThreshold, median+f.cfg.OutlierFactor*mad)

	for i, v := range corrected {
		st := &f.reg.states[i]
		magnitude := math.Abs(v)
		if magnitude <= threshold {
			st.Outlier = 0
			continue
		}
		st.Outlier++
		if st.Outlier >= f.cfg.OutlierTriggerCount && !st.AutoDisabled {
			st.AutoDisabled = true
			f.logger.Warn("sensor disabled: outlier", "sensor", f.reg.keys[i], "value", magnitude, "threshold", threshold)
		}
	}
}

// mask builds the output reading, zeroing static, automatic and non-allowed
// sensors.
func (f *Filter) mask(corrected []float64) Reading {
	out := make(Reading, len(corrected))
	for i, key := range f.reg.keys {
		if f.isDisabled(i, key) {
			out[key] = 0
			continue
		}
		out[key] = corrected[i]
	}
	return out
}

func (f *Filter) isDisabled(i int, key string) bool {
	if f.reg.states[i].AutoDisabled {
		return true
	}
	if _, ok := f.disabled[key]; ok {
		return true
	}
	if len(f.allowed) > 0 {
		if _, ok := f.allowed[key]; !ok {
			return true
		}
	}
	return false
}
