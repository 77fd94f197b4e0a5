package sensor

import (
	"testing"

	"github.com/itohio/insole/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFilter(t *testing.T, n int, mutate func(c *config.Config)) (*Filter, *Registry) {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	reg := NewRegistry(n)
	return NewFilter(reg, cfg, quietLogger()), reg
}

func state(t *testing.T, reg *Registry, key string) State {
	t.Helper()
	st, ok := reg.State(key)
	require.True(t, ok, "unknown sensor %s", key)
	return st
}

func TestFilter_SeedsBaselineAtRest(t *testing.T) {
	f, reg := newTestFilter(t, 3, nil)

	out := f.Apply(Raw{"fsr0": 0.3, "fsr1": 0.1, "fsr2": 0.05}, true)

	assert.Equal(t, Reading{"fsr0": 0, "fsr1": 0, "fsr2": 0}, out)
	st := state(t, reg, "fsr0")
	assert.True(t, st.Calibrated)
	assert.InDelta(t, 0.3, st.Baseline, 1e-12)
}

func TestFilter_SeedsZeroBaselineUnderContact(t *testing.T) {
	f, reg := newTestFilter(t, 3, nil)

	out := f.Apply(Raw{"fsr0": 1.0, "fsr1": 0.8, "fsr2": 0.1}, true)

	assert.InDelta(t, 1.0, out["fsr0"], 1e-12)
	assert.InDelta(t, 0.8, out["fsr1"], 1e-12)
	assert.InDelta(t, 0.1, out["fsr2"], 1e-12)
	for _, key := range reg.Keys() {
		st := state(t, reg, key)
		assert.True(t, st.Calibrated)
		assert.Zero(t, st.Baseline)
	}
}

func TestFilter_ClampsBelowTolerance(t *testing.T) {
	f, _ := newTestFilter(t, 3, nil)

	// Contact keeps baselines at zero so the raw values pass through.
	out := f.Apply(Raw{"fsr0": 1.0, "fsr1": 1.0, "fsr2": 0.019}, true)
	assert.Equal(t, 0.0, out["fsr2"])

	out = f.Apply(Raw{"fsr0": 1.0, "fsr1": 1.0, "fsr2": 0.02}, true)
	assert.InDelta(t, 0.02, out["fsr2"], 1e-12)

	out = f.Apply(Raw{"fsr0": 1.0, "fsr1": 1.0, "fsr2": -0.5}, true)
	assert.Equal(t, 0.0, out["fsr2"])
}

func TestFilter_MissingKeysCountAsZero(t *testing.T) {
	f, _ := newTestFilter(t, 3, nil)

	out := f.Apply(Raw{"fsr0": 1.0, "fsr1": 1.0, "fsr7": 3.0}, true)

	assert.Len(t, out, 3)
	assert.Equal(t, 0.0, out["fsr2"])
	assert.NotContains(t, out, "fsr7")
}

func TestFilter_BaselineConvergence(t *testing.T) {
	f, reg := newTestFilter(t, 3, nil)

	// Seed zero baselines under contact.
	f.Apply(Raw{"fsr0": 1.0, "fsr1": 1.0, "fsr2": 1.0}, true)

	const v = 0.3
	prev := v
	for i := 1; i <= 300; i++ {
		out := f.Apply(Raw{"fsr0": v}, true)
		assert.LessOrEqual(t, out["fsr0"], prev, "iteration %d", i)
		prev = out["fsr0"]
	}
	assert.Equal(t, 0.0, prev)
	assert.InDelta(t, v, state(t, reg, "fsr0").Baseline, 0.001)
}

func TestFilter_BaselineFollowsExponentialSmoothing(t *testing.T) {
	f, reg := newTestFilter(t, 2, nil)

	f.Apply(Raw{"fsr0": 1.0, "fsr1": 1.0}, true)
	out := f.Apply(Raw{"fsr0": 0.3}, true)

	// baseline = 0 + (0.3 - 0) * 0.02
	assert.InDelta(t, 0.006, state(t, reg, "fsr0").Baseline, 1e-12)
	assert.InDelta(t, 0.294, out["fsr0"], 1e-12)
}

func TestFilter_ContactSuppressesLearning(t *testing.T) {
	f, reg := newTestFilter(t, 3, nil)

	// Calibrate at rest, then build up some noise on fsr2.
	f.Apply(Raw{"fsr0": 0.1, "fsr1": 0.1, "fsr2": 0.0}, true)
	for i := 0; i < 5; i++ {
		f.Apply(Raw{"fsr0": 0.1, "fsr1": 0.1, "fsr2": 0.3}, true)
	}
	require.Positive(t, state(t, reg, "fsr2").Noise)

	before := make(map[string]float64)
	for _, key := range reg.Keys() {
		before[key] = state(t, reg, key).Baseline
	}

	f.Apply(Raw{"fsr0": 2.0, "fsr1": 2.0, "fsr2": 0.3}, true)

	for _, key := range reg.Keys() {
		st := state(t, reg, key)
		assert.Equal(t, before[key], st.Baseline, "baseline of %s moved under contact", key)
		assert.Zero(t, st.Noise, "noise counter of %s not reset under contact", key)
	}
}

func TestFilter_NoiseHysteresis(t *testing.T) {
	f, reg := newTestFilter(t, 3, nil)
	trigger := config.Default().Filter.NoiseTriggerCount

	// Contact seeds zero baselines, so a constant 1.0 on fsr2 decays slowly
	// (0.98^k) and stays above the noise threshold for more than trigger samples.
	f.Apply(Raw{"fsr0": 1.0, "fsr1": 1.0, "fsr2": 0.0}, true)

	for i := 1; i < trigger; i++ {
		out := f.Apply(Raw{"fsr2": 1.0}, true)
		require.Positive(t, out["fsr2"], "sample %d", i)
	}
	st := state(t, reg, "fsr2")
	assert.Equal(t, trigger-1, st.Noise)
	assert.False(t, st.AutoDisabled)

	out := f.Apply(Raw{"fsr2": 1.0}, true)
	assert.Equal(t, 0.0, out["fsr2"])
	assert.True(t, state(t, reg, "fsr2").AutoDisabled)
	assert.Equal(t, []string{"fsr2"}, reg.AutoDisabled())

	// Quiet samples decay the counter but never re-enable the sensor.
	for i := 0; i < trigger * 2; i++ {
		f.Apply(Raw{"fsr2": 0.0}, true)
	}
	st = state(t, reg, "fsr2")
	assert.Zero(t, st.Noise)
	assert.True(t, st.AutoDisabled)

	out = f.Apply(Raw{"fsr0": 1.0, "fsr1": 1.0, "fsr2": 1.0}, true)
	assert.Equal(t, 0.0, out["fsr2"])
	assert.Positive(t, out["fsr0"])
}

func TestFilter_NoiseCounterDecaysByOne(t *testing.T) {
	f, reg := newTestFilter(t, 3, nil)

	f.Apply(Raw{"fsr0": 1.0, "fsr1": 1.0, "fsr2": 0.0}, true)
	for i := 0; i < 5; i++ {
		f.Apply(Raw{"fsr2": 1.0}, true)
	}
	require.Equal(t, 5, state(t, reg, "fsr2").Noise)

	f.Apply(Raw{"fsr2": 0.0}, true)
	assert.Equal(t, 4, state(t, reg, "fsr2").Noise)
}

func TestFilter_OutlierResetIsImmediate(t *testing.T) {
	f, reg := newTestFilter(t, 4, nil)

	// All four sensors are loaded, baselines stay at zero.
	// magnitudes {0.5, 0.6, 1.0, 5.0}: median 0.8, MAD 0.25, threshold 1.8
	f.Apply(Raw{"fsr0": 0.5, "fsr1": 0.6, "fsr2": 1.0, "fsr3": 5.0}, true)
	assert.Equal(t, 1, state(t, reg, "fsr3").Outlier)
	assert.Zero(t, state(t, reg, "fsr2").Outlier)

	f.Apply(Raw{"fsr0": 0.5, "fsr1": 0.6, "fsr2": 1.0, "fsr3": 5.0}, true)
	assert.Equal(t, 2, state(t, reg, "fsr3").Outlier)

	f.Apply(Raw{"fsr0": 0.5, "fsr1": 0.6, "fsr2": 1.0, "fsr3": 1.0}, true)
	assert.Zero(t, state(t, reg, "fsr3").Outlier)
}

func TestFilter_OutlierMinThreshold(t *testing.T) {
	f, reg := newTestFilter(t, 4, nil)

	// Identical magnitudes give MAD 0; the floor of 0.4 still applies.
	f.Apply(Raw{"fsr0": 0.39, "fsr1": 0.39, "fsr2": 0.39, "fsr3": 0.39}, true)
	for _, key := range reg.Keys() {
		assert.Zero(t, state(t, reg, key).Outlier)
	}

	// median 0.5, MAD 0: threshold max(0.4, 0.5) = 0.5
	f.Apply(Raw{"fsr0": 0.5, "fsr1": 0.5, "fsr2": 0.5, "fsr3": 0.51}, true)
	assert.Equal(t, 1, state(t, reg, "fsr3").Outlier)
	assert.Zero(t, state(t, reg, "fsr0").Outlier)
}

func TestFilter_OutlierNeedsPopulation(t *testing.T) {
	f, reg := newTestFilter(t, 4, nil)

	f.Apply(Raw{"fsr0": 0.5, "fsr1": 0.6, "fsr2": 1.0, "fsr3": 5.0}, true)
	require.Equal(t, 1, state(t, reg, "fsr3").Outlier)

	// Only two loaded sensors: every counter resets.
	f.Apply(Raw{"fsr0": 0.5, "fsr3": 5.0}, true)
	assert.Zero(t, state(t, reg, "fsr3").Outlier)
}

func TestFilter_OutlierAutoDisable(t *testing.T) {
	f, reg := newTestFilter(t, 4, nil)
	trigger := config.Default().Filter.OutlierTriggerCount
	raw := Raw{"fsr0": 0.5, "fsr1": 0.6, "fsr2": 1.0, "fsr3": 5.0}

	for i := 0; i < trigger - 1; i++ {
		f.Apply(raw, true)
	}
	assert.False(t, state(t, reg, "fsr3").AutoDisabled)

	out := f.Apply(raw, true)
	assert.True(t, state(t, reg, "fsr3").AutoDisabled)
	assert.Equal(t, 0.0, out["fsr3"])
	assert.InDelta(t, 1.0, out["fsr2"], 1e-12)

	// Further outliers keep it disabled without re-triggering.
	f.Apply(raw, true)
	assert.Equal(t, []string{"fsr3"}, reg.AutoDisabled())
}

func TestFilter_Masking(t *testing.T) {
	f, _ := newTestFilter(t, 3, func(c *config.Config) {
		c.Sensors.Disabled = config.List{"fsr1"}
		c.Sensors.Allowed = config.List{"fsr2"}
	})

	out := f.Apply(Raw{"fsr0": 1.0, "fsr1": 1.0, "fsr2": 1.0}, true)

	assert.Equal(t, 0.0, out["fsr0"])
	assert.Equal(t, 0.0, out["fsr1"])
	assert.InDelta(t, 1.0, out["fsr2"], 1e-12)
}

func TestFilter_StaticDisabledOnly(t *testing.T) {
	f, _ := newTestFilter(t, 3, func(c *config.Config) {
		c.Sensors.Disabled = config.List{"fsr0", "fsr9"}
	})

	out := f.Apply(Raw{"fsr0": 1.0, "fsr1": 1.0, "fsr2": 1.0}, true)

	assert.Len(t, out, 3)
	assert.Equal(t, 0.0, out["fsr0"])
	assert.InDelta(t, 1.0, out["fsr1"], 1e-12)
	assert.InDelta(t, 1.0, out["fsr2"], 1e-12)
}

func TestFilter_NoLearnLeavesCounters(t *testing.T) {
	f, reg := newTestFilter(t, 4, nil)

	f.Apply(Raw{"fsr0": 0.5, "fsr1": 0.6, "fsr2": 1.0, "fsr3": 5.0}, true)
	before := state(t, reg, "fsr3")

	for i := 0; i < 10; i++ {
		f.Apply(Raw{"fsr0": 0.5, "fsr1": 0.6, "fsr2": 1.0, "fsr3": 5.0}, false)
	}
	assert.Equal(t, before, state(t, reg, "fsr3"))
}

func TestFilter_NoLearnSeedsZeroBaseline(t *testing.T) {
	f, reg := newTestFilter(t, 2, nil)

	out := f.Apply(Raw{"fsr0": 0.3, "fsr1": 0.1}, false)

	assert.InDelta(t, 0.3, out["fsr0"], 1e-12)
	st := state(t, reg, "fsr0")
	assert.True(t, st.Calibrated)
	assert.Zero(t, st.Baseline)
}

func TestFilter_Deterministic(t *testing.T) {
	stream := []Raw{
		{"fsr0": 0.1, "fsr1": 0.2, "fsr2": 0.0},
		{"fsr0": 0.4, "fsr1": 0.9, "fsr2": 0.2},
		{"fsr0": 0.2, "fsr1": 0.1, "fsr2": 0.3},
		{"fsr0": 1.2, "fsr1": 1.5, "fsr2": 0.7},
		{"fsr0": 0.1, "fsr1": 0.1, "fsr2": 0.1},
	}

	run := func() []Reading {
		f, _ := newTestFilter(t, 3, nil)
		var out []Reading
		for _, raw := range stream {
			out = append(out, f.Apply(raw, true))
		}
		return out
	}

	assert.Equal(t, run(), run())
}
