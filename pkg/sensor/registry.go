// Package sensor turns raw FSR lines into calibrated, filtered pressure readings.
//
// The Registry is the ordered, append-only set of sensor keys ("fsr0",
// "fsr1", ...) together with the per-sensor filter state. The Parser decodes
// lines and grows the registry when wider packets show up, and the Filter
// applies baseline correction, noise and outlier detection and masking.
package sensor

import (
	"strconv"
	"sync"
)

// KeyPrefix is the prefix of every sensor key.
const KeyPrefix = "fsr"

// Raw maps sensor keys to raw voltages as decoded from a single line.
type Raw map[string]float64

// Reading maps sensor keys to corrected voltages. Disabled sensors are 0.
type Reading map[string]float64

// Clone returns a copy of the reading.
func (r Reading) Clone() Reading {
	if r == nil {
		return nil
	}
	out := make(Reading, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// State is the mutable filter state of a single sensor.
type State struct {
	Baseline     float64 // Valid only when Calibrated is set
	Calibrated   bool
	Noise        int // Consecutive-ish noisy samples, decays by one
	Outlier      int // Consecutive outlier samples, resets on an in-range sample
	AutoDisabled bool
}

// Key returns the key of the sensor at index i.
func Key(i int) string {
	return KeyPrefix + strconv.Itoa(i)
}

// Registry holds the known sensors in wire order. It only ever grows.
type Registry struct {
	mu     sync.Mutex
	keys   []string
	index  map[string]int
	states []State
}

// NewRegistry creates a registry with sensors fsr0..fsr{n-1}.
func NewRegistry(n int) *Registry {
	r := &Registry{index: make(map[string]int)}
	r.grow(n)
	return r
}

// Len returns the number of known sensors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

// Keys returns a copy of the sensor keys in wire order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Index returns the position of key in the registry.
func (r *Registry) Index(key string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[key]
	return i, ok
}

// State returns a copy of the filter state for key.
func (r *Registry) State(key string) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[key]
	if !ok {
		return State{}, false
	}
	return r.states[i], true
}

// AutoDisabled returns the keys disabled by noise or outlier detection.
func (r *Registry) AutoDisabled() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for i, st := range r.states {
		if st.AutoDisabled {
			out = append(out, r.keys[i])
		}
	}
	return out
}

// Grow extends the registry to n sensors. New sensors start uncalibrated with
// zeroed counters. It reports whether anything was added.
func (r *Registry) Grow(n int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grow(n)
}

func (r *Registry) grow(n int) bool {
	if n <= len(r.keys) {
		return false
	}
	for i := len(r.keys); i < n; i++ {
		key := Key(i)
		r.index[key] = i
		r.keys = append(r.keys, key)
		r.states = append(r.states, State{})
	}
	return true
}
