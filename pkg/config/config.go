package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/a8m/envsubst"
	"gopkg.in/yaml.v3"
)

// Transport kinds.
const (
	TransportSerial    = "serial"
	TransportBluetooth = "bluetooth"
	TransportMock      = "mock"
)

// Config represents the application configuration.
type Config struct {
	Transport  TransportConfig  `yaml:"transport"`
	Sensors    SensorsConfig    `yaml:"sensors"`
	Filter     FilterConfig     `yaml:"filter"`
	Simulation SimulationConfig `yaml:"simulation"`
	HTTP       HTTPConfig       `yaml:"http"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Log        LogConfig        `yaml:"log"`
	Mock       MockConfig       `yaml:"mock"`
}

// TransportConfig selects and parameterizes the link to the microcontroller.
type TransportConfig struct {
	Kind          string          `yaml:"kind"` // serial, bluetooth or mock
	Serial        SerialConfig    `yaml:"serial"`
	Bluetooth     BluetoothConfig `yaml:"bluetooth"`
	RetryInterval time.Duration   `yaml:"retry_interval"` // Pause between full passes over the candidates
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Ports       List          `yaml:"ports"` // Tried in order
	BaudRate    int           `yaml:"baud_rate"`
	SettleDelay time.Duration `yaml:"settle_delay"` // Wait after open while the MCU resets
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// BluetoothConfig contains RFCOMM configuration.
type BluetoothConfig struct {
	Address     string        `yaml:"address"` // e.g. "24:6F:28:AA:BB:CC"
	Channel     int           `yaml:"channel"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// SensorsConfig describes the sensor registry seed and static masks.
type SensorsConfig struct {
	Count    int  `yaml:"count"`    // Initial registry size, grows with wider packets
	Disabled List `yaml:"disabled"` // Always forced to zero
	Allowed  List `yaml:"allowed"`  // When non-empty, everything else is forced to zero
}

// FilterConfig contains the adaptive filter thresholds.
type FilterConfig struct {
	LearnRate               float64 `yaml:"learn_rate"`
	ContactMinVoltage       float64 `yaml:"contact_min_voltage"`
	MinActiveSensors        int     `yaml:"min_active_sensors"`
	NoiseThresholdVoltage   float64 `yaml:"noise_threshold_voltage"`
	NoiseTriggerCount       int     `yaml:"noise_trigger_count"`
	BaselineOffsetTolerance float64 `yaml:"baseline_offset_tolerance"`
	OutlierFactor           float64 `yaml:"outlier_factor"`
	OutlierTriggerCount     int     `yaml:"outlier_trigger_count"`
	OutlierMinThreshold     float64 `yaml:"outlier_min_threshold"`
}

// SimulationConfig controls the synthetic fallback served to pollers.
type SimulationConfig struct {
	Allow       bool          `yaml:"allow"`
	WaitTimeout time.Duration `yaml:"wait_timeout"` // How long a poll waits for real data
}

// HTTPConfig contains the polling endpoint configuration.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// MQTTConfig contains the optional snapshot publisher configuration.
// Publishing is disabled while Broker is empty.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // e.g. "tcp://localhost:1883"
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
	Username string `yaml:"username"`
	Password string `yaml:"password"` // Prefer ${MQTT_PASSWORD} over a literal
	Retained bool   `yaml:"retained"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// MockConfig contains mock device configuration.
type MockConfig struct {
	SampleRate time.Duration `yaml:"sample_rate"` // Line period
	NoiseLevel float64       `yaml:"noise_level"` // Noise level (V)
	StepPeriod time.Duration `yaml:"step_period"` // Time between simulated foot strikes
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Transport: TransportConfig{
			Kind: TransportSerial,
			Serial: SerialConfig{
				Ports:       List{"COM6"}, // "/dev/ttyUSB0" or "/dev/ttyACM0" on Linux
				BaudRate:    115200,
				SettleDelay: 2 * time.Second,
				ReadTimeout: 200 * time.Millisecond,
			},
			Bluetooth: BluetoothConfig{
				Channel:     1,
				ReadTimeout: 200 * time.Millisecond,
			},
			RetryInterval: time.Second,
		},
		Sensors: SensorsConfig{
			Count: 7,
		},
		Filter: FilterConfig{
			LearnRate:               0.02,
			ContactMinVoltage:       0.35,
			MinActiveSensors:        2,
			NoiseThresholdVoltage:   0.15,
			NoiseTriggerCount:       80,
			BaselineOffsetTolerance: 0.02,
			OutlierFactor:           4.0,
			OutlierTriggerCount:     60,
			OutlierMinThreshold:     0.4,
		},
		Simulation: SimulationConfig{
			Allow:       false,
			WaitTimeout: time.Second,
		},
		HTTP: HTTPConfig{
			Listen: ":8000",
		},
		MQTT: MQTTConfig{
			Topic:    "insole/pressure",
			ClientID: "insoled",
		},
		Log: LogConfig{
			Level: "info",
		},
		Mock: MockConfig{
			SampleRate: 20 * time.Millisecond, // 50 lines per second
			NoiseLevel: 0.005,
			StepPeriod: 1200 * time.Millisecond,
		},
	}
}

// Load loads configuration from a YAML file. ${VAR} and ${VAR:-default}
// references are expanded from the environment before decoding. If the file
// doesn't exist or fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	data, err = envsubst.Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to expand config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate reports configuration errors that make startup impossible.
func (c *Config) Validate() error {
	var errs []error

	switch c.Transport.Kind {
	case TransportSerial:
		if len(c.Transport.Serial.Ports) == 0 {
			errs = append(errs, errors.New("transport.serial.ports: no serial port configured"))
		}
		if c.Transport.Serial.BaudRate <= 0 {
			errs = append(errs, fmt.Errorf("transport.serial.baud_rate: invalid value %d", c.Transport.Serial.BaudRate))
		}
	case TransportBluetooth:
		if strings.TrimSpace(c.Transport.Bluetooth.Address) == "" {
			errs = append(errs, errors.New("transport.bluetooth.address: required for bluetooth transport"))
		}
		if ch := c.Transport.Bluetooth.Channel; ch < 1 || ch > 30 {
			errs = append(errs, fmt.Errorf("transport.bluetooth.channel: %d out of range 1..30", ch))
		}
	case TransportMock:
	default:
		errs = append(errs, fmt.Errorf("transport.kind: unknown transport %q", c.Transport.Kind))
	}

	if c.Sensors.Count <= 0 {
		errs = append(errs, fmt.Errorf("sensors.count: must be positive, got %d", c.Sensors.Count))
	}
	if c.Filter.LearnRate < 0 || c.Filter.LearnRate > 1 {
		errs = append(errs, fmt.Errorf("filter.learn_rate: %g out of range 0..1", c.Filter.LearnRate))
	}
	if c.Filter.MinActiveSensors < 0 {
		errs = append(errs, fmt.Errorf("filter.min_active_sensors: must not be negative, got %d", c.Filter.MinActiveSensors))
	}
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"filter.contact_min_voltage", c.Filter.ContactMinVoltage},
		{"filter.noise_threshold_voltage", c.Filter.NoiseThresholdVoltage},
		{"filter.baseline_offset_tolerance", c.Filter.BaselineOffsetTolerance},
		{"filter.outlier_factor", c.Filter.OutlierFactor},
		{"filter.outlier_min_threshold", c.Filter.OutlierMinThreshold},
	} {
		if v.value < 0 {
			errs = append(errs, fmt.Errorf("%s: must not be negative, got %g", v.name, v.value))
		}
	}
	if c.Filter.NoiseTriggerCount <= 0 {
		errs = append(errs, fmt.Errorf("filter.noise_trigger_count: must be positive, got %d", c.Filter.NoiseTriggerCount))
	}
	if c.Filter.OutlierTriggerCount <= 0 {
		errs = append(errs, fmt.Errorf("filter.outlier_trigger_count: must be positive, got %d", c.Filter.OutlierTriggerCount))
	}
	if c.MQTT.Broker != "" && c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos: %d out of range 0..2", c.MQTT.QoS))
	}

	return errors.Join(errs...)
}

// ensureDefaults ensures that all required fields have default values if missing.
// Filter thresholds are not touched here: keys absent from the file keep their
// Default() value because Load decodes over it, and an explicit 0 is honoured.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Transport.Kind == "" {
		c.Transport.Kind = def.Transport.Kind
	}
	c.Transport.Kind = strings.ToLower(strings.TrimSpace(c.Transport.Kind))
	if c.Transport.RetryInterval == 0 {
		c.Transport.RetryInterval = def.Transport.RetryInterval
	}
	if c.Transport.Serial.BaudRate == 0 {
		c.Transport.Serial.BaudRate = def.Transport.Serial.BaudRate
	}
	if c.Transport.Serial.SettleDelay == 0 {
		c.Transport.Serial.SettleDelay = def.Transport.Serial.SettleDelay
	}
	if c.Transport.Serial.ReadTimeout == 0 {
		c.Transport.Serial.ReadTimeout = def.Transport.Serial.ReadTimeout
	}
	if c.Transport.Bluetooth.Channel == 0 {
		c.Transport.Bluetooth.Channel = def.Transport.Bluetooth.Channel
	}
	if c.Transport.Bluetooth.ReadTimeout == 0 {
		c.Transport.Bluetooth.ReadTimeout = def.Transport.Bluetooth.ReadTimeout
	}

	if c.Sensors.Count == 0 {
		c.Sensors.Count = def.Sensors.Count
	}

	if c.Simulation.WaitTimeout == 0 {
		c.Simulation.WaitTimeout = def.Simulation.WaitTimeout
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = def.HTTP.Listen
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = def.MQTT.Topic
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}

	if c.Mock.SampleRate == 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}
	if c.Mock.StepPeriod == 0 {
		c.Mock.StepPeriod = def.Mock.StepPeriod
	}
}
