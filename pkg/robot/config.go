package robot

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultConfigFile = "doosan.yaml"

// Environment variables that override the config file.
const (
	EnvHost     = "DOOSAN_HOST"
	EnvPort     = "DOOSAN_PORT"
	EnvLogLevel = "DOOSAN_LOG_LEVEL"
)

// Config holds the persisted cell configuration
type Config struct {
	Host     string           `json:"host" yaml:"host"`
	Port     int              `json:"port" yaml:"port"`
	LogLevel string           `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	Motion   MotionParameters `json:"motion" yaml:"motion"`
	Lamp     LampConfig       `json:"lamp" yaml:"lamp"`
	IO       IOConfig         `json:"io" yaml:"io"`
	Timing   TimingConfig     `json:"timing" yaml:"timing"`

	// CoordinatesFile optionally points at a flat p_/pj_ coordinates file
	// merged over the inline waypoints at load time.
	CoordinatesFile string    `json:"coordinates_file,omitempty" yaml:"coordinates_file,omitempty"`
	Waypoints       Waypoints `json:"waypoints" yaml:"waypoints"`
}

// LampConfig holds the digital outputs driving the stack light
type LampConfig struct {
	Ready  int `json:"ready" yaml:"ready"`
	Moving int `json:"moving" yaml:"moving"`
}

// IOConfig maps cell signals to controller I/O indices (1-based)
type IOConfig struct {
	SafetyInput         int   `json:"safety_input" yaml:"safety_input"`
	ConfirmInputs       []int `json:"confirm_inputs" yaml:"confirm_inputs"`
	GripperOutput       int   `json:"gripper_output" yaml:"gripper_output"`
	SuctionOutput       int   `json:"suction_output" yaml:"suction_output"`
	BufferInput         int   `json:"buffer_input" yaml:"buffer_input"`
	BufferRequestOutput int   `json:"buffer_request_output" yaml:"buffer_request_output"`
	DigitalOutputs      int   `json:"digital_outputs" yaml:"digital_outputs"`
	DigitalInputs       int   `json:"digital_inputs" yaml:"digital_inputs"`
}

// TimingConfig holds gateway and sequence timing
type TimingConfig struct {
	DialTimeout  Duration `json:"dial_timeout" yaml:"dial_timeout"`
	IOTimeout    Duration `json:"io_timeout" yaml:"io_timeout"`
	PollInterval Duration `json:"poll_interval" yaml:"poll_interval"`
	WaitPoll     Duration `json:"wait_poll" yaml:"wait_poll"`
	WaitTimeout  Duration `json:"wait_timeout" yaml:"wait_timeout"`
	ConfirmPoll  Duration `json:"confirm_poll" yaml:"confirm_poll"`
}

// DefaultConfig returns the factory configuration of the cell.
func DefaultConfig() *Config {
	return &Config{
		Host: "192.168.137.50",
		Port: 56666,
		Motion: MotionParameters{
			OperationSpeed: 50,
			Velocity:       500,
			Acceleration:   300,
		},
		Lamp: LampConfig{Ready: 1, Moving: 2},
		IO: IOConfig{
			SafetyInput:         2,
			ConfirmInputs:       []int{1, 4},
			GripperOutput:       1,
			SuctionOutput:       2,
			BufferInput:         16,
			BufferRequestOutput: 16,
			DigitalOutputs:      16,
			DigitalInputs:       16,
		},
		Timing: TimingConfig{
			DialTimeout:  Duration(5 * time.Second),
			IOTimeout:    Duration(5 * time.Second),
			PollInterval: Duration(200 * time.Millisecond),
			WaitPoll:     Duration(100 * time.Millisecond),
			WaitTimeout:  Duration(60 * time.Second),
			ConfirmPoll:  Duration(100 * time.Millisecond),
		},
		Waypoints: Waypoints{
			Poses: map[string]Pose{
				"home": {-66, 850, 300, 3.14, 179.99, 163.55},
			},
			Joints: map[string]JointAngles{},
		},
	}
}

// Addr returns host:port of the gateway.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file. A missing file
// yields DefaultConfig. Environment overrides are applied last.
func LoadConfigFrom(path string) (*Config, error) {
	cfg, err := ReadConfigFile(path)
	if err != nil {
		return nil, err
	}

	if cfg.CoordinatesFile != "" {
		wp, err := LoadWaypoints(cfg.CoordinatesFile)
		if err != nil {
			return nil, err
		}
		cfg.Waypoints.Merge(wp)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadConfigFile decodes path over the defaults without merging
// coordinates or applying the environment.
func ReadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, err
	default:
		if isYAML(path) {
			err = yaml.Unmarshal(data, cfg)
		} else {
			err = json.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return cfg, nil
}

// ApplyEnv overrides connection settings from the environment and an optional .env file.
func (c *Config) ApplyEnv() error {
	_ = godotenv.Load()

	if host := os.Getenv(EnvHost); host != "" {
		c.Host = host
	}
	if portStr := os.Getenv(EnvPort); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid %s %q", EnvPort, portStr)
		}
		c.Port = port
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.LogLevel = level
	}
	return nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}

// ParameterStore persists motion parameters after every operator change.
type ParameterStore interface {
	SaveParameters(MotionParameters) error
}

// FileStore is a ParameterStore that rewrites the config file.
type FileStore struct {
	mu   sync.Mutex
	path string
	cfg  *Config
}

// NewFileStore returns a store writing cfg to path.
func NewFileStore(path string, cfg *Config) *FileStore {
	return &FileStore{path: path, cfg: cfg}
}

// SaveParameters updates the motion section and rewrites the file. Only the
// motion section changes on disk; merged coordinates and environment
// overrides stay out of the file.
func (s *FileStore) SaveParameters(p MotionParameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	onDisk, err := ReadConfigFile(s.path)
	if err != nil {
		return err
	}
	onDisk.Motion = p
	if err := onDisk.SaveTo(s.path); err != nil {
		return err
	}
	if s.cfg != nil {
		s.cfg.Motion = p
	}
	return nil
}

// Duration is a time.Duration that (un)marshals as a string like "200ms".
type Duration time.Duration

// D returns the standard library duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	v, err := time.ParseDuration(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}
