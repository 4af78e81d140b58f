package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for one evaluation run
type Config struct {
	AddressFile    string      `yaml:"address_file"`
	BinaryPrefix   string      `yaml:"binary_prefix"`
	SessionName    string      `yaml:"session_name"`
	ProcessName    string      `yaml:"process_name"`
	MulticastGroup string      `yaml:"multicast_group"`
	SettleSeconds  int         `yaml:"settle_seconds"`
	WindowSeconds  int         `yaml:"window_seconds"`
	ResultsPath    string      `yaml:"results_path"`
	MQTTBroker     string      `yaml:"mqtt_broker"`
	Calibration    Calibration `yaml:"calibration"`
}

// Calibration holds the load-search parameters. The start point, cap, floor
// and measurement window are contracts with the client binary (it runs for a
// fixed duration and self-terminates), so they are configuration rather than
// constants.
type Calibration struct {
	StartClients int `yaml:"start_clients"`
	StartStep    int `yaml:"start_step"`
	MaxClients   int `yaml:"max_clients"`
	MinClients   int `yaml:"min_clients"`
	Iterations   int `yaml:"iterations"`
	FaultStart   int `yaml:"fault_start"`
	FaultEnd     int `yaml:"fault_end"`
	FaultStep    int `yaml:"fault_step"`
}

// Default returns the configuration used when no file overrides it
func Default() *Config {
	return &Config{
		AddressFile:    "addresses.txt",
		BinaryPrefix:   "neo100",
		SessionName:    "neo",
		ProcessName:    "neo",
		MulticastGroup: "239.255.1.1",
		SettleSeconds:  1,
		WindowSeconds:  10,
		ResultsPath:    "results.db",
		Calibration: Calibration{
			StartClients: 90,
			StartStep:    10,
			MaxClients:   100,
			MinClients:   1,
			Iterations:   10,
			FaultStart:   1,
			FaultEnd:     33,
			FaultStep:    4,
		},
	}
}

// ParseConfig reads a YAML file over the defaults
func ParseConfig(cfgPath string) (*Config, error) {
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return &Config{}, err
	}
	cfg := Default()
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return &Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return &Config{}, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.WindowSeconds <= 0 {
		return fmt.Errorf("window_seconds must be positive, got %d", c.WindowSeconds)
	}
	cal := c.Calibration
	if cal.MinClients < 1 || cal.MaxClients < cal.MinClients {
		return fmt.Errorf("invalid client bounds [%d, %d]", cal.MinClients, cal.MaxClients)
	}
	if cal.FaultStep <= 0 {
		return fmt.Errorf("fault_step must be positive, got %d", cal.FaultStep)
	}
	return nil
}

// Faults returns the fault-tolerance progression for a sweep
func (c Calibration) Faults() []int {
	faults := make([]int, 0)
	for f := c.FaultStart; f <= c.FaultEnd; f += c.FaultStep {
		faults = append(faults, f)
	}
	return faults
}
