package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Envelope is a geographic bounding box in WGS84 degrees.
type Envelope struct {
	MinLon float64 `yaml:"min_lon"`
	MinLat float64 `yaml:"min_lat"`
	MaxLon float64 `yaml:"max_lon"`
	MaxLat float64 `yaml:"max_lat"`
}

// Contains reports whether the coordinate lies within the envelope,
// boundaries inclusive.
func (e Envelope) Contains(lon, lat float64) bool {
	return lon >= e.MinLon && lon <= e.MaxLon && lat >= e.MinLat && lat <= e.MaxLat
}

// HungaryEnvelope is the plausibility envelope for transformed coordinates.
// Reference points near the border legitimately fall slightly outside the
// country, so the box is generous.
func HungaryEnvelope() Envelope {
	return Envelope{MinLon: 15, MinLat: 45, MaxLon: 24, MaxLat: 49}
}

// Encoding names for the source files. The exchange format ships either as
// UTF-8 with a BOM or as ISO 8859-2; the encoding is declared up front,
// never guessed per row.
const (
	EncodingUTF8   = "utf8"
	EncodingLatin2 = "latin2"
)

// Config holds the global configuration for the import and serve commands
type Config struct {
	// Input settings
	DataDir  string `yaml:"-"`
	Encoding string `yaml:"encoding"`

	// Output settings
	StorePath string `yaml:"-"`
	Force     bool   `yaml:"-"` // rebuild even when the store already exists

	// Parsing settings
	Strict bool `yaml:"strict"` // malformed rows abort the run instead of being skipped

	// Plausibility envelope for transformed coordinates
	Envelope Envelope `yaml:"envelope"`

	// Serve settings
	ListenAddr string `yaml:"listen_addr"`

	// Logging and metrics
	Verbose         bool          `yaml:"verbose"`
	LogFile         string        `yaml:"log_file"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Encoding:        EncodingUTF8,
		Strict:          false,
		Envelope:        HungaryEnvelope(),
		ListenAddr:      ":8000",
		MetricsInterval: 30 * time.Second,
	}
}

// LoadFile overlays settings from a YAML file onto the config. Flags bound
// after the overlay still win.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Encoding != EncodingUTF8 && c.Encoding != EncodingLatin2 {
		return fmt.Errorf("unsupported encoding %q (supported: %s, %s)", c.Encoding, EncodingUTF8, EncodingLatin2)
	}
	if c.Envelope.MinLon > c.Envelope.MaxLon {
		return fmt.Errorf("envelope min_lon (%f) must be <= max_lon (%f)", c.Envelope.MinLon, c.Envelope.MaxLon)
	}
	if c.Envelope.MinLat > c.Envelope.MaxLat {
		return fmt.Errorf("envelope min_lat (%f) must be <= max_lat (%f)", c.Envelope.MinLat, c.Envelope.MaxLat)
	}
	return nil
}
