package config

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rustyeddy/fvg/market"
	"gopkg.in/yaml.v3"
)

// Config represents a complete scan configuration
type Config struct {
	Data     DataConfig     `json:"data" yaml:"data"`
	Provider ProviderConfig `json:"provider" yaml:"provider"`
	Scan     ScanConfig     `json:"scan" yaml:"scan"`
	Output   OutputConfig   `json:"output" yaml:"output"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// DataConfig says where bars come from
type DataConfig struct {
	Source string `json:"source" yaml:"source"` // yahoo, oanda, dukascopy or csv
	Ticker string `json:"ticker" yaml:"ticker"`
	Start  string `json:"start,omitempty" yaml:"start,omitempty"` // YYYY-MM-DD
	End    string `json:"end,omitempty" yaml:"end,omitempty"`     // YYYY-MM-DD
	CSV    string `json:"csv,omitempty" yaml:"csv,omitempty"`
}

// ProviderConfig tunes the market data download
type ProviderConfig struct {
	BaseURL      string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Interval     string `json:"interval" yaml:"interval"`
	Retries      int    `json:"retries" yaml:"retries"`
	Pause        string `json:"pause" yaml:"pause"` // e.g. "1s"
	ChunkDays    int    `json:"chunk_days" yaml:"chunk_days"`
	LookbackDays int    `json:"lookback_days" yaml:"lookback_days"`
	Timeout      string `json:"timeout" yaml:"timeout"`

	Workers  int    `json:"workers,omitempty" yaml:"workers,omitempty"`     // dukascopy parallel downloads
	CacheDir string `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty"` // dukascopy raw file cache
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`         // oanda; falls back to $OANDA_TOKEN
	Practice bool   `json:"practice,omitempty" yaml:"practice,omitempty"`   // oanda practice environment
}

// ScanConfig selects the timeframes and chart data settings
type ScanConfig struct {
	Timeframes    []string `json:"timeframes" yaml:"timeframes"`
	HistogramBins int      `json:"histogram_bins" yaml:"histogram_bins"`
}

// OutputConfig contains persistence parameters
type OutputConfig struct {
	Dir     string   `json:"dir" yaml:"dir"`
	Formats []string `json:"formats" yaml:"formats"` // csv, json, parquet, sqlite
	DBPath  string   `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// LogConfig contains logging parameters
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

const dateLayout = "2006-01-02"

var (
	sources   = []string{"yahoo", "csv", "oanda", "dukascopy"}
	formats   = []string{"csv", "json", "parquet", "sqlite"}
	logLevels = []string{"trace", "debug", "info", "warn", "error"}
)

// LoadFromFile loads configuration from a file (JSON or YAML)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (YAML for .yaml/.yml, JSON otherwise)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !slices.Contains(sources, c.Data.Source) {
		return fmt.Errorf("data.source must be one of %s", strings.Join(sources, ", "))
	}
	if c.Data.Ticker == "" {
		return fmt.Errorf("data.ticker is required")
	}
	switch c.Data.Source {
	case "csv":
		if c.Data.CSV == "" {
			return fmt.Errorf("data.csv required for csv source")
		}
	default:
		start, err := time.Parse(dateLayout, c.Data.Start)
		if err != nil {
			return fmt.Errorf("data.start must be YYYY-MM-DD: %w", err)
		}
		end, err := time.Parse(dateLayout, c.Data.End)
		if err != nil {
			return fmt.Errorf("data.end must be YYYY-MM-DD: %w", err)
		}
		if !start.Before(end) {
			return fmt.Errorf("data.start must be before data.end")
		}
	}

	if c.Provider.Retries < 1 {
		return fmt.Errorf("provider.retries must be at least 1")
	}
	if c.Provider.ChunkDays < 1 {
		return fmt.Errorf("provider.chunk_days must be positive")
	}
	if c.Provider.Workers < 0 {
		return fmt.Errorf("provider.workers must not be negative")
	}
	if c.Provider.LookbackDays < 0 {
		return fmt.Errorf("provider.lookback_days must not be negative")
	}
	for name, s := range map[string]string{"provider.pause": c.Provider.Pause, "provider.timeout": c.Provider.Timeout} {
		if _, err := parseDuration(s); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if len(c.Scan.Timeframes) == 0 {
		return fmt.Errorf("scan.timeframes must not be empty")
	}
	for _, tf := range c.Scan.Timeframes {
		if !market.Timeframe(tf).Supported() {
			return fmt.Errorf("unsupported timeframe: %s", tf)
		}
	}
	if c.Scan.HistogramBins < 1 {
		return fmt.Errorf("scan.histogram_bins must be positive")
	}

	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	if len(c.Output.Formats) == 0 {
		return fmt.Errorf("output.formats must not be empty")
	}
	for _, f := range c.Output.Formats {
		if !slices.Contains(formats, f) {
			return fmt.Errorf("output.formats: unknown format %q", f)
		}
	}
	if slices.Contains(c.Output.Formats, "sqlite") && c.Output.DBPath == "" {
		return fmt.Errorf("output.db_path required for sqlite format")
	}

	if !slices.Contains(logLevels, c.Log.Level) {
		return fmt.Errorf("log.level must be one of %s", strings.Join(logLevels, ", "))
	}
	return nil
}

// StartTime and EndTime parse the data range; both are UTC midnight.
func (c *Config) StartTime() (time.Time, error) { return time.Parse(dateLayout, c.Data.Start) }
func (c *Config) EndTime() (time.Time, error)   { return time.Parse(dateLayout, c.Data.End) }

// PauseDuration returns provider.pause, zero when unset.
func (c *Config) PauseDuration() time.Duration {
	d, _ := parseDuration(c.Provider.Pause)
	return d
}

// TimeoutDuration returns provider.timeout, zero when unset.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := parseDuration(c.Provider.Timeout)
	return d
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Source: "yahoo",
			Ticker: "AAPL",
			Start:  time.Now().UTC().AddDate(0, 0, -7).Format(dateLayout),
			End:    time.Now().UTC().Format(dateLayout),
		},
		Provider: ProviderConfig{
			Interval:     "1m",
			Retries:      3,
			Pause:        "1s",
			ChunkDays:    7,
			LookbackDays: 30,
			Timeout:      "30s",
		},
		Scan: ScanConfig{
			Timeframes:    []string{"1D", "1h", "15min"},
			HistogramBins: 30,
		},
		Output: OutputConfig{
			Dir:     "fvgs_output",
			Formats: []string{"csv", "json"},
			DBPath:  "fvgs_output/fvg.sqlite",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative: %s", s)
	}
	return d, nil
}
