// Package config loads the settings of an EIS run from defaults, an
// optional config file, EIS_* environment variables and command line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gotmc/eis"
	"github.com/gotmc/eis/lib/archive"
	"github.com/gotmc/eis/lib/connutil"
	"github.com/gotmc/eis/lib/hp4284a"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds everything a run needs.
type Config struct {
	Sweep      SweepConfig      `mapstructure:"sweep"`
	Procedure  ProcedureConfig  `mapstructure:"procedure"`
	Connection ConnectionConfig `mapstructure:"connection"`
	Meter      MeterConfig      `mapstructure:"meter"`
	Output     OutputConfig     `mapstructure:"output"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Control    ControlConfig    `mapstructure:"control"`
	LogLevel   string           `mapstructure:"log_level"`
}

// SweepConfig holds the user-entered sweep parameters.
type SweepConfig struct {
	Sample            string  `mapstructure:"sample"`
	StartHz           float64 `mapstructure:"start_hz"`
	EndHz             float64 `mapstructure:"end_hz"`
	PointsPerDecade   int     `mapstructure:"points_per_decade"`
	ACMillivolts      float64 `mapstructure:"ac_mv"`
	BiasVolts         float64 `mapstructure:"bias_v"`
	FractionalDecades bool    `mapstructure:"fractional_decades"`
}

// ProcedureConfig holds timing of the sweep loop.
type ProcedureConfig struct {
	Settle        time.Duration `mapstructure:"settle"`
	MaxRetries    uint64        `mapstructure:"max_retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// ConnectionConfig describes how the meter is reached.
type ConnectionConfig struct {
	Port        string        `mapstructure:"port"`
	Baud        int           `mapstructure:"baud"`
	PAD         int           `mapstructure:"pad"`
	SAD         int           `mapstructure:"sad"`
	WriteDelay  time.Duration `mapstructure:"write_delay"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	AR488       bool          `mapstructure:"ar488"`
	Clear       bool          `mapstructure:"clear"`
	Debug       bool          `mapstructure:"debug"`
}

// MeterConfig holds optional meter settings.
type MeterConfig struct {
	TriggerDelay    float64 `mapstructure:"trigger_delay"`
	OpenCorrection  bool    `mapstructure:"open_correction"`
	ShortCorrection bool    `mapstructure:"short_correction"`
	ALC             bool    `mapstructure:"alc"`
	DCIsolation     bool    `mapstructure:"dc_isolation"`
	HighPower       bool    `mapstructure:"high_power"`
}

// OutputConfig selects where results go.
type OutputConfig struct {
	Dir    string `mapstructure:"dir"`
	Prefix string `mapstructure:"prefix"`
	Title  string `mapstructure:"title"`
	Plot   bool   `mapstructure:"plot"`
}

// ArchiveConfig enables the upload of finished runs. Archiving is off while
// Endpoint is empty.
type ArchiveConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	Secure    bool   `mapstructure:"secure"`
}

// ControlConfig enables the HTTP control surface. It is off while Addr is
// empty.
type ControlConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

var defaults = map[string]any{
	"sweep.sample":             "",
	"sweep.start_hz":           100000.0,
	"sweep.end_hz":             20.0,
	"sweep.points_per_decade":  10,
	"sweep.ac_mv":              10.0,
	"sweep.bias_v":             0.0,
	"sweep.fractional_decades": false,
	"procedure.settle":         eis.DefaultSettleDelay,
	"procedure.max_retries":    eis.DefaultRetryPolicy.MaxRetries,
	"procedure.retry_interval": eis.DefaultRetryPolicy.Interval,
	"connection.port":          "",
	"connection.baud":          115200,
	"connection.pad":           17,
	"connection.sad":           connutil.NoSecondaryAddress,
	"connection.write_delay":   0 * time.Millisecond,
	"connection.read_timeout":  30 * time.Second,
	"connection.ar488":         false,
	"connection.clear":         false,
	"connection.debug":         false,
	"meter.trigger_delay":      0.0,
	"meter.open_correction":    false,
	"meter.short_correction":   false,
	"meter.alc":                false,
	"meter.dc_isolation":       false,
	"meter.high_power":         false,
	"output.dir":               ".",
	"output.prefix":            "{Sample ID}_",
	"output.title":             "Electrochemical Impedance Spectroscopy -- Sample {Sample ID}",
	"output.plot":              true,
	"archive.endpoint":         "",
	"archive.bucket":           "eis-data",
	"archive.prefix":           "",
	"archive.access_key":       "",
	"archive.secret_key":       "",
	"archive.region":           "us-east-1",
	"archive.secure":           true,
	"control.addr":             "",
	"control.allowed_origins":  []string{"http://localhost:5173"},
	"log_level":                "info",
}

// flags maps command line flags to config keys.
var flags = []struct {
	name, key, usage string
}{
	{"sample", "sweep.sample", "sample ID"},
	{"start", "sweep.start_hz", "starting frequency in Hz"},
	{"end", "sweep.end_hz", "ending frequency in Hz"},
	{"ppd", "sweep.points_per_decade", "points per decade"},
	{"ac", "sweep.ac_mv", "AC voltage rms in mV"},
	{"bias", "sweep.bias_v", "DC bias (OCV) in V"},
	{"fractional", "sweep.fractional_decades", "count points over the exact, fractional number of decades"},
	{"settle", "procedure.settle", "settle delay after each point"},
	{"retries", "procedure.max_retries", "retries of a timed out measurement before failing"},
	{"port", "connection.port", "serial port for the Prologix VCP GPIB controller (auto-detected when empty)"},
	{"pad", "connection.pad", "GPIB primary address of the LCR meter"},
	{"sad", "connection.sad", "GPIB secondary address of the LCR meter (255 for none)"},
	{"delay", "connection.write_delay", "delay between writes"},
	{"timeout", "connection.read_timeout", "serial read timeout"},
	{"ar488", "connection.ar488", "the controller is an AR488"},
	{"debug", "connection.debug", "log instrument traffic"},
	{"dir", "output.dir", "directory for data files"},
	{"plot", "output.plot", "write a Nyquist plot next to the data file"},
	{"listen", "control.addr", "address of the HTTP control surface (disabled when empty)"},
	{"log-level", "log_level", "log level"},
}

// Load reads the configuration for the given command line arguments.
func Load(args []string) (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	fs := pflag.NewFlagSet("eis", pflag.ContinueOnError)
	configFile := fs.String("config", "", "config file (yaml, toml, json or env)")
	for _, f := range flags {
		if err := addFlag(fs, f.name, defaults[f.key], f.usage); err != nil {
			return nil, err
		}
		if err := v.BindPFlag(f.key, fs.Lookup(f.name)); err != nil {
			return nil, err
		}
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v.SetEnvPrefix("EIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", *configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Sweep.Sample == "" {
		return nil, errors.New("a sample ID is required (--sample or EIS_SWEEP_SAMPLE)")
	}
	return &cfg, nil
}

func addFlag(fs *pflag.FlagSet, name string, def any, usage string) error {
	switch d := def.(type) {
	case string:
		fs.String(name, d, usage)
	case float64:
		fs.Float64(name, d, usage)
	case int:
		fs.Int(name, d, usage)
	case uint64:
		fs.Uint64(name, d, usage)
	case bool:
		fs.Bool(name, d, usage)
	case time.Duration:
		fs.Duration(name, d, usage)
	default:
		return fmt.Errorf("flag %s: unsupported default %T", name, def)
	}
	return nil
}

// Run returns the core sweep configuration.
func (c *Config) Run() eis.SweepConfig {
	policy := eis.TruncateDecades
	if c.Sweep.FractionalDecades {
		policy = eis.FractionalDecades
	}
	return eis.SweepConfig{
		SampleID:              c.Sweep.Sample,
		StartFrequency:        c.Sweep.StartHz,
		EndFrequency:          c.Sweep.EndHz,
		PointsPerDecade:       c.Sweep.PointsPerDecade,
		ACAmplitudeMillivolts: c.Sweep.ACMillivolts,
		DCBias:                c.Sweep.BiasVolts,
		DecadePolicy:          policy,
	}
}

// RetryPolicy returns the measurement retry policy.
func (c *Config) RetryPolicy() eis.RetryPolicy {
	return eis.RetryPolicy{MaxRetries: c.Procedure.MaxRetries, Interval: c.Procedure.RetryInterval}
}

// Conn returns the serial/GPIB connection settings.
func (c *Config) Conn() *connutil.Conn {
	cc := c.Connection
	return &connutil.Conn{
		SerialPort:  cc.Port,
		BaudRate:    cc.Baud,
		GpibPAD:     cc.PAD,
		GpibSAD:     cc.SAD,
		Delay:       cc.WriteDelay,
		ReadTimeout: cc.ReadTimeout,
		AR488:       cc.AR488,
		Clear:       cc.Clear,
	}
}

// MeterSettings returns the optional meter settings.
func (c *Config) MeterSettings() hp4284a.Settings {
	return hp4284a.Settings(c.Meter)
}

// ArchiveSettings returns the upload settings and whether archiving is on.
func (c *Config) ArchiveSettings() (archive.Config, bool) {
	a := c.Archive
	return archive.Config{
		Endpoint:  a.Endpoint,
		Bucket:    a.Bucket,
		Prefix:    a.Prefix,
		AccessKey: a.AccessKey,
		SecretKey: a.SecretKey,
		Region:    a.Region,
		Secure:    a.Secure,
	}, a.Endpoint != ""
}
