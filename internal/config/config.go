package config

import (
	"os"
	"strings"

	"codeberg.org/mutker/camvitals/internal/errors"
	"codeberg.org/mutker/camvitals/internal/history"
	"codeberg.org/mutker/camvitals/internal/pipeline"
	"codeberg.org/mutker/camvitals/internal/simulate"
	"codeberg.org/mutker/camvitals/internal/telemetry"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel  = LogLevelInfo
	defaultEnvPrefix = "CAMVITALS"
	defaultFPS       = 30.0
	configName       = "camvitals"
)

// SimulateConfig selects and describes the synthetic frame source.
type SimulateConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	simulate.Config `mapstructure:",squash"`
}

type Config struct {
	LogLevel string  `mapstructure:"log_level"`
	FPS      float64 `mapstructure:"fps"`
	Frames   string  `mapstructure:"frames"`
	Manifest string  `mapstructure:"manifest"`

	Pipeline  pipeline.Config  `mapstructure:",squash"`
	Simulate  SimulateConfig   `mapstructure:"simulate"`
	History   history.Config   `mapstructure:"history"`
	Telemetry telemetry.Config `mapstructure:"telemetry"`
}

// Default returns the configuration used when no file, env or flag sets a
// value.
func Default() *Config {
	return &Config{
		LogLevel:  string(DefaultLogLevel),
		FPS:       defaultFPS,
		Pipeline:  pipeline.DefaultConfig(),
		Simulate:  SimulateConfig{Config: simulate.DefaultConfig()},
		History:   history.DefaultConfig(),
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Load layers the TOML config file, CAMVITALS_* environment variables and
// command line flags (highest precedence) over the defaults.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: defaultEnvPrefix}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := Default()
	flags := newFlagSet(cfg)
	if err := flags.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}

	path := o.configPath
	if f := flags.Lookup("config"); f != nil && f.Changed {
		path = f.Value.String()
	}
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}
	if err := readConfigFile(v, path); err != nil {
		return nil, err
	}

	if flags.Changed("no-jitter") {
		v.Set("heart_rate.jitter", false)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	cfg.Simulate.FPS = cfg.FPS
	if cfg.Telemetry.Addr != "" {
		cfg.Telemetry.Enabled = true
	}
	if cfg.Frames == "" {
		cfg.Simulate.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newFlagSet(d *Config) *pflag.FlagSet {
	flags := pflag.NewFlagSet(configName, pflag.ContinueOnError)

	flags.String("config", "", "Path to the TOML configuration file")
	flags.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")
	flags.Bool("simulate", d.Simulate.Enabled, "Drive the pipeline from synthetic video")
	flags.String("frames", d.Frames, "Directory of PNG/JPEG frames to process in lexical order")
	flags.String("manifest", d.Manifest, "YAML face detection manifest for --frames")
	flags.Duration("duration", d.Simulate.Duration, "Length of the simulated recording")
	flags.Float64("fps", d.FPS, "Frame rate of the input")
	flags.Float64("sim-bpm", d.Simulate.HeartRate, "Heart rate of the simulated pulse")
	flags.String("history-db", d.History.DBPath, "Path to the session history database")
	flags.Bool("history", d.History.Enabled, "Persist session reports and readings")
	flags.String("metrics-addr", d.Telemetry.Addr, "Serve Prometheus metrics on this address")
	flags.Bool("no-jitter", false, "Disable cosmetic heart-rate jitter")

	return flags
}

var flagKeys = map[string]string{
	"log-level":    "log_level",
	"simulate":     "simulate.enabled",
	"frames":       "frames",
	"manifest":     "manifest",
	"duration":     "simulate.duration",
	"fps":          "fps",
	"sim-bpm":      "simulate.heart_rate",
	"history-db":   "history.db_path",
	"history":      "history.enabled",
	"metrics-addr": "telemetry.addr",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return errors.New().WithData(errors.ErrBindFlags, struct {
				Flag  string
				Error string
			}{name, err.Error()})
		}
	}

	return nil
}

// readConfigFile reads path, or searches the working directory and
// /etc/camvitals when path is empty. Only an explicit path must exist.
func readConfigFile(v *viper.Viper, path string) error {
	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/" + configName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return errors.New().Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

// Validate checks the composed configuration.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.FPS <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "fps must be positive")
	}
	if c.Simulate.Enabled && c.Frames != "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "--simulate and --frames are mutually exclusive")
	}
	if c.Frames != "" && c.Manifest == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "--frames requires --manifest")
	}
	if c.Simulate.Enabled {
		if err := c.Simulate.Validate(); err != nil {
			return err
		}
	}

	for _, validate := range []func() error{
		c.Pipeline.Validate,
		c.History.Validate,
		c.Telemetry.Validate,
	} {
		if err := validate(); err != nil {
			return err
		}
	}

	return nil
}

// Mode reports the configured frame source.
func (c *Config) Mode() Mode {
	if c.Frames != "" {
		return ModeFrames
	}

	return ModeSimulate
}
