package telemetry

import "codeberg.org/mutker/camvitals/internal/errors"

const defaultNamespace = "camvitals"

type Config struct {
	Enabled bool `mapstructure:"enabled"`
	// Addr is the listen address for the /metrics endpoint. Empty keeps
	// metrics in-process only.
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

func DefaultConfig() Config {
	return Config{
		Namespace: defaultNamespace,
	}
}

func (c Config) Validate() error {
	if c.Enabled && c.Namespace == "" {
		return errors.New().WithMessage(ErrInvalidConfig, "telemetry: namespace must not be empty")
	}

	return nil
}
