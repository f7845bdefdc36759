package discharge

import (
	"errors"
	"fmt"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
)

// configKey is the section of the device config the run settings are read from.
const configKey = "discharge"

// Settings for this rig. Edit these, or set them in the discharge section of
// the config file, before starting a run.
const (
	defaultEndVoltage       = 5.8              // 2S pack, 2.9V a cell
	defaultSampleInterval   = 15 * time.Second // realised interval is longer due to read time
	defaultSamplesPerRecord = 8

	// A bare number in the config decodes as nanoseconds.
	minSampleInterval = time.Second
)

// RunConfig is fixed for the whole run.
type RunConfig struct {
	// Run stops when the averaged voltage is at or below this.
	EndVoltage float64 `mapstructure:"end-voltage" yaml:"end-voltage"`
	// Nominal time between log records. Raw samples are taken
	// SampleInterval/SamplesPerRecord apart.
	SampleInterval time.Duration `mapstructure:"sample-interval" yaml:"sample-interval"`
	// Raw samples averaged into one log record. 1 logs every sample.
	SamplesPerRecord int `mapstructure:"samples-per-record" yaml:"samples-per-record"`
}

func DefaultRunConfig() RunConfig {
	return RunConfig{
		EndVoltage:       defaultEndVoltage,
		SampleInterval:   defaultSampleInterval,
		SamplesPerRecord: defaultSamplesPerRecord,
	}
}

func (c RunConfig) Validate() error {
	var errs []error
	if c.EndVoltage <= 0 {
		errs = append(errs, fmt.Errorf("end voltage must be positive, got %v", c.EndVoltage))
	}
	if c.SampleInterval < minSampleInterval {
		errs = append(errs, fmt.Errorf("sample interval must be at least %s, got %s (use a unit, e.g. \"15s\")",
			minSampleInterval, c.SampleInterval))
	}
	if c.SamplesPerRecord < 1 {
		errs = append(errs, fmt.Errorf("samples per record must be at least 1, got %d", c.SamplesPerRecord))
	}
	return errors.Join(errs...)
}

// sampleSpacing is the sleep before each raw sample.
func (c RunConfig) sampleSpacing() time.Duration {
	return c.SampleInterval / time.Duration(c.SamplesPerRecord)
}

// ParseConfig returns the default run config, overridden by the discharge
// section of the config in configDir when configDir is set.
func ParseConfig(configDir string) (RunConfig, error) {
	c := DefaultRunConfig()
	if configDir != "" {
		conf, err := goconfig.New(configDir)
		if err != nil {
			return RunConfig{}, err
		}
		if err := conf.Unmarshal(configKey, &c); err != nil {
			return RunConfig{}, fmt.Errorf("failed to read %s config: %w", configKey, err)
		}
	}
	return c, c.Validate()
}
