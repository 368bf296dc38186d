package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"neocore/logging"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "NEOCORE_"

// Config is the host configuration. Sources apply in order: defaults, the
// YAML file, NEOCORE_* environment variables, then command line flags.
type Config struct {
	FixedHz           int    `yaml:"fixed_hz" json:"fixed_hz,omitempty" env:"FIXED_HZ" jsonschema:"minimum=1,description=Fixed update rate in hertz"`
	MaxCatchupSteps   int    `yaml:"max_catchup_steps" json:"max_catchup_steps,omitempty" env:"MAX_CATCHUP_STEPS" jsonschema:"minimum=1"`
	TargetFPS         int    `yaml:"target_fps" json:"target_fps,omitempty" env:"TARGET_FPS" jsonschema:"description=Platform loop pacing; 0 runs unpaced"`
	FrameBudgetMillis int    `yaml:"frame_budget_ms" json:"frame_budget_ms,omitempty" env:"FRAME_BUDGET_MS"`
	TimerBudget       int    `yaml:"timer_budget" json:"timer_budget,omitempty" env:"TIMER_BUDGET"`
	BusCapacity       int    `yaml:"bus_capacity" json:"bus_capacity,omitempty" env:"BUS_CAPACITY"`
	MaxFrames         uint64 `yaml:"max_frames" json:"max_frames,omitempty" env:"MAX_FRAMES" jsonschema:"description=Stop after this many frames; 0 runs until quit"`

	PluginDir      string `yaml:"plugin_dir" json:"plugin_dir,omitempty" env:"PLUGIN_DIR" jsonschema:"description=Defaults to plugins next to the executable"`
	DisablePlugins bool   `yaml:"disable_plugins" json:"disable_plugins,omitempty" env:"DISABLE_PLUGINS"`

	ConsoleAddr     string `yaml:"console_addr" json:"console_addr,omitempty" env:"CONSOLE_ADDR" jsonschema:"description=Listen address of the websocket console; empty disables it"`
	ConsolePerFrame int    `yaml:"console_per_frame" json:"console_per_frame,omitempty" env:"CONSOLE_PER_FRAME"`

	Logging LoggingConfig `yaml:"logging" json:"logging,omitempty" envPrefix:"LOG_"`

	// Modules holds per-module settings keyed by module id.
	Modules map[string]yaml.Node `yaml:"modules" json:"-"`
}

type LoggingConfig struct {
	Level          string   `yaml:"level" json:"level,omitempty" env:"LEVEL" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Sinks          []string `yaml:"sinks" json:"sinks,omitempty" env:"SINKS" envSeparator:","`
	JSONPath       string   `yaml:"json_path" json:"json_path,omitempty" env:"JSON_PATH"`
	BufferSize     int      `yaml:"buffer_size" json:"buffer_size,omitempty" env:"BUFFER_SIZE"`
	ZapDevelopment bool     `yaml:"zap_development" json:"zap_development,omitempty" env:"ZAP_DEVELOPMENT"`
}

func DefaultConfig() Config {
	return Config{
		FixedHz:         60,
		MaxCatchupSteps: 8,
		TargetFPS:       60,
		ConsolePerFrame: 8,
		Logging: LoggingConfig{
			Level:      "info",
			Sinks:      []string{"console"},
			BufferSize: 512,
		},
	}
}

// LoadConfig reads path over the defaults, then applies the environment.
// A missing path is not an error; the defaults stand.
func LoadConfig(path string, environ map[string]string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := readConfigFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

func readConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %q: %w", path, err)
	}
	return nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.FixedHz <= 0 {
		errs = append(errs, fmt.Errorf("fixed_hz must be positive, got %d", c.FixedHz))
	}
	if c.MaxCatchupSteps <= 0 {
		errs = append(errs, fmt.Errorf("max_catchup_steps must be positive, got %d", c.MaxCatchupSteps))
	}
	if c.TargetFPS < 0 {
		errs = append(errs, fmt.Errorf("target_fps must not be negative, got %d", c.TargetFPS))
	}
	if _, ok := logging.ParseSeverity(c.Logging.Level); !ok {
		errs = append(errs, fmt.Errorf("unknown logging level %q", c.Logging.Level))
	}
	for _, sink := range c.Logging.Sinks {
		switch sink {
		case "console", "zap":
		case "json":
			if c.Logging.JSONPath == "" {
				errs = append(errs, errors.New("json sink requires logging.json_path"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown logging sink %q", sink))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c Config) FixedDT() time.Duration {
	return time.Second / time.Duration(c.FixedHz)
}

func (c Config) FramePeriod() time.Duration {
	if c.TargetFPS <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.TargetFPS)
}

func (c Config) Severity() logging.Severity {
	sev, _ := logging.ParseSeverity(c.Logging.Level)
	return sev
}

// RouterConfig converts to the logging router configuration.
func (c Config) RouterConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = append([]string(nil), c.Logging.Sinks...)
	if c.Logging.BufferSize > 0 {
		cfg.BufferSize = c.Logging.BufferSize
	}
	cfg.MinimumSeverity = c.Severity()
	cfg.JSON.FilePath = c.Logging.JSONPath
	cfg.Zap.Development = c.Logging.ZapDevelopment
	return cfg
}
