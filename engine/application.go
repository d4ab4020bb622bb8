package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/spaghettifunk/typeset/engine/core"
	"github.com/spaghettifunk/typeset/engine/systems"
)

type ApplicationConfig struct {
	// Framebuffer starting width.
	StartWidth uint32 `toml:"start_width" yaml:"start_width"`
	// Framebuffer starting height.
	StartHeight uint32 `toml:"start_height" yaml:"start_height"`
	// The application name used in logs and metrics.
	Name     string `toml:"name" yaml:"name"`
	LogLevel string `toml:"log_level" yaml:"log_level"`
	// Directory indexed by the font catalog. Empty disables the catalog.
	FontDir string               `toml:"font_dir" yaml:"font_dir"`
	Fonts   []systems.FontConfig `toml:"fonts" yaml:"fonts"`
	// Frames per second Run aims for. Zero runs unthrottled.
	TargetFPS uint32 `toml:"target_fps" yaml:"target_fps"`
	// Prefix of the job metrics. Empty disables them.
	MetricsPrefix string                   `toml:"metrics_prefix" yaml:"metrics_prefix"`
	Text          systems.TextSystemConfig `toml:"text" yaml:"text"`
}

func DefaultApplicationConfig() ApplicationConfig {
	return ApplicationConfig{
		StartWidth:  800,
		StartHeight: 600,
		Name:        "typeset",
		LogLevel:    "info",
		TargetFPS:   60,
		Text:        systems.DefaultTextSystemConfig(),
	}
}

func (c ApplicationConfig) Validate() error {
	var errs []error
	if c.StartWidth == 0 || c.StartHeight == 0 {
		errs = append(errs, fmt.Errorf("framebuffer size %dx%d must not be zero", c.StartWidth, c.StartHeight))
	}
	if _, err := core.ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	for _, f := range c.Fonts {
		if f.Font == "" {
			errs = append(errs, errors.New("font entry without a font"))
		}
		if _, err := systems.ParseTextStyle(f.Style); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.Text.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoadApplicationConfig reads a .toml, .yaml or .yml file on top of the
// default configuration.
func LoadApplicationConfig(path string) (ApplicationConfig, error) {
	config := DefaultApplicationConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		return config, fmt.Errorf("unsupported config format '%s'", filepath.Ext(path))
	}
	if err != nil {
		return config, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}
