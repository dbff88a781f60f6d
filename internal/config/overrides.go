package config

import (
	"fmt"
	"os"
	"time"

	yamlv2 "gopkg.in/yaml.v2"
)

// scenarioOverride mirrors ScenarioConfig with plain scalars so the override
// file stays a flat, operator-editable document. Zero values leave the loaded
// config untouched.
type scenarioOverride struct {
	Concurrency    int    `yaml:"concurrency"`
	MaxTaskRetries int    `yaml:"max_task_retries"`
	InterTaskDelay string `yaml:"inter_task_delay"`
	WindowSize     string `yaml:"window_size"`
	WindowLimit    int    `yaml:"window_limit"`
	DrainCeiling   string `yaml:"drain_ceiling"`
	MaxRetries     int    `yaml:"max_retries"`
}

type scenarioOverrideFile struct {
	Scenarios map[string]scenarioOverride `yaml:"scenarios"`
}

// ApplyScenarioOverrides overlays per-scenario tuning from a side file onto
// scenarios already present in the config. The file is optional; unknown
// scenario names are ignored.
func (c *Config) ApplyScenarioOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read scenario overrides: %w", err)
	}

	var doc scenarioOverrideFile
	if err := yamlv2.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse scenario overrides: %w", err)
	}

	for name, ov := range doc.Scenarios {
		sc, ok := c.Pipeline.Scenarios[name]
		if !ok {
			continue
		}
		if ov.Concurrency > 0 {
			sc.Concurrency = ov.Concurrency
		}
		if ov.MaxTaskRetries > 0 {
			sc.MaxTaskRetries = ov.MaxTaskRetries
		}
		if ov.WindowLimit > 0 {
			sc.WindowLimit = ov.WindowLimit
		}
		if ov.MaxRetries > 0 {
			sc.Retry.MaxRetries = ov.MaxRetries
		}
		if err := overrideDuration(&sc.InterTaskDelay, ov.InterTaskDelay); err != nil {
			return fmt.Errorf("scenario %s: inter_task_delay: %w", name, err)
		}
		if err := overrideDuration(&sc.WindowSize, ov.WindowSize); err != nil {
			return fmt.Errorf("scenario %s: window_size: %w", name, err)
		}
		if err := overrideDuration(&sc.DrainCeiling, ov.DrainCeiling); err != nil {
			return fmt.Errorf("scenario %s: drain_ceiling: %w", name, err)
		}
		c.Pipeline.Scenarios[name] = sc
	}
	return nil
}

func overrideDuration(dst *Duration, raw string) error {
	if raw == "" {
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*dst = Duration(parsed)
	return nil
}
