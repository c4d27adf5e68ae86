package strategy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StrategyConfig declares one strategy instance in YAML.
type StrategyConfig struct {
	ID   string `yaml:"id"`
	Type string `yaml:"type"` // ma_cross | rsi

	// ma_cross
	Fast int `yaml:"fast"`
	Slow int `yaml:"slow"`

	// rsi
	Period     int     `yaml:"period"`
	Oversold   float64 `yaml:"oversold"`
	Overbought float64 `yaml:"overbought"`
}

type configFile struct {
	Strategies []StrategyConfig `yaml:"strategies"`
}

// LoadConfig reads strategy declarations from a YAML file.
func LoadConfig(path string) ([]StrategyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read strategy config: %w", err)
	}
	var f configFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse strategy config: %w", err)
	}
	return f.Strategies, nil
}

// Build instantiates strategies from their declarations.
func Build(configs []StrategyConfig) ([]Strategy, error) {
	out := make([]Strategy, 0, len(configs))
	for _, c := range configs {
		switch c.Type {
		case "ma_cross":
			fast, slow := c.Fast, c.Slow
			if fast <= 0 {
				fast = 10
			}
			if slow <= fast {
				slow = fast * 3
			}
			out = append(out, NewMACrossStrategy(c.ID, fast, slow))
		case "rsi":
			period := c.Period
			if period <= 0 {
				period = 14
			}
			oversold, overbought := c.Oversold, c.Overbought
			if oversold <= 0 {
				oversold = 30
			}
			if overbought <= 0 {
				overbought = 70
			}
			out = append(out, NewRSIStrategy(c.ID, period, oversold, overbought))
		default:
			return nil, fmt.Errorf("unknown strategy type %q", c.Type)
		}
	}
	return out, nil
}
