package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"warrant-trader/internal/risk"
)

// WarrantConfig declares one traded warrant and its knock-out terms.
type WarrantConfig struct {
	Symbol    string  `yaml:"symbol"`
	Kind      string  `yaml:"kind"` // BULL or BEAR
	CallPrice float64 `yaml:"call_price"`
	LotSize   int64   `yaml:"lot_size"`
}

// VerificationConfig mirrors the verifier's tunables in YAML.
type VerificationConfig struct {
	BuyDelaySeconds  int      `yaml:"buy_delay_seconds"`
	SellDelaySeconds int      `yaml:"sell_delay_seconds"`
	BuyIndicators    []string `yaml:"buy_indicators"`
	SellIndicators   []string `yaml:"sell_indicators"`
}

// TradingConfig is the full per-session trading parameter file.
type TradingConfig struct {
	MonitorSymbol string        `yaml:"monitor_symbol"`
	LongWarrant   WarrantConfig `yaml:"long_warrant"`
	ShortWarrant  WarrantConfig `yaml:"short_warrant"`

	BuyNotional        float64 `yaml:"buy_notional"`
	BuyIntervalSeconds int     `yaml:"buy_interval_seconds"`

	NormalOrderType     string `yaml:"normal_order_type"`     // LO | ELO | MO
	ProtectiveOrderType string `yaml:"protective_order_type"` // usually MO

	Verification VerificationConfig  `yaml:"verification"`
	Risk         risk.Config         `yaml:"risk"`
	Cooldown     risk.CooldownConfig `yaml:"cooldown"`
}

// LoadTrading reads and validates the trading parameter file.
func LoadTrading(path string) (*TradingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trading config: %w", err)
	}

	var cfg TradingConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse trading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configs that cannot drive a safe session.
func (c *TradingConfig) Validate() error {
	if c.MonitorSymbol == "" {
		return fmt.Errorf("trading config: monitor_symbol is required")
	}
	if c.LongWarrant.Symbol == "" || c.ShortWarrant.Symbol == "" {
		return fmt.Errorf("trading config: both warrant symbols are required")
	}
	if c.LongWarrant.LotSize <= 0 || c.ShortWarrant.LotSize <= 0 {
		return fmt.Errorf("trading config: lot sizes must be positive")
	}
	if c.BuyNotional <= 0 {
		return fmt.Errorf("trading config: buy_notional must be positive")
	}
	switch c.Cooldown.Mode {
	case risk.CooldownMinutes, risk.CooldownHalfDay, risk.CooldownOneDay, "":
	default:
		return fmt.Errorf("trading config: unknown cooldown mode %q", c.Cooldown.Mode)
	}
	return nil
}
