// Package config loads the server configuration from an HCL file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/reelroom/reelroom/internal/slot"
)

// Config is the complete server configuration.
type Config struct {
	Server   ServerSettings   `hcl:"server,block"`
	Database DatabaseSettings `hcl:"database,block"`
	Auth     AuthSettings     `hcl:"auth,block"`
	Game     GameSettings     `hcl:"game,block"`
	Symbols  []SymbolConfig   `hcl:"symbol,block"`
}

// ServerSettings contains the listen address and logging options.
type ServerSettings struct {
	Addr     string `hcl:"addr,optional"`
	LogLevel string `hcl:"log_level,optional"`
}

// DatabaseSettings points at the Postgres instance.
type DatabaseSettings struct {
	URL string `hcl:"url,optional"`
}

// AuthSettings configures token issuance for sessions.
type AuthSettings struct {
	TokenSecret   string `hcl:"token_secret,optional"`
	TokenTTLHours int    `hcl:"token_ttl_hours,optional"`
}

// GameSettings drives the round engine timing and odds.
type GameSettings struct {
	BettingMs         int     `hcl:"betting_ms,optional"`
	SpinningMs        int     `hcl:"spinning_ms,optional"`
	ResultMs          int     `hcl:"result_ms,optional"`
	TickMs            int     `hcl:"tick_ms,optional"`
	AssistProbability float64 `hcl:"assist_probability,optional"`
	StartingBalance   int64   `hcl:"starting_balance,optional"`
	Seed              int64   `hcl:"seed,optional"`
}

// SymbolConfig is one pay-table entry.
type SymbolConfig struct {
	Key        string `hcl:"key,label"`
	Icon       string `hcl:"icon"`
	Weight     int    `hcl:"weight"`
	Multiplier int    `hcl:"multiplier"`
}

// Default returns the configuration used when no file is present. The timing
// constants match the original game pacing: an 8s betting window, 3s of reel
// spin and 2s to show the result.
func Default() *Config {
	return &Config{
		Server: ServerSettings{
			Addr:     "localhost:4000",
			LogLevel: "info",
		},
		Database: DatabaseSettings{
			URL: "postgres://localhost:5432/reelroom",
		},
		Auth: AuthSettings{
			TokenSecret:   "dev-secret",
			TokenTTLHours: 24,
		},
		Game: GameSettings{
			BettingMs:         8000,
			SpinningMs:        3000,
			ResultMs:          2000,
			TickMs:            1000,
			AssistProbability: 0.35,
			StartingBalance:   1000,
		},
	}
}

// Load reads the HCL file at path, falling back to Default when the file does
// not exist. Missing fields are filled with defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config: %s", diags.Error())
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode config: %s", diags.Error())
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = def.Server.LogLevel
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = def.Database.URL
	}
	if cfg.Auth.TokenSecret == "" {
		cfg.Auth.TokenSecret = def.Auth.TokenSecret
	}
	if cfg.Auth.TokenTTLHours == 0 {
		cfg.Auth.TokenTTLHours = def.Auth.TokenTTLHours
	}
	if cfg.Game.BettingMs == 0 {
		cfg.Game.BettingMs = def.Game.BettingMs
	}
	if cfg.Game.SpinningMs == 0 {
		cfg.Game.SpinningMs = def.Game.SpinningMs
	}
	if cfg.Game.ResultMs == 0 {
		cfg.Game.ResultMs = def.Game.ResultMs
	}
	if cfg.Game.TickMs == 0 {
		cfg.Game.TickMs = def.Game.TickMs
	}
	if cfg.Game.AssistProbability == 0 {
		cfg.Game.AssistProbability = def.Game.AssistProbability
	}
	if cfg.Game.StartingBalance == 0 {
		cfg.Game.StartingBalance = def.Game.StartingBalance
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr must not be empty")
	}
	if c.Game.BettingMs <= 0 || c.Game.SpinningMs <= 0 || c.Game.ResultMs <= 0 {
		return fmt.Errorf("round phase durations must be positive")
	}
	if c.Game.TickMs <= 0 {
		return fmt.Errorf("tick_ms must be positive")
	}
	if c.Game.AssistProbability < 0 || c.Game.AssistProbability > 1 {
		return fmt.Errorf("assist_probability must be in [0,1], got %v", c.Game.AssistProbability)
	}
	if c.Game.StartingBalance < 0 {
		return fmt.Errorf("starting_balance must not be negative")
	}
	for _, s := range c.Symbols {
		if s.Weight <= 0 {
			return fmt.Errorf("symbol %q: weight must be positive", s.Key)
		}
		if s.Multiplier < 0 {
			return fmt.Errorf("symbol %q: multiplier must not be negative", s.Key)
		}
	}
	return nil
}

// SymbolCatalog converts the configured symbol blocks into the pay table,
// falling back to the built-in catalog when none are configured.
func (c *Config) SymbolCatalog() []slot.Symbol {
	if len(c.Symbols) == 0 {
		return slot.DefaultSymbols()
	}
	out := make([]slot.Symbol, len(c.Symbols))
	for i, s := range c.Symbols {
		out[i] = slot.Symbol{Key: s.Key, Icon: s.Icon, Weight: s.Weight, Multiplier: s.Multiplier}
	}
	return out
}

// BettingWindow returns the betting phase duration.
func (c *Config) BettingWindow() time.Duration {
	return time.Duration(c.Game.BettingMs) * time.Millisecond
}

// SpinDuration returns the spinning phase duration.
func (c *Config) SpinDuration() time.Duration {
	return time.Duration(c.Game.SpinningMs) * time.Millisecond
}

// ResultHold returns how long the result phase is displayed.
func (c *Config) ResultHold() time.Duration {
	return time.Duration(c.Game.ResultMs) * time.Millisecond
}

// Tick returns the idle polling interval.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Game.TickMs) * time.Millisecond
}
