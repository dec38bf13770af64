package node

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// NodeConfig holds the full configuration for an aura node,
// parsed from a TOML-like configuration file. It is separate from
// Config to support richer structured configuration with nested sections.
type NodeConfig struct {
	DataDir string

	Slot    SlotSectionConfig
	Metrics MetricsSectionConfig
	Log     LogConfig
}

// SlotSectionConfig holds the [slot] section: genesis timing and authoring
// behavior.
type SlotSectionConfig struct {
	DurationMillis    uint64
	GenesisTimeMillis uint64
	AllowOldSeals     bool
	ForceAuthoring    bool
}

// MetricsSectionConfig holds the [metrics] section.
type MetricsSectionConfig struct {
	Enabled bool
	Addr    string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// DefaultNodeConfig returns a NodeConfig with sensible defaults.
func DefaultNodeConfig() *NodeConfig {
	return &NodeConfig{
		DataDir: defaultDataDir(),
		Slot: SlotSectionConfig{
			DurationMillis: 6000,
			AllowOldSeals:  false,
			ForceAuthoring: false,
		},
		Metrics: MetricsSectionConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9100",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ValidateNodeConfig checks the configuration for correctness.
func (nc *NodeConfig) ValidateNodeConfig() error {
	if nc.DataDir == "" {
		return errors.New("config: datadir must not be empty")
	}
	if nc.Slot.DurationMillis == 0 {
		return errors.New("config: slot.duration_ms must be greater than 0")
	}

	if nc.Metrics.Enabled && nc.Metrics.Addr == "" {
		return errors.New("config: metrics.addr must not be empty when metrics is enabled")
	}

	switch nc.Log.Level {
	case "debug", "info", "warn", "error", "trace":
	default:
		return fmt.Errorf("config: unknown log level %q", nc.Log.Level)
	}
	switch nc.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", nc.Log.Format)
	}

	return nil
}

// LoadConfig parses a TOML-like configuration from raw bytes into a NodeConfig.
// The parser handles key = value pairs and [section] headers. It supports
// string values (quoted or unquoted), integers, and booleans; array values
// are not parsed.
func LoadConfig(data []byte) (*NodeConfig, error) {
	cfg := DefaultNodeConfig()
	section := ""

	lines := strings.Split(string(data), "\n")
	for lineNum, raw := range lines {
		line := strings.TrimSpace(raw)

		// Skip empty lines and comments.
		if line == "" || line[0] == '#' {
			continue
		}

		// Section header.
		if line[0] == '[' {
			end := strings.Index(line, "]")
			if end < 0 {
				return nil, fmt.Errorf("line %d: unclosed section header", lineNum+1)
			}
			section = strings.TrimSpace(line[1:end])
			continue
		}

		// Key = value pair.
		eqIdx := strings.Index(line, "=")
		if eqIdx < 0 {
			return nil, fmt.Errorf("line %d: expected key = value", lineNum+1)
		}
		key := strings.TrimSpace(line[:eqIdx])
		val := strings.TrimSpace(line[eqIdx+1:])

		if err := applyConfigValue(cfg, section, key, val, lineNum+1); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// applyConfigValue sets a single configuration field based on section, key, value.
func applyConfigValue(cfg *NodeConfig, section, key, val string, lineNum int) error {
	switch section {
	case "":
		return applyTopLevel(cfg, key, val, lineNum)
	case "slot":
		return applySlot(cfg, key, val, lineNum)
	case "metrics":
		return applyMetrics(cfg, key, val, lineNum)
	case "log":
		return applyLog(cfg, key, val, lineNum)
	default:
		return fmt.Errorf("line %d: unknown section [%s]", lineNum, section)
	}
}

func applyTopLevel(cfg *NodeConfig, key, val string, lineNum int) error {
	switch key {
	case "datadir":
		cfg.DataDir = unquote(val)
	default:
		return fmt.Errorf("line %d: unknown key %q in top-level", lineNum, key)
	}
	return nil
}

func applySlot(cfg *NodeConfig, key, val string, lineNum int) error {
	switch key {
	case "duration_ms":
		n, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid slot.duration_ms: %w", lineNum, err)
		}
		cfg.Slot.DurationMillis = n
	case "genesis_time_ms":
		n, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid slot.genesis_time_ms: %w", lineNum, err)
		}
		cfg.Slot.GenesisTimeMillis = n
	case "allow_old_seals":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid slot.allow_old_seals: %w", lineNum, err)
		}
		cfg.Slot.AllowOldSeals = b
	case "force_authoring":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid slot.force_authoring: %w", lineNum, err)
		}
		cfg.Slot.ForceAuthoring = b
	default:
		return fmt.Errorf("line %d: unknown key %q in [slot]", lineNum, key)
	}
	return nil
}

func applyMetrics(cfg *NodeConfig, key, val string, lineNum int) error {
	switch key {
	case "enabled":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid metrics.enabled: %w", lineNum, err)
		}
		cfg.Metrics.Enabled = b
	case "addr":
		cfg.Metrics.Addr = unquote(val)
	default:
		return fmt.Errorf("line %d: unknown key %q in [metrics]", lineNum, key)
	}
	return nil
}

func applyLog(cfg *NodeConfig, key, val string, lineNum int) error {
	switch key {
	case "level":
		cfg.Log.Level = unquote(val)
	case "format":
		cfg.Log.Format = unquote(val)
	default:
		return fmt.Errorf("line %d: unknown key %q in [log]", lineNum, key)
	}
	return nil
}

// unquote strips surrounding double quotes from a string value.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// MergeNodeConfig merges an override config onto a base config.
// Non-zero/non-empty values from override take priority over base.
func MergeNodeConfig(base, override *NodeConfig) *NodeConfig {
	result := *base

	if override.DataDir != "" {
		result.DataDir = override.DataDir
	}

	if override.Slot.DurationMillis != 0 {
		result.Slot.DurationMillis = override.Slot.DurationMillis
	}
	if override.Slot.GenesisTimeMillis != 0 {
		result.Slot.GenesisTimeMillis = override.Slot.GenesisTimeMillis
	}

	if override.Metrics.Addr != "" {
		result.Metrics.Addr = override.Metrics.Addr
	}

	if override.Log.Level != "" {
		result.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		result.Log.Format = override.Log.Format
	}

	return &result
}
