// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading for chatrelay.
//
// Supports both TOML and JSON formats, with sensible defaults and
// environment variable overrides.
//
// Configuration file locations (in order of precedence):
//   - ~/.chatrelay/config.toml
//   - ~/.chatrelay/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/chatrelay/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete chatrelay configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Memory     MemoryConfig     `toml:"memory" json:"memory"`
	Routing    RoutingConfig    `toml:"routing" json:"routing"`
	Providers  ProvidersConfig  `toml:"providers" json:"providers"`
	Cache      CacheConfig      `toml:"cache" json:"cache"`
	Generation GenerationConfig `toml:"generation" json:"generation"`
	Summarizer SummarizerConfig `toml:"summarizer" json:"summarizer"`
}

// MemoryConfig bounds the per-session conversation window.
type MemoryConfig struct {
	// MaxContextMessages bounds the window (summaries + live messages).
	MaxContextMessages int `toml:"max_context_messages" json:"max_context_messages"`
	// SummarizeThreshold is the window fill fraction that triggers
	// compaction, in (0, 1].
	SummarizeThreshold float64 `toml:"summarize_threshold" json:"summarize_threshold"`
	// DatabasePath is the SQLite file for durable history. Empty keeps
	// history in memory only.
	DatabasePath string `toml:"database_path" json:"database_path"`
}

// RoutingConfig controls backend selection.
type RoutingConfig struct {
	// PrimaryProvider is used when no category rule applies.
	PrimaryProvider string `toml:"primary_provider" json:"primary_provider"`
	// EnableFallback enables per-backend fallback chains.
	EnableFallback bool `toml:"enable_fallback" json:"enable_fallback"`
	// MonthlyBudget is the per-backend monthly cap in dollars.
	MonthlyBudget float64 `toml:"monthly_budget" json:"monthly_budget"`
}

// ProvidersConfig holds the backend API keys. A backend with no key is
// not registered.
type ProvidersConfig struct {
	ClaudeKey     string `toml:"claude_key" json:"claude_key"`
	GeminiKey     string `toml:"gemini_key" json:"gemini_key"`
	GroqKey       string `toml:"groq_key" json:"groq_key"`
	OpenRouterKey string `toml:"openrouter_key" json:"openrouter_key"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	// MaxEntries bounds the LRU response cache.
	MaxEntries int `toml:"max_entries" json:"max_entries"`
}

// GenerationConfig controls ordinary chat responses.
type GenerationConfig struct {
	SystemPrompt string  `toml:"system_prompt" json:"system_prompt"`
	MaxTokens    int     `toml:"max_tokens" json:"max_tokens"`
	Temperature  float64 `toml:"temperature" json:"temperature"`
}

// SummarizerConfig controls compaction summaries.
type SummarizerConfig struct {
	// MaxTokens caps summary responses.
	MaxTokens int `toml:"max_tokens" json:"max_tokens"`
	// TimeoutSecs bounds each summarization call.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// ContextWindow is the assumed backend input budget in tokens.
	ContextWindow int `toml:"context_window" json:"context_window"`
	// PreciseTokens switches token estimation from the length heuristic
	// to a real BPE encoding.
	PreciseTokens bool `toml:"precise_tokens" json:"precise_tokens"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: "1",
		Memory: MemoryConfig{
			MaxContextMessages: 15,
			SummarizeThreshold: 0.8,
		},
		Routing: RoutingConfig{
			PrimaryProvider: "claude",
			EnableFallback:  true,
			MonthlyBudget:   50.0,
		},
		Cache: CacheConfig{
			MaxEntries: 1000,
		},
		Generation: GenerationConfig{
			MaxTokens:   1024,
			Temperature: 0.7,
		},
		Summarizer: SummarizerConfig{
			MaxTokens:     300,
			TimeoutSecs:   20,
			ContextWindow: 8192,
		},
	}
}

// ConfigDir returns the chatrelay configuration directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".chatrelay"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the configuration: TOML first, then JSON, then defaults.
// Environment overrides always apply last.
func Load() (*Config, error) {
	cfg := Default()

	dir, err := ConfigDir()
	if err != nil {
		cfg.ApplyEnvOverrides()
		return cfg, nil
	}

	tomlPath := filepath.Join(dir, "config.toml")
	jsonPath := filepath.Join(dir, "config.json")

	switch {
	case fileExists(tomlPath):
		if err := loadTOML(cfg, tomlPath); err != nil {
			return nil, err
		}
	case fileExists(jsonPath):
		if err := loadJSON(cfg, jsonPath); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnvOverrides()
	if cfg.Memory.DatabasePath == "" {
		cfg.Memory.DatabasePath = filepath.Join(dir, "chatrelay.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath reads configuration from an explicit file. The format is
// chosen by extension.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	var err error
	if strings.HasSuffix(path, ".json") {
		err = loadJSON(cfg, path)
	} else {
		err = loadTOML(cfg, path)
	}
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func loadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func loadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies CHATRELAY_* environment variables on top of
// the loaded configuration. Keys in the environment beat keys in files.
// The conventional provider envs (ANTHROPIC_API_KEY and friends) are
// honored too, with the CHATRELAY_* form winning when both are set.
func (c *Config) ApplyEnvOverrides() {
	if v := firstEnv("CHATRELAY_CLAUDE_KEY", "ANTHROPIC_API_KEY"); v != "" {
		c.Providers.ClaudeKey = v
	}
	if v := firstEnv("CHATRELAY_GEMINI_KEY", "GEMINI_API_KEY"); v != "" {
		c.Providers.GeminiKey = v
	}
	if v := firstEnv("CHATRELAY_GROQ_KEY", "GROQ_API_KEY"); v != "" {
		c.Providers.GroqKey = v
	}
	if v := firstEnv("CHATRELAY_OPENROUTER_KEY", "OPENROUTER_API_KEY"); v != "" {
		c.Providers.OpenRouterKey = v
	}
	if v := os.Getenv("CHATRELAY_PRIMARY"); v != "" {
		c.Routing.PrimaryProvider = v
	}
	if v := os.Getenv("CHATRELAY_DB_PATH"); v != "" {
		c.Memory.DatabasePath = v
	}
	if v := os.Getenv("CHATRELAY_MONTHLY_BUDGET"); v != "" {
		if budget, err := strconv.ParseFloat(v, 64); err == nil {
			c.Routing.MonthlyBudget = budget
		}
	}
	if v := os.Getenv("CHATRELAY_DISABLE_FALLBACK"); v == "1" || v == "true" {
		c.Routing.EnableFallback = false
	}
}

// firstEnv returns the first non-empty value among the named variables.
func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks ranges and repairs soft mistakes with defaults.
func (c *Config) Validate() error {
	if c.Memory.MaxContextMessages <= 0 {
		c.Memory.MaxContextMessages = 15
	}
	if c.Memory.SummarizeThreshold <= 0 || c.Memory.SummarizeThreshold > 1 {
		c.Memory.SummarizeThreshold = 0.8
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 1000
	}
	if c.Routing.MonthlyBudget < 0 {
		return fmt.Errorf("routing.monthly_budget must not be negative, got %v", c.Routing.MonthlyBudget)
	}
	switch c.Routing.PrimaryProvider {
	case "claude", "gemini", "groq", "openrouter":
	default:
		return fmt.Errorf("routing.primary_provider %q is not a known provider", c.Routing.PrimaryProvider)
	}
	if c.Summarizer.TimeoutSecs <= 0 {
		c.Summarizer.TimeoutSecs = 20
	}
	if c.Summarizer.MaxTokens <= 0 {
		c.Summarizer.MaxTokens = 300
	}
	if c.Summarizer.ContextWindow <= 0 {
		c.Summarizer.ContextWindow = 8192
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return fmt.Errorf("generation.temperature must be in [0, 2], got %v", c.Generation.Temperature)
	}
	return nil
}

// =============================================================================
// SAVING
// =============================================================================

// SaveTOML writes the configuration as TOML. The file holds API keys,
// so it is written atomically with owner-only permissions.
func SaveTOML(cfg *Config, path string) error {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, []byte(sb.String()), 0600, 0700); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration as JSON, atomically, 0600.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
