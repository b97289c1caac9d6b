// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management.
//
// Configuration is read from ~/.lingomate/config.toml with built-in
// defaults and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/lingomate/lingomate/internal/model"
	"github.com/lingomate/lingomate/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete application configuration.
type Config struct {
	// Endpoint configuration
	Endpoint EndpointConfig `toml:"endpoint"`

	// Defaults applied to new conversations
	Defaults DefaultsConfig `toml:"defaults"`
}

// EndpointConfig describes the completion endpoint.
type EndpointConfig struct {
	// BaseURL is the OpenAI-compatible API root.
	BaseURL string `toml:"base_url"`
	// APIKey is the credential. The LINGOMATE_API_KEY environment variable
	// is the fallback; a non-blank value here wins.
	APIKey string `toml:"api_key"`
	// Model is the default model id.
	Model string `toml:"model"`
}

// DefaultsConfig holds default conversation settings.
type DefaultsConfig struct {
	TargetLanguage        string `toml:"target_language"`
	FeedbackLanguage      string `toml:"feedback_language"`
	ChatMatePersonality   string `toml:"chat_mate_personality"`
	EditorMatePersonality string `toml:"editor_mate_personality"`
	FeedbackStyle         string `toml:"feedback_style"`
	ProficiencyLevel      string `toml:"proficiency_level"`
	CulturalContext       bool   `toml:"cultural_context"`
	ProgressiveComplexity bool   `toml:"progressive_complexity"`
	EnableReasoning       bool   `toml:"enable_reasoning"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Endpoint: EndpointConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "openai/gpt-4o-mini",
		},
		Defaults: DefaultsConfig{
			TargetLanguage:   "Swedish",
			FeedbackLanguage: "English",
			FeedbackStyle:    string(model.FeedbackEncouraging),
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".lingomate"), nil
}

// ConfigPath returns the TOML config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads the config file, falling back to defaults when missing, then
// applies environment overrides.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// LoadFromPath reads a config file from an explicit path. A missing file
// yields the defaults, not an error.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the config atomically with owner-only permissions, since it
// may carry the API key.
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.AtomicWriteFile(path, []byte(sb.String()), 0600)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variables over file values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("LINGOMATE_BASE_URL"); v != "" {
		c.Endpoint.BaseURL = v
	}
	if v := os.Getenv("LINGOMATE_API_KEY"); v != "" && strings.TrimSpace(c.Endpoint.APIKey) == "" {
		// File-supplied key wins; env is the fallback credential.
		c.Endpoint.APIKey = v
	}
	if v := os.Getenv("LINGOMATE_MODEL"); v != "" {
		c.Endpoint.Model = v
	}
	if v := os.Getenv("LINGOMATE_TARGET_LANGUAGE"); v != "" {
		c.Defaults.TargetLanguage = v
	}
	if v := os.Getenv("LINGOMATE_REASONING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Defaults.EnableReasoning = b
		}
	}
}

// =============================================================================
// CONVERSATION SETTINGS
// =============================================================================

// ConversationSettings converts the configured defaults into settings for
// a new conversation, normalizing language names.
func (c *Config) ConversationSettings() model.Settings {
	style := model.FeedbackStyle(c.Defaults.FeedbackStyle)
	if !style.IsValid() {
		style = model.FeedbackEncouraging
	}
	return model.Settings{
		TargetLanguage:        NormalizeLanguage(c.Defaults.TargetLanguage),
		Model:                 c.Endpoint.Model,
		ChatMatePersonality:   c.Defaults.ChatMatePersonality,
		EditorMatePersonality: c.Defaults.EditorMatePersonality,
		FeedbackStyle:         style,
		FeedbackLanguage:      NormalizeLanguage(c.Defaults.FeedbackLanguage),
		ProficiencyLevel:      c.Defaults.ProficiencyLevel,
		CulturalContext:       c.Defaults.CulturalContext,
		ProgressiveComplexity: c.Defaults.ProgressiveComplexity,
		EnableReasoning:       c.Defaults.EnableReasoning,
	}
}
