// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lingomate/lingomate/internal/model"
)

func TestLoadFromPathMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Endpoint.BaseURL == "" || cfg.Defaults.TargetLanguage == "" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadFromPathParsesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[endpoint]
base_url = "https://example.com/v1"
api_key = "file-key"
model = "vendor/model"

[defaults]
target_language = "Japanese"
feedback_style = "direct"
enable_reasoning = true
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Endpoint.BaseURL != "https://example.com/v1" {
		t.Errorf("base url = %q", cfg.Endpoint.BaseURL)
	}
	if cfg.Defaults.TargetLanguage != "Japanese" {
		t.Errorf("target language = %q", cfg.Defaults.TargetLanguage)
	}
	if !cfg.Defaults.EnableReasoning {
		t.Error("reasoning flag lost")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LINGOMATE_BASE_URL", "https://env.example/v1")
	t.Setenv("LINGOMATE_MODEL", "env/model")
	t.Setenv("LINGOMATE_TARGET_LANGUAGE", "Korean")
	t.Setenv("LINGOMATE_REASONING", "true")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Endpoint.BaseURL != "https://env.example/v1" {
		t.Errorf("base url = %q", cfg.Endpoint.BaseURL)
	}
	if cfg.Endpoint.Model != "env/model" {
		t.Errorf("model = %q", cfg.Endpoint.Model)
	}
	if cfg.Defaults.TargetLanguage != "Korean" {
		t.Errorf("target language = %q", cfg.Defaults.TargetLanguage)
	}
	if !cfg.Defaults.EnableReasoning {
		t.Error("reasoning override not applied")
	}
}

func TestAPIKeyFileWinsOverEnv(t *testing.T) {
	t.Setenv("LINGOMATE_API_KEY", "env-key")

	cfg := Default()
	cfg.Endpoint.APIKey = "file-key"
	cfg.ApplyEnvOverrides()
	if cfg.Endpoint.APIKey != "file-key" {
		t.Errorf("file-supplied key overridden: %q", cfg.Endpoint.APIKey)
	}

	cfg = Default()
	cfg.ApplyEnvOverrides()
	if cfg.Endpoint.APIKey != "env-key" {
		t.Errorf("env fallback not applied: %q", cfg.Endpoint.APIKey)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sv", "Swedish"},
		{"de", "German"},
		{"ja", "Japanese"},
		{"Swedish", "Swedish"},
		{"Brazilian Portuguese", "Brazilian Portuguese"},
		{"not-a-tag-at-all", "not-a-tag-at-all"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeLanguage(tt.in); got != tt.want {
			t.Errorf("NormalizeLanguage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConversationSettings(t *testing.T) {
	cfg := Default()
	cfg.Defaults.TargetLanguage = "sv"
	cfg.Defaults.FeedbackStyle = "nonsense"
	cfg.Endpoint.Model = "vendor/model"

	settings := cfg.ConversationSettings()
	if settings.TargetLanguage != "Swedish" {
		t.Errorf("target language = %q, want normalized name", settings.TargetLanguage)
	}
	if settings.FeedbackStyle != model.FeedbackEncouraging {
		t.Errorf("invalid style not defaulted: %q", settings.FeedbackStyle)
	}
	if settings.Model != "vendor/model" {
		t.Errorf("model = %q", settings.Model)
	}
}
