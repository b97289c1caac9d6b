// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package prompt

import (
	"errors"
	"strings"
	"testing"

	"github.com/lingomate/lingomate/internal/model"
)

func baseVars() Variables {
	return Variables{
		TargetLanguage: "Swedish",
		FeedbackStyle:  model.FeedbackEncouraging,
	}
}

func TestBuildDeterministic(t *testing.T) {
	vars := Variables{
		TargetLanguage:        "Swedish",
		ChatMatePersonality:   "You are cheerful and patient.",
		FeedbackStyle:         model.FeedbackDetailed,
		ProficiencyLevel:      "B1",
		CulturalContext:       true,
		ProgressiveComplexity: true,
	}

	first, err := Build(model.TypeChatMate, vars)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	second, err := Build(model.TypeChatMate, vars)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if first.SystemPrompt != second.SystemPrompt {
		t.Error("identical inputs produced different prompts")
	}
}

func TestBuildNeverLeavesBraces(t *testing.T) {
	for _, typ := range []model.MessageType{model.TypeChatMate, model.TypeEditorMate} {
		res, err := Build(typ, baseVars())
		if err != nil {
			t.Fatalf("Build(%s) failed: %v", typ, err)
		}
		if strings.ContainsAny(res.SystemPrompt, "{}") {
			t.Errorf("Build(%s) output contains unresolved braces:\n%s", typ, res.SystemPrompt)
		}
	}
}

func TestBuildMissingTargetLanguage(t *testing.T) {
	_, err := Build(model.TypeChatMate, Variables{})
	if err == nil {
		t.Fatal("expected error for missing target language")
	}
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %T", err)
	}
	if cfgErr.Field != "targetLanguage" {
		t.Errorf("wrong field: %q", cfgErr.Field)
	}
}

func TestBuildCustomUnknownPlaceholder(t *testing.T) {
	res, err := BuildCustom("Say hello in {targetLanguage}. {noSuchVariable}!", baseVars())
	if err != nil {
		t.Fatalf("BuildCustom failed: %v", err)
	}
	if strings.Contains(res.SystemPrompt, "noSuchVariable") {
		t.Errorf("unknown placeholder left literal: %q", res.SystemPrompt)
	}
	if !strings.Contains(res.SystemPrompt, "Swedish") {
		t.Errorf("known placeholder not substituted: %q", res.SystemPrompt)
	}
}

func TestBuildCustomStripsMalformedTokens(t *testing.T) {
	res, err := BuildCustom("Practice {targetLanguage}. {foo-bar} { } {unclosed and} spare }", baseVars())
	if err != nil {
		t.Fatalf("BuildCustom failed: %v", err)
	}
	if strings.ContainsAny(res.SystemPrompt, "{}") {
		t.Errorf("malformed tokens left braces behind: %q", res.SystemPrompt)
	}
	if !strings.Contains(res.SystemPrompt, "Swedish") {
		t.Errorf("known placeholder not substituted: %q", res.SystemPrompt)
	}
}

func TestBuildCollapsesBlankLines(t *testing.T) {
	// Optional variables are empty, leaving consecutive blank lines behind.
	res, err := Build(model.TypeChatMate, baseVars())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if strings.Contains(res.SystemPrompt, "\n\n\n") {
		t.Errorf("output has runs of blank lines:\n%q", res.SystemPrompt)
	}
	if strings.HasPrefix(res.SystemPrompt, "\n") || strings.HasSuffix(res.SystemPrompt, "\n") {
		t.Error("output not trimmed")
	}
}

func TestBuildForParentSelectsTemplate(t *testing.T) {
	onUser, err := BuildForParent(model.TypeUser, baseVars())
	if err != nil {
		t.Fatalf("BuildForParent(user) failed: %v", err)
	}
	onChatMate, err := BuildForParent(model.TypeChatMate, baseVars())
	if err != nil {
		t.Fatalf("BuildForParent(chat-mate) failed: %v", err)
	}

	if onUser.SystemPrompt == onChatMate.SystemPrompt {
		t.Error("parent type did not change the selected template")
	}
	if !strings.Contains(onUser.SystemPrompt, "learner just wrote") {
		t.Error("user-parent prompt is not the review template")
	}
	if !strings.Contains(onChatMate.SystemPrompt, "native speaker's latest reply") {
		t.Error("chat-mate-parent prompt is not the explanation template")
	}
}

func TestBuildTitle(t *testing.T) {
	res, err := BuildTitle(baseVars())
	if err != nil {
		t.Fatalf("BuildTitle failed: %v", err)
	}
	if strings.ContainsAny(res.SystemPrompt, "{}") {
		t.Errorf("title prompt contains unresolved braces:\n%s", res.SystemPrompt)
	}
	if !strings.Contains(res.SystemPrompt, "Swedish") {
		t.Errorf("target language not substituted: %q", res.SystemPrompt)
	}
}

func TestResolveDefaultsFeedbackLanguage(t *testing.T) {
	res, err := Build(model.TypeEditorMate, baseVars())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if res.ResolvedVariables["feedbackLanguage"] != "English" {
		t.Errorf("feedback language default = %q, want English", res.ResolvedVariables["feedbackLanguage"])
	}
	if !strings.Contains(res.SystemPrompt, "English") {
		t.Error("default feedback language not substituted into prompt")
	}
}

func TestStyleFragments(t *testing.T) {
	for _, style := range []model.FeedbackStyle{
		model.FeedbackEncouraging, model.FeedbackDirect, model.FeedbackDetailed,
	} {
		vars := baseVars()
		vars.FeedbackStyle = style
		res, err := Build(model.TypeEditorMate, vars)
		if err != nil {
			t.Fatalf("Build(%s) failed: %v", style, err)
		}
		if res.ResolvedVariables["feedbackStyle"] == "" {
			t.Errorf("style %s resolved to empty fragment", style)
		}
	}
}
