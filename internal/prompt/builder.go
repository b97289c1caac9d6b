// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package prompt builds the system instructions sent to the model.
package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lingomate/lingomate/internal/model"
)

// =============================================================================
// VARIABLES
// =============================================================================

// Variables is the structured bag of substitution values for a template.
// TargetLanguage is required; everything else is optional.
type Variables struct {
	TargetLanguage        string
	ChatMatePersonality   string
	EditorMatePersonality string
	FeedbackStyle         model.FeedbackStyle
	FeedbackLanguage      string
	ProficiencyLevel      string
	CulturalContext       bool
	ProgressiveComplexity bool
}

// Result is the output of a build: the final instruction text plus the
// resolved variable map that was substituted into it.
type Result struct {
	SystemPrompt      string
	ResolvedVariables map[string]string
}

// =============================================================================
// CONFIGURATION ERROR
// =============================================================================

// ConfigurationError indicates a required variable was missing.
// It fails fast before any network call.
type ConfigurationError struct {
	Field string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: missing required variable %q", e.Field)
}

// Is implements errors.Is support.
func (e *ConfigurationError) Is(target error) bool {
	t, ok := target.(*ConfigurationError)
	if !ok {
		return false
	}
	return t.Field == "" || t.Field == e.Field
}

// =============================================================================
// BUILD
// =============================================================================

// placeholderPattern matches {placeholderName} tokens in a template.
var placeholderPattern = regexp.MustCompile(`\{[a-zA-Z][a-zA-Z0-9_]*\}`)

// residualPattern matches any leftover brace-delimited token, including
// malformed ones a custom template may carry, e.g. {foo-bar} or { }.
var residualPattern = regexp.MustCompile(`\{[^{}]*\}`)

// braceStripper removes stray unmatched braces.
var braceStripper = strings.NewReplacer("{", "", "}", "")

// blankLinePattern matches runs of two or more consecutive blank lines.
var blankLinePattern = regexp.MustCompile(`\n[ \t]*\n([ \t]*\n)+`)

// Build selects the template for the given message type and substitutes the
// variables into it. Placeholders with no supplied value are replaced with
// the empty string; the output never contains unresolved {...} tokens.
func Build(t model.MessageType, vars Variables) (*Result, error) {
	tmpl, ok := templates[t]
	if !ok {
		return nil, fmt.Errorf("no template for message type %q", t)
	}
	return BuildCustom(tmpl, vars)
}

// BuildForParent selects the Editor Mate template by what the comment is
// about: a user message or a Chat Mate reply.
func BuildForParent(parentType model.MessageType, vars Variables) (*Result, error) {
	if parentType == model.TypeChatMate {
		return BuildCustom(editorMateChatMateTemplate, vars)
	}
	return BuildCustom(editorMateUserTemplate, vars)
}

// BuildTitle builds the conversation-title instruction.
func BuildTitle(vars Variables) (*Result, error) {
	return BuildCustom(titleTemplate, vars)
}

// BuildCustom substitutes variables into a caller-supplied raw template.
// Pure and deterministic; identical inputs yield identical output.
func BuildCustom(template string, vars Variables) (*Result, error) {
	if strings.TrimSpace(vars.TargetLanguage) == "" {
		return nil, &ConfigurationError{Field: "targetLanguage"}
	}

	resolved := vars.resolve()

	out := placeholderPattern.ReplaceAllStringFunc(template, func(tok string) string {
		name := tok[1 : len(tok)-1]
		return resolved[name]
	})

	// The output must never contain braces, whatever the template held.
	out = residualPattern.ReplaceAllString(out, "")
	out = braceStripper.Replace(out)

	// Collapse 2+ consecutive blank lines into exactly one blank line.
	out = blankLinePattern.ReplaceAllString(out, "\n\n")
	out = strings.TrimSpace(out)

	return &Result{SystemPrompt: out, ResolvedVariables: resolved}, nil
}

// resolve flattens the variable bag into the substitution map. Optional
// fields that compose into prose resolve to whole fragments so that absent
// values leave no dangling connectives behind.
func (v Variables) resolve() map[string]string {
	resolved := map[string]string{
		"targetLanguage":        v.TargetLanguage,
		"chatMatePersonality":   v.ChatMatePersonality,
		"editorMatePersonality": v.EditorMatePersonality,
	}

	feedbackLang := v.FeedbackLanguage
	if feedbackLang == "" {
		feedbackLang = "English"
	}
	resolved["feedbackLanguage"] = feedbackLang

	if v.FeedbackStyle.IsValid() {
		resolved["feedbackStyle"] = styleFragments[v.FeedbackStyle]
	}

	if v.ProficiencyLevel != "" {
		resolved["proficiencyNote"] = "The learner's proficiency level is " + v.ProficiencyLevel + "."
	}

	if v.CulturalContext {
		resolved["culturalContext"] = "Weave in cultural context: idioms, customs, and how native speakers actually phrase things."
	}

	if v.ProgressiveComplexity {
		resolved["progressiveComplexity"] = "Start simple and gradually increase the complexity of your language as the conversation develops."
	}

	return resolved
}

// styleFragments maps feedback styles to instruction fragments.
var styleFragments = map[model.FeedbackStyle]string{
	model.FeedbackEncouraging: "Keep feedback warm and encouraging; lead with what the learner got right.",
	model.FeedbackDirect:      "Keep feedback short and direct; correct mistakes plainly without padding.",
	model.FeedbackDetailed:    "Give detailed feedback: explain the grammar behind each correction with examples.",
}
