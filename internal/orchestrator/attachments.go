// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"regexp"
	"strings"

	"github.com/lingomate/lingomate/internal/model"
)

// imageURLPattern matches inline links to hosted images. Matching URLs are
// promoted to attachment entries instead of travelling as literal text.
var imageURLPattern = regexp.MustCompile(`(?i)https?://\S+\.(?:png|jpe?g|gif|webp)(?:\?\S*)?`)

// spacesPattern collapses the whitespace gaps left behind by extraction.
var spacesPattern = regexp.MustCompile(`[ \t]{2,}`)

// ExtractAttachments pulls inline image URLs out of raw input text and
// returns the cleaned text plus the extracted attachment list.
func ExtractAttachments(text string) (string, []model.Attachment) {
	matches := imageURLPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	attachments := make([]model.Attachment, 0, len(matches))
	for _, u := range matches {
		attachments = append(attachments, model.Attachment{
			Kind: model.AttachmentImage,
			URL:  u,
		})
	}

	cleaned := imageURLPattern.ReplaceAllString(text, "")
	cleaned = spacesPattern.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned), attachments
}
