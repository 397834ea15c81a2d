package scheduler

import (
	"strings"

	"postpilot/internal/document"
)

// ComposeCaption builds the caption the provider receives: the draft text,
// then its hashtag list on a separate block. Hashtag normalization against
// the provider limit happens in the publisher.
func ComposeCaption(draft document.PostDraft) string {
	caption := strings.TrimSpace(draft.Caption)
	if len(draft.Hashtags) == 0 {
		return caption
	}

	tags := make([]string, 0, len(draft.Hashtags))
	for _, tag := range draft.Hashtags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		return caption
	}
	if caption == "" {
		return strings.Join(tags, " ")
	}
	return caption + "\n\n" + strings.Join(tags, " ")
}
