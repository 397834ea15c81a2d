package scheduler

import (
	"testing"

	"postpilot/internal/document"
)

func TestComposeCaption(t *testing.T) {
	draft := document.PostDraft{
		Caption:  "harbour at dusk",
		Hashtags: []string{"#harbour", "dusk", " ", "#golden"},
	}
	got := ComposeCaption(draft)
	want := "harbour at dusk\n\n#harbour #dusk #golden"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestComposeCaptionNoHashtags(t *testing.T) {
	draft := document.PostDraft{Caption: "  just text  "}
	if got := ComposeCaption(draft); got != "just text" {
		t.Fatalf("got %q", got)
	}
}

func TestComposeCaptionHashtagsOnly(t *testing.T) {
	draft := document.PostDraft{Hashtags: []string{"solo"}}
	if got := ComposeCaption(draft); got != "#solo" {
		t.Fatalf("got %q", got)
	}
}
