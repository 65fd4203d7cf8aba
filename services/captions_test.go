package services

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSuggestCaptionDisabledWithoutKey(t *testing.T) {
	cs, err := NewCaptionService(context.Background(), "")
	if err != nil {
		t.Fatalf("NewCaptionService: %v", err)
	}
	if cs.Enabled() {
		t.Fatal("service without an API key should be disabled")
	}

	_, err = cs.SuggestCaption(context.Background(), &CaptionRequest{Platform: "twitter", Topic: "launch day"})
	if !errors.Is(err, ErrCaptionsDisabled) {
		t.Fatalf("expected ErrCaptionsDisabled, got %v", err)
	}
}

func TestParseCaptionResponseSplitsHashtagLine(t *testing.T) {
	text := "Big news dropping today. Stay tuned!\nHASHTAGS: #launch product #DevLife"
	resp := parseCaptionResponse(text, true)

	if resp.Caption != "Big news dropping today. Stay tuned!" {
		t.Fatalf("unexpected caption: %q", resp.Caption)
	}
	want := []string{"#launch", "#product", "#DevLife"}
	if len(resp.Hashtags) != len(want) {
		t.Fatalf("expected %d hashtags, got %v", len(want), resp.Hashtags)
	}
	for i, tag := range want {
		if resp.Hashtags[i] != tag {
			t.Fatalf("hashtag %d: expected %q, got %q", i, tag, resp.Hashtags[i])
		}
	}
}

func TestParseCaptionResponseWithoutHashtagLine(t *testing.T) {
	text := "Just the caption, nothing else."
	resp := parseCaptionResponse(text, true)
	if resp.Caption != text {
		t.Fatalf("unexpected caption: %q", resp.Caption)
	}
	if len(resp.Hashtags) != 0 {
		t.Fatalf("expected no hashtags, got %v", resp.Hashtags)
	}
}

func TestParseCaptionResponseIgnoresHashtagsWhenNotRequested(t *testing.T) {
	text := "Caption body\nHASHTAGS: #ignored"
	resp := parseCaptionResponse(text, false)
	if resp.Caption != text {
		t.Fatalf("caption should be untouched, got %q", resp.Caption)
	}
	if resp.Hashtags != nil {
		t.Fatalf("expected nil hashtags, got %v", resp.Hashtags)
	}
}

func TestBuildCaptionPromptIncludesPlatformBudget(t *testing.T) {
	prompt := buildCaptionPrompt(&CaptionRequest{Platform: "twitter", Topic: "coffee", Tone: "playful", Hashtags: true})
	for _, fragment := range []string{"twitter", "coffee", "280 characters", "playful", "HASHTAGS:"} {
		if !strings.Contains(prompt, fragment) {
			t.Fatalf("prompt missing %q:\n%s", fragment, prompt)
		}
	}
}
