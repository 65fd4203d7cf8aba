package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"social-publisher-platform/internal/platform"
	"social-publisher-platform/models"
)

// ErrCaptionsDisabled is returned when no Gemini API key is configured.
// Caption assistance is optional; publishing works without it.
var ErrCaptionsDisabled = errors.New("caption assistant is not configured")

// Per-platform character budgets the prompt asks the model to respect.
var captionLimits = map[string]int{
	models.PlatformTwitter:   280,
	models.PlatformInstagram: 2200,
	models.PlatformFacebook:  5000,
	models.PlatformTikTok:    2200,
	models.PlatformYouTube:   5000,
}

// CaptionRequest asks for a caption suggestion for a platform.
type CaptionRequest struct {
	Platform string `json:"platform" binding:"required"`
	Topic    string `json:"topic" binding:"required"`
	Tone     string `json:"tone,omitempty"`
	Hashtags bool   `json:"hashtags,omitempty"`
}

// CaptionResponse is the generated suggestion.
type CaptionResponse struct {
	Caption  string   `json:"caption"`
	Hashtags []string `json:"hashtags,omitempty"`
}

// CaptionService generates caption and hashtag suggestions for the
// composer. All calls go through the shared guard so a degraded model API
// cannot starve the process.
type CaptionService struct {
	client *genai.Client
	guard  *platform.Guard
}

// NewCaptionService builds the assistant, or a disabled one when apiKey is
// empty.
func NewCaptionService(ctx context.Context, apiKey string) (*CaptionService, error) {
	if apiKey == "" {
		return &CaptionService{}, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &CaptionService{
		client: client,
		guard:  platform.NewGuard("captions", 0.15, 2),
	}, nil
}

// Enabled reports whether caption assistance is configured.
func (cs *CaptionService) Enabled() bool {
	return cs.client != nil
}

// SuggestCaption generates one caption for the requested platform.
func (cs *CaptionService) SuggestCaption(ctx context.Context, req *CaptionRequest) (*CaptionResponse, error) {
	if cs.client == nil {
		return nil, ErrCaptionsDisabled
	}
	if !models.ValidPlatform(req.Platform) {
		return nil, fmt.Errorf("unsupported platform: %s", req.Platform)
	}

	tracer := otel.Tracer("caption-service")
	ctx, span := tracer.Start(ctx, "captions.suggest")
	defer span.End()
	span.SetAttributes(
		attribute.String("captions.platform", req.Platform),
		attribute.String("captions.model", "gemini-2.0-flash"),
	)

	out, err := cs.guard.Do(ctx, func() (interface{}, error) {
		model := cs.client.GenerativeModel("gemini-2.0-flash")
		model.SetTemperature(0.8)
		model.SetMaxOutputTokens(1024)

		resp, err := model.GenerateContent(ctx, genai.Text(buildCaptionPrompt(req)))
		if err != nil {
			return nil, err
		}
		return extractText(resp), nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("captions.error", true))
		return nil, fmt.Errorf("generate caption: %w", err)
	}
	text, _ := out.(string)
	if text == "" {
		return nil, errors.New("model returned no caption")
	}

	return parseCaptionResponse(text, req.Hashtags), nil
}

// Close releases the underlying client.
func (cs *CaptionService) Close() error {
	if cs.client != nil {
		return cs.client.Close()
	}
	return nil
}

func buildCaptionPrompt(req *CaptionRequest) string {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Write a social media caption for %s about: %s\n", req.Platform, req.Topic)

	if limit, ok := captionLimits[req.Platform]; ok {
		fmt.Fprintf(&prompt, "The caption must be under %d characters.\n", limit)
	}
	if req.Tone != "" {
		fmt.Fprintf(&prompt, "Use a %s tone.\n", req.Tone)
	}
	if req.Hashtags {
		prompt.WriteString("After the caption, add a final line starting with HASHTAGS: followed by 3-5 relevant hashtags.\n")
	} else {
		prompt.WriteString("Do not include hashtags.\n")
	}
	prompt.WriteString("Respond with the caption text only, no preamble or explanation.")
	return prompt.String()
}

func extractText(resp *genai.GenerateContentResponse) string {
	var out strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				out.WriteString(string(text))
			}
		}
		break
	}
	return strings.TrimSpace(out.String())
}

// parseCaptionResponse splits the optional trailing HASHTAGS: line off the
// caption body.
func parseCaptionResponse(text string, wantHashtags bool) *CaptionResponse {
	resp := &CaptionResponse{Caption: text}
	if !wantHashtags {
		return resp
	}

	idx := strings.LastIndex(text, "HASHTAGS:")
	if idx < 0 {
		return resp
	}

	resp.Caption = strings.TrimSpace(text[:idx])
	for _, tag := range strings.Fields(text[idx+len("HASHTAGS:"):]) {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		resp.Hashtags = append(resp.Hashtags, tag)
	}
	return resp
}
