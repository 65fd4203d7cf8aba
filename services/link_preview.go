package services

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"

	"social-publisher-platform/models"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// previewClient fetches preview pages with a tight budget; a slow target
// site must not hold up composing.
var previewClient = &http.Client{
	Timeout: 10 * time.Second,
	Transport: &http.Transport{
		DisableCompression: true, // we negotiate and decode ourselves
	},
}

const maxPreviewBody = 512 * 1024

// LinkPreview is the OpenGraph summary of the first URL in a post.
type LinkPreview struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

// ExtractFirstURL returns the first absolute URL in the content, or "".
func ExtractFirstURL(content string) string {
	match := urlPattern.FindString(content)
	if match == "" {
		return ""
	}
	if _, err := url.Parse(match); err != nil {
		return ""
	}
	return match
}

// FetchLinkPreview fetches the first URL in the post content and extracts
// its OpenGraph title, description and image for the composer preview.
func FetchLinkPreview(ctx context.Context, content string) (*LinkPreview, error) {
	target := ExtractFirstURL(content)
	if target == "" {
		return nil, fmt.Errorf("no URL in content")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build preview request: %w", err)
	}
	req.Header.Set("Accept-Encoding", "gzip, br")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; social-publisher/1.0)")

	resp, err := previewClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch preview: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("preview target returned %d", resp.StatusCode)
	}

	var body io.Reader = io.LimitReader(resp.Body, maxPreviewBody)
	switch resp.Header.Get("Content-Encoding") {
	case "br":
		body = brotli.NewReader(body)
	case "gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		body = gz
	}

	// Normalize to UTF-8 before parsing; preview targets are not always
	// well-behaved about declaring their charset.
	utf8Body, err := charset.NewReader(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("charset decode: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(utf8Body)
	if err != nil {
		return nil, fmt.Errorf("parse preview page: %w", err)
	}

	return previewFromDocument(doc, target), nil
}

func previewFromDocument(doc *goquery.Document, target string) *LinkPreview {
	preview := &LinkPreview{URL: target}

	preview.Title = metaProperty(doc, "og:title")
	if preview.Title == "" {
		preview.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	preview.Description = metaProperty(doc, "og:description")
	if preview.Description == "" {
		if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
			preview.Description = strings.TrimSpace(desc)
		}
	}

	preview.Image = metaProperty(doc, "og:image")
	return preview
}

func metaProperty(doc *goquery.Document, property string) string {
	if content, ok := doc.Find(fmt.Sprintf(`meta[property=%q]`, property)).Attr("content"); ok {
		return strings.TrimSpace(content)
	}
	return ""
}

// Metadata converts the preview into the post metadata keys the authoring
// API stores.
func (p *LinkPreview) Metadata() map[string]string {
	meta := map[string]string{models.MetaPreviewURL: p.URL}
	if p.Title != "" {
		meta[models.MetaPreviewTitle] = p.Title
	}
	if p.Description != "" {
		meta[models.MetaPreviewDescription] = p.Description
	}
	if p.Image != "" {
		meta[models.MetaPreviewImage] = p.Image
	}
	return meta
}
