package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractFirstURL(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain url", "check out https://example.com/post today", "https://example.com/post"},
		{"first of many", "https://first.example.com and https://second.example.com", "https://first.example.com"},
		{"http scheme", "see http://example.org", "http://example.org"},
		{"no url", "nothing to see here", ""},
		{"scheme only elsewhere", "ftp://example.com is not ours", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractFirstURL(tc.content); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestFetchLinkPreviewOpenGraph(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head>
			<title>Fallback Title</title>
			<meta property="og:title" content="Launch Announcement">
			<meta property="og:description" content="We shipped the thing.">
			<meta property="og:image" content="https://cdn.example.com/launch.png">
		</head><body></body></html>`))
	}))
	defer srv.Close()

	preview, err := FetchLinkPreview(context.Background(), "read more at "+srv.URL)
	if err != nil {
		t.Fatalf("FetchLinkPreview: %v", err)
	}
	if preview.Title != "Launch Announcement" {
		t.Fatalf("unexpected title: %q", preview.Title)
	}
	if preview.Description != "We shipped the thing." {
		t.Fatalf("unexpected description: %q", preview.Description)
	}
	if preview.Image != "https://cdn.example.com/launch.png" {
		t.Fatalf("unexpected image: %q", preview.Image)
	}
}

func TestFetchLinkPreviewFallsBackToTitleTag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head>
			<title>Plain Page</title>
			<meta name="description" content="A page without OpenGraph tags.">
		</head><body></body></html>`))
	}))
	defer srv.Close()

	preview, err := FetchLinkPreview(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchLinkPreview: %v", err)
	}
	if preview.Title != "Plain Page" {
		t.Fatalf("unexpected title: %q", preview.Title)
	}
	if preview.Description != "A page without OpenGraph tags." {
		t.Fatalf("unexpected description: %q", preview.Description)
	}
	if preview.Image != "" {
		t.Fatalf("expected no image, got %q", preview.Image)
	}
}

func TestFetchLinkPreviewRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := FetchLinkPreview(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 404 target")
	}
}

func TestFetchLinkPreviewNoURL(t *testing.T) {
	if _, err := FetchLinkPreview(context.Background(), "no links here"); err == nil {
		t.Fatal("expected error when content has no URL")
	}
}

func TestLinkPreviewMetadata(t *testing.T) {
	p := &LinkPreview{
		URL:         "https://example.com",
		Title:       "Title",
		Description: "Desc",
	}
	meta := p.Metadata()
	if meta["preview_url"] != "https://example.com" {
		t.Fatalf("unexpected url: %q", meta["preview_url"])
	}
	if meta["preview_title"] != "Title" || meta["preview_description"] != "Desc" {
		t.Fatalf("unexpected metadata: %v", meta)
	}
	if _, ok := meta["preview_image"]; ok {
		t.Fatal("empty image should be omitted")
	}
}
