package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// apiClient is the shared HTTP plumbing for the thin platform clients.
// Every request inherits the caller's context deadline; the client-level
// timeout is a backstop for callers that forget one.
var apiClient = &http.Client{Timeout: 90 * time.Second}

func doJSON(ctx context.Context, method, rawURL string, headers map[string]string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return Permanent("build request", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := apiClient.Do(req)
	if err != nil {
		return Transient("platform request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Transient("read platform response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return Permanent("decode platform response", err)
		}
	}
	return nil
}

func postJSON(ctx context.Context, rawURL string, headers map[string]string, payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return Permanent("encode request payload", err)
	}
	if headers == nil {
		headers = map[string]string{}
	}
	headers["Content-Type"] = "application/json"
	return doJSON(ctx, http.MethodPost, rawURL, headers, bytes.NewReader(data), out)
}

func postForm(ctx context.Context, rawURL string, headers map[string]string, form url.Values, out interface{}) error {
	if headers == nil {
		headers = map[string]string{}
	}
	headers["Content-Type"] = "application/x-www-form-urlencoded"
	return doJSON(ctx, http.MethodPost, rawURL, headers, strings.NewReader(form.Encode()), out)
}

func getJSON(ctx context.Context, rawURL string, headers map[string]string, out interface{}) error {
	return doJSON(ctx, http.MethodGet, rawURL, headers, nil, out)
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
