package clients

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/pwnholic/invsnap/internal"
	"golang.org/x/image/webp"
	"resty.dev/v3"
)

type clientRequest struct {
	Client *resty.Client
	logger *internal.Logger
}

type HTTPClientOptions struct {
	RetryCount       int
	RetryWaitTime    time.Duration
	RetryMaxWaitTime time.Duration
	TimeOut          time.Duration
	UserAgent        string
}

func DefaultHTTPClientOptions() *HTTPClientOptions {
	return &HTTPClientOptions{
		RetryCount:       2,
		RetryWaitTime:    500 * time.Millisecond,
		RetryMaxWaitTime: 3 * time.Second,
		TimeOut:          15 * time.Second,
		UserAgent:        "invsnap/1.0",
	}
}

func NewClientRequest(t *HTTPClientOptions, logger *internal.Logger) *clientRequest {
	if t == nil {
		t = DefaultHTTPClientOptions()
	}
	if logger == nil {
		logger = internal.GetDefaultLogger()
	}
	client := resty.New().
		SetRetryCount(t.RetryCount).
		SetRetryWaitTime(t.RetryWaitTime).
		SetRetryMaxWaitTime(t.RetryMaxWaitTime).
		SetTimeout(t.TimeOut).
		SetHeader("User-Agent", t.UserAgent)

	return &clientRequest{
		Client: client,
		logger: logger,
	}
}

func (c *clientRequest) Close() error {
	return c.Client.Close()
}

func statusCode(resp *resty.Response) (bool, string) {
	switch resp.StatusCode() {
	case http.StatusTooManyRequests:
		return true, "Too Many Requests (429)"
	case http.StatusForbidden:
		return true, "Forbidden (403)"
	case http.StatusServiceUnavailable:
		return true, "Service Unavailable (503)"
	}
	return false, ""
}

func completeURL(inputURL, defaultHost string) (string, error) {
	if inputURL == "" {
		return "", fmt.Errorf("URL cannot be empty")
	}
	parsedURL, err := url.Parse(inputURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.IsAbs() {
		return inputURL, nil
	}
	if defaultHost == "" {
		return "", fmt.Errorf("host needed for relative url %q", inputURL)
	}
	defaultURL, err := url.Parse(defaultHost)
	if err != nil {
		return "", fmt.Errorf("invalid default host: %w", err)
	}
	if defaultURL.Scheme == "" {
		defaultURL.Scheme = "https"
	}
	return defaultURL.ResolveReference(parsedURL).String(), nil
}

func imageExtension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
}

// FetchImage downloads an image. WebP is converted to PNG so every
// rasterizer and PDF engine can use the result.
func (c *clientRequest) FetchImage(ctx context.Context, imgLink string) (*Resource, error) {
	resp, err := c.Client.R().SetContext(ctx).Get(imgLink)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if blocked, reason := statusCode(resp); blocked {
		c.logger.Warn("BLOCKED: %s %s", imgLink, reason)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("failed to fetch image %s: status %d", imgLink, resp.StatusCode())
	}

	buff := new(bytes.Buffer)
	if _, err := buff.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if buff.Len() == 0 {
		return nil, fmt.Errorf("empty image body from %s", imgLink)
	}

	contentType := resp.Header().Get("Content-Type")
	if mediaType, _, ok := strings.Cut(contentType, ";"); ok {
		contentType = mediaType
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(buff.Bytes())
	}

	if contentType == "image/webp" || imageExtension(imgLink) == "webp" {
		img, err := webp.Decode(buff)
		if err != nil {
			return nil, fmt.Errorf("failed to decode webp image: %w", err)
		}
		outputBuff := new(bytes.Buffer)
		if err := png.Encode(outputBuff, img); err != nil {
			return nil, fmt.Errorf("failed to encode image: %w", err)
		}
		c.logger.Debug("converted webp %s to png", imgLink)
		return &Resource{URL: imgLink, ContentType: "image/png", Data: outputBuff.Bytes()}, nil
	}

	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%s is not an image (%s)", imgLink, contentType)
	}
	return &Resource{URL: imgLink, ContentType: contentType, Data: buff.Bytes()}, nil
}
