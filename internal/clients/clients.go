// Package clients fetches the cross-origin images an invoice refers to.
package clients

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pwnholic/invsnap/internal"
	"golang.org/x/sync/errgroup"
)

// Inliner rewrites remote image URLs into data URIs.
type Inliner struct {
	Request *clientRequest
	// BaseURL resolves protocol-relative and relative sources.
	BaseURL string
	// MaxConcurrent bounds parallel fetches in InlineAll.
	MaxConcurrent int
}

func NewInliner(t *HTTPClientOptions, logger *internal.Logger) *Inliner {
	return &Inliner{
		Request:       NewClientRequest(t, logger),
		BaseURL:       "https://localhost/",
		MaxConcurrent: 4,
	}
}

func (in *Inliner) Close() error {
	return in.Request.Close()
}

// Inline returns src as a data URI. data: sources are returned unchanged.
func (in *Inliner) Inline(ctx context.Context, src string) (string, error) {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(src)), "data:") {
		return src, nil
	}
	link, err := completeURL(strings.TrimSpace(src), in.BaseURL)
	if err != nil {
		return "", err
	}
	res, err := in.Request.FetchImage(ctx, link)
	if err != nil {
		return "", err
	}
	return res.DataURI(), nil
}

// InlineAll inlines every distinct source. The first failure cancels the
// remaining fetches.
func (in *Inliner) InlineAll(ctx context.Context, srcs []string) (map[string]string, error) {
	g, ctx := errgroup.WithContext(ctx)
	limit := in.MaxConcurrent
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	var (
		mu  sync.Mutex
		out = make(map[string]string, len(srcs))
	)
	seen := make(map[string]bool, len(srcs))
	for _, src := range srcs {
		if seen[src] {
			continue
		}
		seen[src] = true
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			uri, err := in.Inline(ctx, src)
			if err != nil {
				return fmt.Errorf("error inlining %s: %w", src, err)
			}
			mu.Lock()
			out[src] = uri
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
