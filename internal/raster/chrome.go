package raster

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/pwnholic/invsnap/internal"
	"github.com/pwnholic/invsnap/internal/snapshot"
)

// CaptureSelector locates the subtree inside the standalone document.
const CaptureSelector = "body > :first-child"

// Chrome captures through a headless Chrome started for each capture.
type Chrome struct {
	// ExecPath overrides chromedp's browser lookup when set.
	ExecPath string
	Logger   *internal.Logger
}

func NewChrome(execPath string, logger *internal.Logger) *Chrome {
	if logger == nil {
		logger = internal.GetDefaultLogger()
	}
	return &Chrome{ExecPath: execPath, Logger: logger}
}

func (c *Chrome) Capture(ctx context.Context, root *goquery.Selection, opts Options) (*Bitmap, error) {
	if root == nil || root.Length() == 0 {
		return nil, fmt.Errorf("nothing to capture")
	}
	document, err := Standalone(root)
	if err != nil {
		return nil, err
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, c.allocatorOptions(opts)...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx, c.contextOptions(opts)...)
	defer cancelTask()

	var (
		buf    []byte
		loaded bool
	)
	err = chromedp.Run(taskCtx,
		chromedp.EmulateViewport(opts.ViewportWidth, 800),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, document).Do(ctx)
		}),
		chromedp.WaitReady(CaptureSelector, chromedp.ByQuery),
		chromedp.Poll(`Array.from(document.images).every(img => img.complete)`, &loaded),
		chromedp.ScreenshotScale(CaptureSelector, opts.Scale, &buf, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome capture failed: %w", err)
	}

	bitmap, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("captured %dx%d at scale %g", bitmap.Width, bitmap.Height, opts.Scale)
	return bitmap, nil
}

func (c *Chrome) allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	options := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	options = append(options, chromedp.WindowSize(int(opts.ViewportWidth), 800))
	if opts.AllowCrossOrigin {
		options = append(options, chromedp.Flag("disable-web-security", true))
	}
	if c.ExecPath != "" {
		options = append(options, chromedp.ExecPath(c.ExecPath))
	}
	return options
}

func (c *Chrome) contextOptions(opts Options) []chromedp.ContextOption {
	if opts.Quiet {
		discard := func(string, ...any) {}
		return []chromedp.ContextOption{
			chromedp.WithLogf(discard),
			chromedp.WithDebugf(discard),
			chromedp.WithErrorf(discard),
		}
	}
	return []chromedp.ContextOption{
		chromedp.WithLogf(c.Logger.Debug),
		chromedp.WithErrorf(c.Logger.Warn),
	}
}

// Standalone wraps root's markup in a minimal document. The body carries
// the properties root inherits from its ancestors, so the copy renders with
// the fonts and colours of the live view. The source title is kept.
func Standalone(root *goquery.Selection) (string, error) {
	if root.Length() == 0 {
		return "", fmt.Errorf("nothing to capture")
	}
	fragment, err := goquery.OuterHtml(root.First())
	if err != nil {
		return "", fmt.Errorf("failed to serialize subtree: %w", err)
	}
	title := strings.TrimSpace(root.Parents().Last().Find("head > title").First().Text())
	inherited := snapshot.InheritedStyle(root.Get(0), snapshot.CascadeResolver{})

	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8">`)
	if title != "" {
		b.WriteString("<title>" + html.EscapeString(title) + "</title>")
	}
	b.WriteString(`<style>html,body{margin:0;padding:0;background:#ffffff}</style></head>`)
	if inherited != "" {
		b.WriteString(`<body style="` + html.EscapeString(inherited) + `">`)
	} else {
		b.WriteString(`<body>`)
	}
	b.WriteString(fragment)
	b.WriteString(`</body></html>`)
	return b.String(), nil
}
