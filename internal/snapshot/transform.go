// Package snapshot swaps the interactive controls of a rendered view for
// static look-alikes and puts them back afterwards.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aymerick/douceur/css"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ControlSelector matches every element that must not reach the capture as is.
const ControlSelector = "input, textarea, select, button, [data-snapshot=omit]"

var ErrEmptyRoot = errors.New("snapshot root is empty")

// ResourceInliner turns remote image URLs into data URIs so the capture
// does not depend on cross-origin loads. The result maps each src to its
// replacement.
type ResourceInliner interface {
	InlineAll(ctx context.Context, srcs []string) (map[string]string, error)
}

type Transformer struct {
	Resolver StyleResolver
	Inliner  ResourceInliner
}

type Option func(*Transformer)

func WithResolver(r StyleResolver) Option {
	return func(t *Transformer) { t.Resolver = r }
}

func WithInliner(i ResourceInliner) Option {
	return func(t *Transformer) { t.Inliner = i }
}

func NewTransformer(opts ...Option) *Transformer {
	t := &Transformer{Resolver: CascadeResolver{}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type swap struct {
	original    *html.Node
	replacement *html.Node
	parent      *html.Node
	next        *html.Node
}

type attrSwap struct {
	node     *html.Node
	key      string
	original string
}

// Record is everything needed to undo a transform.
type Record struct {
	swaps    []swap
	attrs    []attrSwap
	restored bool
}

// Len is the number of swapped elements.
func (r *Record) Len() int {
	return len(r.swaps)
}

// Restore puts every original node back where it was, last swap first.
// Calling it again does nothing.
func (r *Record) Restore() {
	if r.restored {
		return
	}
	r.restored = true

	for i := len(r.attrs) - 1; i >= 0; i-- {
		a := r.attrs[i]
		setAttr(a.node, a.key, a.original)
	}
	for i := len(r.swaps) - 1; i >= 0; i-- {
		s := r.swaps[i]
		if p := s.replacement.Parent; p != nil {
			p.InsertBefore(s.original, s.replacement)
			p.RemoveChild(s.replacement)
			continue
		}
		next := s.next
		if next != nil && next.Parent != s.parent {
			next = nil
		}
		s.parent.InsertBefore(s.original, next)
	}
}

// Transform replaces the controls under root. Styles are resolved for every
// control before the first swap. If inlining fails the tree is restored
// before the error is returned.
func (t *Transformer) Transform(ctx context.Context, root *goquery.Selection) (*Record, error) {
	if root == nil || root.Length() == 0 {
		return nil, ErrEmptyRoot
	}

	controls := root.Find(ControlSelector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsUntilSelection(root).Filter(ControlSelector).Length() == 0
	})

	replacements := make([]*html.Node, len(controls.Nodes))
	for i, n := range controls.Nodes {
		replacements[i] = t.replacement(n)
	}

	rec := &Record{}
	for i, n := range controls.Nodes {
		parent, next := n.Parent, n.NextSibling
		parent.InsertBefore(replacements[i], n)
		parent.RemoveChild(n)
		rec.swaps = append(rec.swaps, swap{original: n, replacement: replacements[i], parent: parent, next: next})
	}

	if err := t.inline(ctx, root, rec); err != nil {
		rec.Restore()
		return nil, err
	}
	return rec, nil
}

// Scope transforms root, runs fn and restores the tree on every exit path,
// panics included.
func (t *Transformer) Scope(ctx context.Context, root *goquery.Selection, fn func(ctx context.Context) error) error {
	rec, err := t.Transform(ctx, root)
	if err != nil {
		return err
	}
	defer rec.Restore()
	return fn(ctx)
}

func (t *Transformer) inline(ctx context.Context, root *goquery.Selection, rec *Record) error {
	if t.Inliner == nil {
		return nil
	}
	var (
		nodes []*html.Node
		srcs  []string
	)
	root.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if isRemote(src) {
			nodes = append(nodes, s.Nodes[0])
			srcs = append(srcs, src)
		}
	})
	if len(srcs) == 0 {
		return nil
	}

	inlined, err := t.Inliner.InlineAll(ctx, srcs)
	if err != nil {
		return fmt.Errorf("failed to inline images: %w", err)
	}
	for i, n := range nodes {
		uri, ok := inlined[srcs[i]]
		if !ok {
			continue
		}
		rec.attrs = append(rec.attrs, attrSwap{node: n, key: "src", original: srcs[i]})
		setAttr(n, "src", uri)
	}
	return nil
}

func isRemote(src string) bool {
	lower := strings.ToLower(strings.TrimSpace(src))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "//")
}

func (t *Transformer) replacement(n *html.Node) *html.Node {
	span := &html.Node{Type: html.ElementNode, Data: "span", DataAtom: atom.Span}
	if isOmitted(n) {
		span.Attr = []html.Attribute{{Key: "style", Val: "display: none"}}
		return span
	}

	computed := t.Resolver.Resolve(n)
	decls := ParseInline(attr(n, "style"))
	for _, prop := range CopiedProperties {
		decls = setDeclaration(decls, prop, computed[prop])
	}
	for _, prop := range declaredOnlyProperties {
		if v, ok := computed[prop]; ok && v != "" {
			decls = setDeclaration(decls, prop, v)
		}
	}
	span.Attr = []html.Attribute{{Key: "style", Val: serialize(decls)}}

	if text := fieldText(n); text != "" {
		span.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	return span
}

func isOmitted(n *html.Node) bool {
	if n.Data == "button" || attr(n, "data-snapshot") == "omit" {
		return true
	}
	if n.Data == "input" {
		switch strings.ToLower(attr(n, "type")) {
		case "hidden", "submit", "button", "reset", "image":
			return true
		}
	}
	return false
}

// fieldText is what the control currently shows as its value. Placeholders
// are never used.
func fieldText(n *html.Node) string {
	switch n.Data {
	case "textarea":
		return textContent(n)
	case "select":
		var first, selected *html.Node
		walk(n, func(c *html.Node) {
			if c.Type != html.ElementNode || c.Data != "option" {
				return
			}
			if first == nil {
				first = c
			}
			if selected == nil && hasAttr(c, "selected") {
				selected = c
			}
		})
		if selected == nil {
			selected = first
		}
		if selected == nil {
			return ""
		}
		return strings.Join(strings.Fields(textContent(selected)), " ")
	}
	return attr(n, "value")
}

func walk(n *html.Node, fn func(*html.Node)) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		fn(c)
		walk(c, fn)
	}
}

func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return b.String()
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func setDeclaration(decls []*css.Declaration, prop, value string) []*css.Declaration {
	if value == "" {
		return decls
	}
	for _, d := range decls {
		if d.Property == prop {
			d.Value = value
			d.Important = false
			return decls
		}
	}
	return append(decls, &css.Declaration{Property: prop, Value: value})
}
