package snapshot

import (
	"sort"
	"strconv"
	"strings"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
)

// CopiedProperties are always written onto a replacement span.
var CopiedProperties = []string{"display", "font-size", "font-weight", "color", "text-align", "width"}

// declaredOnlyProperties are copied when some rule in the cascade sets them.
var declaredOnlyProperties = []string{"font-family", "line-height"}

var inherited = map[string]bool{
	"color":          true,
	"font-family":    true,
	"font-size":      true,
	"font-style":     true,
	"font-weight":    true,
	"letter-spacing": true,
	"line-height":    true,
	"text-align":     true,
}

var rootDefaults = Style{
	"color":       "#000000",
	"font-size":   "16px",
	"font-weight": "400",
	"text-align":  "start",
}

// Form controls do not inherit font or colour from their ancestors.
var controlDefaults = Style{
	"display":     "inline-block",
	"color":       "#000000",
	"font-size":   "13.3333px",
	"font-weight": "400",
	"text-align":  "start",
	"width":       "auto",
}

var blockElements = map[string]bool{
	"address": true, "article": true, "body": true, "html": true, "aside": true, "blockquote": true, "div": true,
	"footer": true, "form": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "header": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "section": true, "ul": true,
}

// Style maps lower-case property names to values.
type Style map[string]string

func (s Style) clone() Style {
	out := make(Style, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// StyleResolver reports the effective style of an element at the moment
// it is called.
type StyleResolver interface {
	Resolve(n *html.Node) Style
}

// CascadeResolver computes styles from inline style attributes, walking the
// ancestor chain for inherited properties and applying user-agent defaults
// for form controls. Widths are whatever the cascade declares; layout-derived
// pixel widths need a browser.
type CascadeResolver struct{}

func (CascadeResolver) Resolve(n *html.Node) Style {
	var chain []*html.Node
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			chain = append(chain, p)
		}
	}

	computed := rootDefaults.clone()
	for i := len(chain) - 1; i >= 0; i-- {
		el := chain[i]
		parent := computed
		own := Style{}
		for k, v := range parent {
			if inherited[k] {
				own[k] = v
			}
		}
		if isFormControl(el) {
			for _, k := range []string{"font-family", "font-style", "letter-spacing", "line-height"} {
				delete(own, k)
			}
			for k, v := range controlDefaults {
				own[k] = v
			}
		} else {
			own["display"] = defaultDisplay(el)
			own["width"] = "auto"
		}
		for _, decl := range ParseInline(attr(el, "style")) {
			own[decl.Property] = resolveValue(decl.Property, decl.Value, parent, own)
		}
		computed = own
	}
	return computed
}

// InheritedStyle is the style attribute value that hands n's inherited
// properties to it from a parent-less context, as in a copy of n placed in
// a bare document body.
func InheritedStyle(n *html.Node, r StyleResolver) string {
	if n == nil || n.Parent == nil || n.Parent.Type != html.ElementNode {
		return ""
	}
	parent := r.Resolve(n.Parent)
	props := make([]string, 0, len(inherited))
	for k := range inherited {
		if _, ok := parent[k]; ok {
			props = append(props, k)
		}
	}
	sort.Strings(props)

	decls := make([]*css.Declaration, 0, len(props))
	for _, k := range props {
		decls = append(decls, &css.Declaration{Property: k, Value: parent[k]})
	}
	return serialize(decls)
}

// ParseInline parses the declarations of a style attribute. Malformed input
// yields whatever declarations could be read.
func ParseInline(style string) []*css.Declaration {
	if strings.TrimSpace(style) == "" {
		return nil
	}
	decls, err := parser.ParseDeclarations(style)
	if err != nil {
		return nil
	}
	for _, d := range decls {
		d.Property = strings.ToLower(strings.TrimSpace(d.Property))
		d.Value = strings.TrimSpace(d.Value)
	}
	return decls
}

func resolveValue(prop, value string, parent, own Style) string {
	if value == "inherit" {
		if v, ok := parent[prop]; ok {
			return v
		}
		return own[prop]
	}
	switch prop {
	case "font-size":
		return resolveFontSize(value, parent["font-size"])
	case "font-weight":
		return resolveFontWeight(value, parent["font-weight"])
	}
	return value
}

var fontSizeKeywords = map[string]float64{
	"xx-small": 9, "x-small": 10, "small": 13, "medium": 16,
	"large": 18, "x-large": 24, "xx-large": 32, "xxx-large": 48,
}

// resolveFontSize turns relative sizes into pixels against the parent size.
func resolveFontSize(value, parent string) string {
	parentPx, ok := pixels(parent)
	if !ok {
		parentPx = 16
	}
	if px, ok := fontSizeKeywords[value]; ok {
		return formatPx(px)
	}
	switch {
	case value == "smaller":
		return formatPx(parentPx / 1.2)
	case value == "larger":
		return formatPx(parentPx * 1.2)
	case strings.HasSuffix(value, "rem"):
		if f, err := strconv.ParseFloat(strings.TrimSuffix(value, "rem"), 64); err == nil {
			return formatPx(16 * f)
		}
	case strings.HasSuffix(value, "em"):
		if f, err := strconv.ParseFloat(strings.TrimSuffix(value, "em"), 64); err == nil {
			return formatPx(parentPx * f)
		}
	case strings.HasSuffix(value, "%"):
		if f, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64); err == nil {
			return formatPx(parentPx * f / 100)
		}
	case strings.HasSuffix(value, "pt"):
		if f, err := strconv.ParseFloat(strings.TrimSuffix(value, "pt"), 64); err == nil {
			return formatPx(f * 96 / 72)
		}
	}
	return value
}

func resolveFontWeight(value, parent string) string {
	parentWeight, err := strconv.Atoi(parent)
	if err != nil {
		parentWeight = 400
	}
	switch value {
	case "normal":
		return "400"
	case "bold":
		return "700"
	case "bolder":
		switch {
		case parentWeight < 350:
			return "400"
		case parentWeight < 550:
			return "700"
		default:
			return "900"
		}
	case "lighter":
		switch {
		case parentWeight < 550:
			return "100"
		case parentWeight < 750:
			return "400"
		default:
			return "700"
		}
	}
	return value
}

func pixels(v string) (float64, bool) {
	if !strings.HasSuffix(v, "px") {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "px"), 64)
	return f, err == nil
}

func formatPx(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64) + "px"
}

func defaultDisplay(n *html.Node) string {
	switch {
	case blockElements[n.Data]:
		return "block"
	case n.Data == "table":
		return "table"
	case n.Data == "tr":
		return "table-row"
	case n.Data == "td" || n.Data == "th":
		return "table-cell"
	}
	return "inline"
}

func isFormControl(n *html.Node) bool {
	switch n.Data {
	case "input", "textarea", "select", "button":
		return true
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// serialize writes declarations back into a style attribute value.
func serialize(decls []*css.Declaration) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		value := d.Value
		if d.Important {
			value += " !important"
		}
		parts = append(parts, d.Property+": "+value)
	}
	return strings.Join(parts, "; ")
}
