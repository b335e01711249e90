package snapshot

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
)

func resolve(t *testing.T, markup, selector string) Style {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		t.Fatalf("no match for %q", selector)
	}
	return CascadeResolver{}.Resolve(sel.Nodes[0])
}

func TestCascadeResolver(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   Style
	}{
		{
			name:   "inherits relative sizes and weights",
			markup: `<div style="font-size: 20px; font-weight: bold; color: red"><p style="font-size: 1.5em"><span id="t">x</span></p></div>`,
			want: Style{
				"color": "red", "display": "inline", "font-size": "30px",
				"font-weight": "700", "text-align": "start", "width": "auto",
			},
		},
		{
			name:   "block with declared width and alignment",
			markup: `<div style="text-align: right; font-family: Georgia"><div id="t" style="width: 50%; font-weight: bolder">x</div></div>`,
			want: Style{
				"color": "#000000", "display": "block", "font-family": "Georgia", "font-size": "16px",
				"font-weight": "700", "text-align": "right", "width": "50%",
			},
		},
		{
			name:   "controls ignore inherited font and colour",
			markup: `<div style="font-size: 24px; color: blue; font-family: Georgia; line-height: 2"><input id="t" value="a"></div>`,
			want: Style{
				"color": "#000000", "display": "inline-block", "font-size": "13.3333px",
				"font-weight": "400", "text-align": "start", "width": "auto",
			},
		},
		{
			name:   "control inline declarations win",
			markup: `<div><input id="t" style="font-size: inherit; color: green; display: block; width: 100%"></div>`,
			want: Style{
				"color": "green", "display": "block", "font-size": "16px",
				"font-weight": "400", "text-align": "start", "width": "100%",
			},
		},
		{
			name:   "table cells and keywords",
			markup: `<table><tr><td id="t" style="font-size: large; font-weight: normal">x</td></tr></table>`,
			want: Style{
				"color": "#000000", "display": "table-cell", "font-size": "18px",
				"font-weight": "400", "text-align": "start", "width": "auto",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolve(t, tt.markup, "#t")
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Resolve (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveFontSize(t *testing.T) {
	tests := []struct {
		value, parent, want string
	}{
		{"12px", "16px", "12px"},
		{"2em", "10px", "20px"},
		{"1.5rem", "10px", "24px"},
		{"50%", "30px", "15px"},
		{"12pt", "16px", "16px"},
		{"small", "40px", "13px"},
		{"calc(1em + 2px)", "16px", "calc(1em + 2px)"},
	}
	for _, tt := range tests {
		if got := resolveFontSize(tt.value, tt.parent); got != tt.want {
			t.Errorf("resolveFontSize(%q, %q) = %q, want %q", tt.value, tt.parent, got, tt.want)
		}
	}
}

func TestParseInlineAndSerialize(t *testing.T) {
	decls := ParseInline(" Color: red ; width:10px !important;")
	if len(decls) != 2 {
		t.Fatalf("got %d declarations, want 2", len(decls))
	}
	if got, want := serialize(decls), "color: red; width: 10px !important"; got != want {
		t.Errorf("serialize = %q, want %q", got, want)
	}
	if ParseInline("   ") != nil {
		t.Error("blank style should have no declarations")
	}
}

func TestInheritedStyle(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<body style="font-family: Arial; font-size: 20px; color: #111827; background-color: gray">` +
			`<div style="font-size: 0.8em; padding: 4px"><section id="t" style="color: blue">x</section></div></body>`))
	if err != nil {
		t.Fatal(err)
	}
	got := InheritedStyle(doc.Find("#t").Nodes[0], CascadeResolver{})
	want := "color: #111827; font-family: Arial; font-size: 16px; font-weight: 400; text-align: start"
	if got != want {
		t.Errorf("InheritedStyle = %q, want %q", got, want)
	}

	if got := InheritedStyle(doc.Find("html").Nodes[0], CascadeResolver{}); got != "" {
		t.Errorf("html element: %q, want empty", got)
	}
}
