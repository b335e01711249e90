// Package view renders an invoice document as an editable HTML surface and
// routes field edits back to the document.
package view

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/pwnholic/invsnap/internal/invoice"
)

// RootSelector matches the subtree that becomes the exported page.
const RootSelector = "[data-snapshot-root]"

var (
	ErrFrozen = errors.New("view is frozen while an export is in progress")
	ErrNoRoot = errors.New("template has no " + RootSelector + " element")
)

//go:embed templates/invoice.gohtml
var templateFS embed.FS

// DefaultTemplate parses the embedded invoice template.
func DefaultTemplate() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/invoice.gohtml")
}

// LoadTemplate parses a template file, transcoding it to UTF-8 from whatever
// charset its BOM or meta tag declares.
func LoadTemplate(path string) (*template.Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open template: %w", err)
	}
	defer f.Close()

	r, err := charset.NewReader(f, "text/html")
	if err != nil {
		return nil, fmt.Errorf("failed to create charset reader: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	return template.New(path).Parse(buf.String())
}

type Option func(*View)

func WithCurrency(c invoice.Currency) Option {
	return func(v *View) { v.currency = c }
}

func WithTemplate(t *template.Template) Option {
	return func(v *View) { v.tmpl = t }
}

// View owns the document and its rendered tree. While a Lease is held the
// view is frozen: edits fail with ErrFrozen and HTML waits for the release.
type View struct {
	mu       sync.Mutex
	released *sync.Cond
	doc      *invoice.Document
	currency invoice.Currency
	tmpl     *template.Template
	tree     *goquery.Document
	frozen   bool
	batching bool
	err      error
}

func New(doc *invoice.Document, opts ...Option) (*View, error) {
	v := &View{doc: doc, currency: invoice.DefaultCurrency}
	v.released = sync.NewCond(&v.mu)
	for _, opt := range opts {
		opt(v)
	}
	if v.tmpl == nil {
		tmpl, err := DefaultTemplate()
		if err != nil {
			return nil, fmt.Errorf("failed to parse default template: %w", err)
		}
		v.tmpl = tmpl
	}

	doc.OnChange(v.documentChanged)
	if err := v.render(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *View) documentChanged() {
	if v.batching {
		return
	}
	v.err = v.render()
}

// render rebuilds the tree from the document. Callers hold mu.
func (v *View) render() error {
	var buf bytes.Buffer
	if err := v.tmpl.Execute(&buf, newPage(v.doc, v.currency)); err != nil {
		return fmt.Errorf("failed to render invoice: %w", err)
	}
	tree, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		return fmt.Errorf("failed to parse rendered invoice: %w", err)
	}
	if tree.Find(RootSelector).Length() == 0 {
		return ErrNoRoot
	}
	v.tree = tree
	return nil
}

// Apply forwards one field edit. Header fields use the invoice field names;
// line item fields are addressed as "item.<id>.<field>". Unknown fields are
// ignored.
func (v *View) Apply(field, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.frozen {
		return ErrFrozen
	}
	v.apply(field, value)
	return v.err
}

// ApplyForm applies every submitted field and re-renders once.
func (v *View) ApplyForm(values url.Values) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.frozen {
		return ErrFrozen
	}

	fields := make([]string, 0, len(values))
	for field := range values {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	v.batching = true
	for _, field := range fields {
		v.apply(field, values.Get(field))
	}
	v.batching = false
	v.err = v.render()
	return v.err
}

func (v *View) apply(field, value string) {
	id, itemField, ok := parseItemField(field)
	if ok {
		v.doc.UpdateLineItem(id, itemField, value)
		return
	}
	v.doc.SetField(field, value)
}

func parseItemField(field string) (int, string, bool) {
	parts := strings.SplitN(field, ".", 3)
	if len(parts) != 3 || parts[0] != "item" {
		return 0, "", false
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, "", false
	}
	return id, parts[2], true
}

func (v *View) AddLineItem() (invoice.LineItem, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.frozen {
		return invoice.LineItem{}, ErrFrozen
	}
	item := v.doc.AddLineItem()
	return item, v.err
}

func (v *View) RemoveLineItem(id int) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.frozen {
		return false, ErrFrozen
	}
	removed := v.doc.RemoveLineItem(id)
	return removed, v.err
}

// Read runs fn with the document while no lease is held.
func (v *View) Read(fn func(doc *invoice.Document)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for v.frozen {
		v.released.Wait()
	}
	fn(v.doc)
}

// HTML renders the current tree, waiting for any lease to be released.
func (v *View) HTML() (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for v.frozen {
		v.released.Wait()
	}
	return v.tree.Html()
}

// Acquire freezes the view and hands its live tree to the caller.
func (v *View) Acquire() (*Lease, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.frozen {
		return nil, ErrFrozen
	}
	if v.err != nil {
		return nil, v.err
	}
	v.frozen = true
	return &Lease{
		view:   v,
		root:   v.tree.Find(RootSelector).First(),
		number: v.doc.Number,
	}, nil
}

// Lease is exclusive access to the rendered tree.
type Lease struct {
	view     *View
	root     *goquery.Selection
	number   string
	released sync.Once
}

// Root is the snapshot root inside the live tree.
func (l *Lease) Root() *goquery.Selection {
	return l.root
}

// InvoiceNumber is the number at the time the lease was taken.
func (l *Lease) InvoiceNumber() string {
	return l.number
}

// Release thaws the view. Calling it more than once is harmless.
func (l *Lease) Release() {
	l.released.Do(func() {
		v := l.view
		v.mu.Lock()
		v.frozen = false
		v.mu.Unlock()
		v.released.Broadcast()
	})
}
