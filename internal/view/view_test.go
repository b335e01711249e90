package view

import (
	"errors"
	"html/template"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"

	"github.com/pwnholic/invsnap/internal/invoice"
)

var today = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

func newView(t *testing.T) *View {
	t.Helper()
	v, err := New(invoice.New(today))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func parse(t *testing.T, v *View) *goquery.Document {
	t.Helper()
	out, err := v.HTML()
	if err != nil {
		t.Fatal(err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func value(doc *goquery.Document, name string) string {
	v, _ := doc.Find(`[name="` + name + `"]`).Attr("value")
	return v
}

func TestRenderDefaults(t *testing.T) {
	doc := parse(t, newView(t))

	if doc.Find(RootSelector).Length() != 1 {
		t.Fatal("snapshot root missing")
	}
	if got := value(doc, "date"); got != "2025-03-14" {
		t.Errorf("date = %q", got)
	}
	if got := value(doc, "due_date"); got != "2025-03-14" {
		t.Errorf("due_date = %q", got)
	}
	if n := doc.Find(RootSelector + " tbody tr").Length(); n != 1 {
		t.Errorf("%d item rows, want 1", n)
	}
	if _, disabled := doc.Find(`button[formaction="/items/1/remove"]`).Attr("disabled"); !disabled {
		t.Error("remove button of the only item is enabled")
	}
	if got := strings.TrimSpace(doc.Find("[data-total]").Text()); got != "$0.00" {
		t.Errorf("total = %q", got)
	}
	if doc.Find(RootSelector + " [data-toast-slot]").Length() != 0 {
		t.Error("toast slot is inside the snapshot root")
	}
	if doc.Find(RootSelector+" img").Length() != 0 {
		t.Error("logo rendered without a logo URL")
	}
}

func TestApplyForm(t *testing.T) {
	v := newView(t)
	if _, err := v.AddLineItem(); err != nil {
		t.Fatal(err)
	}
	err := v.ApplyForm(url.Values{
		"number":             {"INV-42"},
		"client.name":        {"Acme Corp"},
		"item.1.description": {"Design"},
		"item.1.quantity":    {"2"},
		"item.1.rate":        {"10"},
		"item.2.quantity":    {"3"},
		"item.2.rate":        {"5"},
		"item.9.rate":        {"100"},
		"logo":               {"https://cdn.example.com/logo.png"},
		"unknown":            {"x"},
	})
	if err != nil {
		t.Fatalf("ApplyForm: %v", err)
	}

	doc := parse(t, v)
	got := map[string]string{
		"number":      value(doc, "number"),
		"client.name": value(doc, "client.name"),
		"description": value(doc, "item.1.description"),
		"total":       strings.TrimSpace(doc.Find("[data-total]").Text()),
		"subtotal":    strings.TrimSpace(doc.Find("[data-subtotal]").Text()),
	}
	want := map[string]string{
		"number":      "INV-42",
		"client.name": "Acme Corp",
		"description": "Design",
		"total":       "$35.00",
		"subtotal":    "$35.00",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rendered values (-want +got):\n%s", diff)
	}
	if src, _ := doc.Find(RootSelector + " img").Attr("src"); src != "https://cdn.example.com/logo.png" {
		t.Errorf("logo src = %q", src)
	}
	if _, disabled := doc.Find(`button[formaction="/items/1/remove"]`).Attr("disabled"); disabled {
		t.Error("remove button disabled with two items")
	}
}

func TestApplyAndRemove(t *testing.T) {
	v := newView(t)
	item, err := v.AddLineItem()
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Apply("item.2.rate", "abc"); err != nil {
		t.Fatal(err)
	}
	removed, err := v.RemoveLineItem(item.ID)
	if err != nil || !removed {
		t.Fatalf("RemoveLineItem = %v, %v", removed, err)
	}
	removed, err = v.RemoveLineItem(1)
	if err != nil || removed {
		t.Errorf("removing the last item = %v, %v; want false, nil", removed, err)
	}

	var count int
	v.Read(func(doc *invoice.Document) { count = len(doc.Items()) })
	if count != 1 {
		t.Errorf("%d items, want 1", count)
	}
}

func TestLeaseFreezesEdits(t *testing.T) {
	v := newView(t)
	if err := v.Apply("number", "INV-1"); err != nil {
		t.Fatal(err)
	}
	lease, err := v.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if lease.InvoiceNumber() != "INV-1" {
		t.Errorf("InvoiceNumber = %q", lease.InvoiceNumber())
	}
	if lease.Root().Length() != 1 {
		t.Error("lease root missing")
	}

	checks := map[string]error{}
	checks["Apply"] = v.Apply("number", "INV-2")
	checks["ApplyForm"] = v.ApplyForm(url.Values{"number": {"INV-3"}})
	_, checks["AddLineItem"] = v.AddLineItem()
	_, checks["RemoveLineItem"] = v.RemoveLineItem(1)
	_, checks["Acquire"] = v.Acquire()
	for op, err := range checks {
		if !errors.Is(err, ErrFrozen) {
			t.Errorf("%s while frozen: err = %v, want ErrFrozen", op, err)
		}
	}

	done := make(chan struct{})
	go func() {
		_, _ = v.HTML()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("HTML returned while frozen")
	case <-time.After(30 * time.Millisecond):
	}

	lease.Release()
	lease.Release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HTML still blocked after release")
	}
	if value(parse(t, v), "number") != "INV-1" {
		t.Error("frozen edit leaked into the document")
	}
	if err := v.Apply("number", "INV-4"); err != nil {
		t.Errorf("edit after release: %v", err)
	}
}

func TestTemplateWithoutRoot(t *testing.T) {
	tmpl := template.Must(template.New("bare").Parse(`<html><body><p>{{.Number}}</p></body></html>`))
	if _, err := New(invoice.New(today), WithTemplate(tmpl)); !errors.Is(err, ErrNoRoot) {
		t.Errorf("err = %v, want ErrNoRoot", err)
	}
}

func TestLoadTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.gohtml")
	// windows-1252 encoded umlaut
	body := "<html><head><meta charset=\"windows-1252\"></head><body><div data-snapshot-root>Pr\xfcfung {{.Number}}</div></body></html>"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	tmpl, err := LoadTemplate(path)
	if err != nil {
		t.Fatalf("LoadTemplate: %v", err)
	}
	doc := invoice.New(today)
	doc.SetField("number", "7")
	v, err := New(doc, WithTemplate(tmpl), WithCurrency(invoice.Currency{Code: "EUR", Locale: "de-DE"}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := parse(t, v).Find(RootSelector).Text(); got != "Prüfung 7" {
		t.Errorf("root text = %q", got)
	}
}
