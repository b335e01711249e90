package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pwnholic/invsnap/internal"
	"github.com/pwnholic/invsnap/internal/exports"
	"github.com/pwnholic/invsnap/internal/invoice"
	"github.com/pwnholic/invsnap/internal/notify"
	"github.com/pwnholic/invsnap/internal/pipeline"
	"github.com/pwnholic/invsnap/internal/raster"
	"github.com/pwnholic/invsnap/internal/view"
)

type stubRaster struct {
	err error
}

func (s *stubRaster) Capture(context.Context, *goquery.Selection, raster.Options) (*raster.Bitmap, error) {
	if s.err != nil {
		return nil, s.err
	}
	img := image.NewRGBA(image.Rect(0, 0, 20, 28))
	for y := 0; y < 28; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, color.Black)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return raster.Decode(buf.Bytes())
}

type fixture struct {
	view   *view.View
	raster *stubRaster
	toast  *notify.Toast
	srv    *httptest.Server
	client *http.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	v, err := view.New(invoice.New(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{view: v, raster: &stubRaster{}, toast: notify.NewToast(time.Minute)}
	newWriter, err := exports.NewWriterFunc(exports.EngineGoFPDF)
	if err != nil {
		t.Fatal(err)
	}
	exporter := pipeline.NewExporter(pipeline.Config{
		Source:     v,
		Rasterizer: f.raster,
		Assembler:  exports.NewAssembler(newWriter, internal.Discard()),
		Notifier:   f.toast,
		Logger:     internal.Discard(),
	})
	s := New(v, exporter, f.toast, prometheus.NewRegistry(), internal.Discard())
	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(f.srv.Close)
	f.client = &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	return f
}

func (f *fixture) post(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := f.client.PostForm(f.srv.URL+path, form)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) page(t *testing.T) *goquery.Document {
	t.Helper()
	resp, err := f.client.Get(f.srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / = %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestEditFlow(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/edit", url.Values{"number": {"INV-9"}, "client.name": {"Acme"}})
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("POST /edit = %d", resp.StatusCode)
	}
	doc := f.page(t)
	if v, _ := doc.Find(`[name="number"]`).Attr("value"); v != "INV-9" {
		t.Errorf("number = %q", v)
	}

	f.post(t, "/items", url.Values{"item.1.quantity": {"2"}, "item.1.rate": {"10"}})
	doc = f.page(t)
	if n := doc.Find("tr[data-item]").Length(); n != 2 {
		t.Fatalf("%d rows after add, want 2", n)
	}
	if got := strings.TrimSpace(doc.Find("[data-total]").Text()); got != "$20.00" {
		t.Errorf("total = %q", got)
	}

	if resp := f.post(t, "/items/2/remove", nil); resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("remove = %d", resp.StatusCode)
	}
	if n := f.page(t).Find("tr[data-item]").Length(); n != 1 {
		t.Errorf("%d rows after remove, want 1", n)
	}
}

func TestExportDownload(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/export", url.Values{"number": {"INV-5"}})
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("POST /export = %d: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="invoice-INV-5.pdf"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(body, []byte("%PDF-")) {
		t.Error("body is not a PDF")
	}

	doc := f.page(t)
	toast := doc.Find(ToastSlotSelector + " [data-toast]")
	if got := toast.Text(); got != pipeline.SuccessMessage {
		t.Errorf("toast = %q", got)
	}
	if kind, _ := toast.Attr("data-toast"); kind != "success" {
		t.Errorf("toast kind = %q", kind)
	}
	if doc.Find("[data-snapshot-root] input").Length() == 0 {
		t.Error("inputs missing after export")
	}
}

func TestExportCaptureFailure(t *testing.T) {
	f := newFixture(t)
	f.raster.err = errors.New("no browser")

	resp := f.post(t, "/export", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("POST /export = %d, want 502", resp.StatusCode)
	}
	toast := f.page(t).Find(ToastSlotSelector + " [data-toast]")
	if !strings.HasPrefix(toast.Text(), "Export failed: ") {
		t.Errorf("toast = %q", toast.Text())
	}
}

func TestFrozenView(t *testing.T) {
	f := newFixture(t)
	lease, err := f.view.Acquire()
	if err != nil {
		t.Fatal(err)
	}

	if resp := f.post(t, "/edit", url.Values{"number": {"X"}}); resp.StatusCode != http.StatusConflict {
		t.Errorf("POST /edit while frozen = %d, want 409", resp.StatusCode)
	}
	if resp := f.post(t, "/items", nil); resp.StatusCode != http.StatusConflict {
		t.Errorf("POST /items while frozen = %d, want 409", resp.StatusCode)
	}
	if resp := f.post(t, "/export", nil); resp.StatusCode != http.StatusConflict {
		t.Errorf("POST /export while frozen = %d, want 409", resp.StatusCode)
	}
	lease.Release()

	if resp := f.post(t, "/edit", url.Values{"number": {"X"}}); resp.StatusCode != http.StatusSeeOther {
		t.Errorf("POST /edit after release = %d", resp.StatusCode)
	}
}

func TestMetricsAndHealth(t *testing.T) {
	f := newFixture(t)
	f.post(t, "/export", nil)

	resp, err := f.client.Get(f.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{`invsnap_exports_total{outcome="success"} 1`, "invsnap_export_duration_seconds_count 1"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}

	resp, err = f.client.Get(f.srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got healthStatus
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(healthStatus{Status: "healthy", Export: "idle"}, got); diff != "" {
		t.Errorf("health (-want +got):\n%s", diff)
	}
}

func TestRoutes(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		method, path string
		want         int
	}{
		{"GET", "/export", http.StatusMethodNotAllowed},
		{"POST", "/items/abc/remove", http.StatusNotFound},
		{"GET", "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(tt.method, f.srv.URL+tt.path, nil)
		resp, err := f.client.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestInjectToastEscapes(t *testing.T) {
	out, err := injectToast(`<html><body><div data-toast-slot></div></body></html>`,
		notify.Message{Kind: notify.KindFailure, Text: "<script>x</script>"}, 3*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "<script>") {
		t.Error("toast text not escaped")
	}
	if !strings.Contains(out, "3s forwards") {
		t.Error("toast does not hide itself after 3s")
	}
}
