package exports

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf/v2"
)

// FPDFGenerator writes through gofpdf in millimetres.
type FPDFGenerator struct {
	pdf    *gofpdf.Fpdf
	images int
}

func NewFPDFGenerator() *FPDFGenerator {
	return &FPDFGenerator{}
}

func orientationStr(o Orientation) string {
	if o == Landscape {
		return "L"
	}
	return "P"
}

func (f *FPDFGenerator) AddPage(size PaperSize, o Orientation) error {
	pageSize := gofpdf.SizeType{Wd: size.Width, Ht: size.Height}
	if f.pdf == nil {
		f.pdf = gofpdf.NewCustom(&gofpdf.InitType{
			OrientationStr: orientationStr(o),
			UnitStr:        "mm",
			Size:           pageSize,
		})
		f.pdf.SetMargins(0, 0, 0)
		f.pdf.SetAutoPageBreak(false, 0)
	}
	f.pdf.AddPageFormat(orientationStr(o), pageSize)
	return f.pdf.Error()
}

func (f *FPDFGenerator) Image(png []byte, x, y, w, h float64) error {
	if f.pdf == nil {
		return errors.New("no page to draw on")
	}
	f.images++
	name := fmt.Sprintf("capture-%d", f.images)
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	f.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
	f.pdf.ImageOptions(name, x, y, w, h, false, opts, 0, "")
	return f.pdf.Error()
}

func (f *FPDFGenerator) WriteTo(w io.Writer) (int64, error) {
	if f.pdf == nil {
		return 0, errors.New("PDF has no pages")
	}
	var buf bytes.Buffer
	if err := f.pdf.Output(&buf); err != nil {
		return 0, err
	}
	return buf.WriteTo(w)
}
