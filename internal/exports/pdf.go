package exports

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"io"
	"sync"

	"github.com/signintech/gopdf"
)

const pointsPerMM = 72 / 25.4

// PDFGenerator writes through gopdf. Coordinates are taken in millimetres
// and converted to points.
type PDFGenerator struct {
	pdf     *gopdf.GoPdf
	mutex   sync.Mutex
	started bool
}

func NewPDFGenerator() *PDFGenerator {
	return &PDFGenerator{pdf: &gopdf.GoPdf{}}
}

func (p *PDFGenerator) AddPage(size PaperSize, o Orientation) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.pdf == nil {
		return errors.New("PDF not initialized")
	}

	box := size.Oriented(o)
	rect := &gopdf.Rect{W: box.Width * pointsPerMM, H: box.Height * pointsPerMM}
	if !p.started {
		p.pdf.Start(gopdf.Config{Unit: gopdf.UnitPT, PageSize: *rect})
		p.started = true
	}
	p.pdf.AddPageWithOption(gopdf.PageOption{PageSize: rect})
	return nil
}

func (p *PDFGenerator) Image(pngBytes []byte, x, y, w, h float64) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if !p.started {
		return errors.New("no page to draw on")
	}

	imageHolder, err := gopdf.ImageHolderByBytes(pngBytes)
	if err != nil {
		return err
	}
	rect := &gopdf.Rect{W: w * pointsPerMM, H: h * pointsPerMM}
	return p.pdf.ImageByHolder(imageHolder, x*pointsPerMM, y*pointsPerMM, rect)
}

func (p *PDFGenerator) WriteTo(w io.Writer) (int64, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if !p.started {
		return 0, errors.New("PDF has no pages")
	}
	return p.pdf.WriteTo(w)
}

func (p *PDFGenerator) Close() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.pdf != nil {
		p.pdf.Close()
		p.pdf = nil
	}
}

// looksBlank samples the corners and centre of a PNG and reports whether
// they are all opaque white.
func looksBlank(data []byte) bool {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return false
	}
	bounds := img.Bounds()
	samplePoints := []image.Point{
		{bounds.Min.X, bounds.Min.Y},
		{bounds.Max.X - 1, bounds.Min.Y},
		{bounds.Min.X, bounds.Max.Y - 1},
		{bounds.Max.X - 1, bounds.Max.Y - 1},
		{(bounds.Min.X + bounds.Max.X) / 2, (bounds.Min.Y + bounds.Max.Y) / 2},
	}
	for _, pt := range samplePoints {
		if !isWhitePixel(img, pt.X, pt.Y) {
			return false
		}
	}
	return true
}

func isWhitePixel(img image.Image, x, y int) bool {
	if !image.Pt(x, y).In(img.Bounds()) {
		return false
	}

	r, g, b, a := img.At(x, y).RGBA()
	return r == 0xffff && g == 0xffff && b == 0xffff && a == 0xffff
}
