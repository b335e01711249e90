// Package exports lays a captured bitmap onto a fixed-size page.
package exports

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pwnholic/invsnap/internal"
	"github.com/pwnholic/invsnap/internal/raster"
)

// PaperSize is a page format in millimetres.
type PaperSize struct {
	Name   string
	Width  float64
	Height float64
}

var A4 = PaperSize{Name: "A4", Width: 210, Height: 297}

type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

// Oriented returns the page box for o.
func (p PaperSize) Oriented(o Orientation) PaperSize {
	if o == Landscape && p.Height > p.Width || o != Landscape && p.Width > p.Height {
		return PaperSize{Name: p.Name, Width: p.Height, Height: p.Width}
	}
	return p
}

// Placement is where the bitmap lands on the page, in millimetres.
type Placement struct {
	X float64
	Y float64
	W float64
	H float64
}

// Place scales a width x height bitmap to the full page width, keeping its
// aspect ratio.
func Place(width, height int, page PaperSize) Placement {
	return Placement{
		W: page.Width,
		H: float64(height) * page.Width / float64(width),
	}
}

// Overflows reports whether the placement runs past the bottom of page.
// The page keeps its size and the excess is clipped.
func (p Placement) Overflows(page PaperSize) bool {
	return p.Y+p.H > page.Height+1e-9
}

// DocumentWriter is a paged document being built.
type DocumentWriter interface {
	AddPage(size PaperSize, o Orientation) error
	Image(png []byte, x, y, w, h float64) error
	WriteTo(w io.Writer) (int64, error)
}

type Engine string

const (
	EngineGoPDF  Engine = "gopdf"
	EngineGoFPDF Engine = "gofpdf"
)

var ErrUnknownEngine = errors.New("unknown pdf engine")

// NewWriterFunc returns a constructor for a fresh writer of the given engine.
func NewWriterFunc(engine Engine) (func() DocumentWriter, error) {
	switch engine {
	case "", EngineGoPDF:
		return func() DocumentWriter { return NewPDFGenerator() }, nil
	case EngineGoFPDF:
		return func() DocumentWriter { return NewFPDFGenerator() }, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
}

// Artifact is a finished document ready to be delivered.
type Artifact struct {
	Name      string
	Data      []byte
	Placement Placement
	Overflow  bool
}

type Assembler struct {
	Page        PaperSize
	Orientation Orientation
	NewWriter   func() DocumentWriter
	Logger      *internal.Logger
}

func NewAssembler(newWriter func() DocumentWriter, logger *internal.Logger) *Assembler {
	if logger == nil {
		logger = internal.GetDefaultLogger()
	}
	return &Assembler{
		Page:        A4,
		Orientation: Portrait,
		NewWriter:   newWriter,
		Logger:      logger,
	}
}

// Assemble puts bitmap on a single page at the origin, full page width.
func (a *Assembler) Assemble(bitmap *raster.Bitmap, number string) (*Artifact, error) {
	if bitmap == nil || len(bitmap.PNG) == 0 {
		return nil, errors.New("no bitmap to assemble")
	}
	if bitmap.Width < 1 || bitmap.Height < 1 {
		return nil, fmt.Errorf("invalid bitmap dimensions: %dx%d", bitmap.Width, bitmap.Height)
	}
	if looksBlank(bitmap.PNG) {
		a.Logger.Warn("capture looks blank (%dx%d)", bitmap.Width, bitmap.Height)
	}

	page := a.Page.Oriented(a.Orientation)
	place := Place(bitmap.Width, bitmap.Height, page)
	overflow := place.Overflows(page)
	if overflow {
		a.Logger.Warn("capture is %.1fmm tall, %s page is %.0fmm: content below the page is clipped",
			place.H, page.Name, page.Height)
	}

	w := a.NewWriter()
	if c, ok := w.(interface{ Close() }); ok {
		defer c.Close()
	}
	if err := w.AddPage(a.Page, a.Orientation); err != nil {
		return nil, fmt.Errorf("failed to add page: %w", err)
	}
	if err := w.Image(bitmap.PNG, place.X, place.Y, place.W, place.H); err != nil {
		return nil, fmt.Errorf("failed to place image: %w", err)
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write document: %w", err)
	}

	return &Artifact{
		Name:      OutputName(number, "pdf"),
		Data:      buf.Bytes(),
		Placement: place,
		Overflow:  overflow,
	}, nil
}

// OutputName is invoice-<number>.<ext>, or invoice-draft.<ext> without a number.
func OutputName(number, ext string) string {
	number = strings.TrimSpace(number)
	if number == "" {
		number = "draft"
	}
	number = strings.NewReplacer("/", "-", `\`, "-").Replace(number)
	return fmt.Sprintf("invoice-%s.%s", number, ext)
}
