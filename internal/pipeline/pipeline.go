// Package pipeline runs one export: freeze the view, swap its controls,
// capture, put everything back, then build and deliver the page.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/pwnholic/invsnap/internal"
	"github.com/pwnholic/invsnap/internal/exports"
	"github.com/pwnholic/invsnap/internal/notify"
	"github.com/pwnholic/invsnap/internal/raster"
	"github.com/pwnholic/invsnap/internal/snapshot"
	"github.com/pwnholic/invsnap/internal/view"
)

const SuccessMessage = "PDF downloaded successfully!"

type Status int32

const (
	Idle Status = iota
	Transforming
	Capturing
	Restoring
	Assembling
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Transforming:
		return "transforming"
	case Capturing:
		return "capturing"
	case Restoring:
		return "restoring"
	case Assembling:
		return "assembling"
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// Source hands out exclusive access to a rendered view.
type Source interface {
	Acquire() (*view.Lease, error)
}

type Config struct {
	Source      Source
	Transformer *snapshot.Transformer
	Rasterizer  raster.Rasterizer
	Options     raster.Options
	Assembler   *exports.Assembler
	Sink        exports.Sink
	Notifier    notify.Notifier
	Logger      *internal.Logger
	// Observe, when set, sees every status change.
	Observe func(Status)
}

type Exporter struct {
	cfg    Config
	status atomic.Int32
}

func NewExporter(cfg Config) *Exporter {
	if cfg.Transformer == nil {
		cfg.Transformer = snapshot.NewTransformer()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.LogNotifier{Logger: cfg.Logger}
	}
	if cfg.Logger == nil {
		cfg.Logger = internal.GetDefaultLogger()
	}
	if cfg.Options == (raster.Options{}) {
		cfg.Options = raster.DefaultOptions()
	}
	return &Exporter{cfg: cfg}
}

type Result struct {
	ID        string
	Name      string
	Placement exports.Placement
	Overflow  bool
	Artifact  *exports.Artifact
}

func (e *Exporter) Status() Status {
	return Status(e.status.Load())
}

func (e *Exporter) setStatus(s Status) {
	e.status.Store(int32(s))
	if e.cfg.Observe != nil {
		e.cfg.Observe(s)
	}
}

// Export delivers to the configured sink.
func (e *Exporter) Export(ctx context.Context) (*Result, error) {
	return e.ExportTo(ctx, e.cfg.Sink)
}

// ExportTo runs one export and delivers the artifact to sink, which may be
// nil when the caller only wants the result. A second call while one is
// running returns ErrExportInProgress without touching the view. Once
// started the export ignores cancellation of ctx.
func (e *Exporter) ExportTo(ctx context.Context, sink exports.Sink) (*Result, error) {
	if !e.status.CompareAndSwap(int32(Idle), int32(Transforming)) {
		return nil, ErrExportInProgress
	}
	if e.cfg.Observe != nil {
		e.cfg.Observe(Transforming)
	}
	defer e.setStatus(Idle)

	ctx = context.WithoutCancel(ctx)
	id := uuid.NewString()
	log := e.cfg.Logger.With(id[:8])
	log.Info("export started")

	bitmap, number, err := e.capture(ctx, log)
	if err != nil {
		if errors.Is(err, view.ErrFrozen) {
			return nil, ErrExportInProgress
		}
		err = &CaptureError{Err: err}
		log.Error("%v", err)
		e.cfg.Notifier.Failure("Export failed: " + err.Error())
		return nil, err
	}

	e.setStatus(Assembling)
	art, err := e.cfg.Assembler.Assemble(bitmap, number)
	if err == nil && sink != nil {
		err = sink.Deliver(art.Name, art.Data)
	}
	if err != nil {
		err = &AssemblyError{Err: err}
		log.Error("%v", err)
		e.cfg.Notifier.Failure("Export failed: " + err.Error())
		return nil, err
	}

	log.Success("exported %s (%d bytes)", art.Name, len(art.Data))
	e.cfg.Notifier.Success(SuccessMessage)
	return &Result{
		ID:        id,
		Name:      art.Name,
		Placement: art.Placement,
		Overflow:  art.Overflow,
		Artifact:  art,
	}, nil
}

// capture holds the view lease only while the tree is transformed. The lease
// is released after the tree is restored and before assembly starts.
func (e *Exporter) capture(ctx context.Context, log *internal.Logger) (*raster.Bitmap, string, error) {
	lease, err := e.cfg.Source.Acquire()
	if err != nil {
		return nil, "", err
	}
	defer lease.Release()

	var bitmap *raster.Bitmap
	err = e.cfg.Transformer.Scope(ctx, lease.Root(), func(ctx context.Context) error {
		e.setStatus(Capturing)
		b, err := e.cfg.Rasterizer.Capture(ctx, lease.Root(), e.cfg.Options)
		bitmap = b
		e.setStatus(Restoring)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	if bitmap == nil {
		return nil, "", raster.ErrEmptyCapture
	}
	log.Debug("captured %dx%d", bitmap.Width, bitmap.Height)
	return bitmap, lease.InvoiceNumber(), nil
}
