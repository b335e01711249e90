package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pwnholic/invsnap/internal"
	"github.com/pwnholic/invsnap/internal/clients"
	"github.com/pwnholic/invsnap/internal/exports"
	"github.com/pwnholic/invsnap/internal/invoice"
	"github.com/pwnholic/invsnap/internal/notify"
	"github.com/pwnholic/invsnap/internal/pipeline"
	"github.com/pwnholic/invsnap/internal/raster"
	"github.com/pwnholic/invsnap/internal/snapshot"
	"github.com/pwnholic/invsnap/internal/view"
)

// generateProcess holds what every export session shares. Each invoice gets
// its own view and exporter so sessions never contend for a freeze.
type generateProcess struct {
	inliner     *clients.Inliner
	transformer *snapshot.Transformer
	rasterizer  raster.Rasterizer
	newWriter   func() exports.DocumentWriter
	options     raster.Options
	currency    invoice.Currency
	tmpl        *template.Template
	sink        exports.FileSink
}

func NewGenerateProcess(t *clients.HTTPClientOptions, flag *Flag) (*generateProcess, error) {
	newWriter, err := exports.NewWriterFunc(flag.Engine)
	if err != nil {
		return nil, err
	}

	tmpl, err := loadTemplate(flag.Template)
	if err != nil {
		return nil, err
	}

	gp := &generateProcess{
		rasterizer: raster.NewChrome(flag.Chrome, internal.GetDefaultLogger().With("chrome")),
		newWriter:  newWriter,
		options:    rasterOptions(flag),
		currency:   invoice.Currency{Code: flag.Currency, Locale: flag.Locale},
		tmpl:       tmpl,
		sink:       exports.FileSink{Dir: flag.OutputDir},
	}

	var opts []snapshot.Option
	if flag.Config.Export.InlineImages {
		gp.inliner = clients.NewInliner(t, internal.GetDefaultLogger().With("images"))
		opts = append(opts, snapshot.WithInliner(gp.inliner))
	}
	gp.transformer = snapshot.NewTransformer(opts...)
	return gp, nil
}

func loadTemplate(path string) (*template.Template, error) {
	if path == "" {
		return view.DefaultTemplate()
	}
	tmpl, err := view.LoadTemplate(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load template %s: %w", path, err)
	}
	return tmpl, nil
}

func rasterOptions(flag *Flag) raster.Options {
	opts := raster.DefaultOptions()
	exp := flag.Config.Export
	if exp.Scale > 0 {
		opts.Scale = exp.Scale
	}
	if exp.ViewportWidth > 0 {
		opts.ViewportWidth = exp.ViewportWidth
	}
	opts.AllowCrossOrigin = exp.AllowCrossOrigin
	opts.Quiet = !flag.Verbose
	return opts
}

func (gp *generateProcess) Close() {
	if gp.inliner != nil {
		if err := gp.inliner.Close(); err != nil {
			internal.WarningLog("failed to close image client: %v", err)
		}
	}
}

func (gp *generateProcess) newView(doc *invoice.Document) (*view.View, error) {
	return view.New(doc, view.WithCurrency(gp.currency), view.WithTemplate(gp.tmpl))
}

func (gp *generateProcess) newExporter(v *view.View, notifier notify.Notifier, logger *internal.Logger) *pipeline.Exporter {
	return pipeline.NewExporter(pipeline.Config{
		Source:      v,
		Transformer: gp.transformer,
		Rasterizer:  gp.rasterizer,
		Options:     gp.options,
		Assembler:   exports.NewAssembler(gp.newWriter, logger),
		Sink:        gp.sink,
		Notifier:    notifier,
		Logger:      logger,
		Observe: func(s pipeline.Status) {
			logger.Debug("export status: %s", s)
		},
	})
}

func (gp *generateProcess) processGenerate(flag *Flag) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case flag.Serve:
		return gp.processServe(ctx, flag)
	case len(flag.Inputs) > 0:
		return gp.processBatchInvoices(ctx, flag)
	default:
		return gp.processSingleInvoice(ctx, flag)
	}
}

func (gp *generateProcess) processBatchInvoices(ctx context.Context, flag *Flag) error {
	startTime := time.Now()
	internal.InfoLog("Exporting %d invoices with %d max workers\n", len(flag.Inputs), flag.MaxConcurrent)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(flag.MaxConcurrent)

	var (
		mu        sync.Mutex
		errs      []error
		generated []string
	)
	for _, path := range flag.Inputs {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			res, err := gp.exportFile(ctx, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("error processing %s: %w", path, err))
				return nil
			}
			generated = append(generated, gp.sink.Path(res.Name))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	internal.InfoLog("[SUMMARY] Processed %d invoices in %v\n", len(flag.Inputs), time.Since(startTime))
	internal.InfoLog("[SUMMARY] Generated %d PDF files\n", len(generated))
	if len(errs) > 0 {
		return fmt.Errorf("completed with %d errors: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
