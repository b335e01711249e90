package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pwnholic/invsnap/internal"
	"github.com/pwnholic/invsnap/internal/invoice"
	"github.com/pwnholic/invsnap/internal/notify"
	"github.com/pwnholic/invsnap/internal/pipeline"
	"github.com/pwnholic/invsnap/internal/server"
)

func readInvoice(path string) (*invoice.Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open invoice: %w", err)
	}
	defer file.Close()

	doc, err := invoice.Decode(file, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return doc, nil
}

// exportFile runs one export session for the invoice at path and writes the
// PDF to the output directory.
func (gp *generateProcess) exportFile(ctx context.Context, path string) (*pipeline.Result, error) {
	doc, err := readInvoice(path)
	if err != nil {
		return nil, err
	}
	v, err := gp.newView(doc)
	if err != nil {
		return nil, err
	}

	logger := internal.GetDefaultLogger().With(filepath.Base(path))
	exporter := gp.newExporter(v, notify.LogNotifier{Logger: logger}, logger)
	res, err := exporter.Export(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("Saved %s (%.0fx%.0f mm)", gp.sink.Path(res.Name), res.Placement.W, res.Placement.H)
	return res, nil
}

func (gp *generateProcess) processSingleInvoice(ctx context.Context, flag *Flag) error {
	startTime := time.Now()
	internal.InfoLog("Exporting %s\n", flag.Input)

	res, err := gp.exportFile(ctx, flag.Input)
	if err != nil {
		return err
	}
	if res.Overflow {
		internal.WarningLog("[SUMMARY] %s runs past one page and was clipped", res.Name)
	}
	internal.InfoLog("[SUMMARY] Exported %s in %v\n", res.Name, time.Since(startTime))
	return nil
}

// processServe hosts one editable invoice until interrupted. The toast shows
// export outcomes in the page; the log keeps a copy.
func (gp *generateProcess) processServe(ctx context.Context, flag *Flag) error {
	doc := invoice.New(time.Now())
	if flag.Input != "" {
		var err error
		if doc, err = readInvoice(flag.Input); err != nil {
			return err
		}
	}
	v, err := gp.newView(doc)
	if err != nil {
		return err
	}

	logger := internal.GetDefaultLogger().With("serve")
	toast := notify.NewToast(flag.Config.Toast.Duration)
	exporter := gp.newExporter(v, notify.Multi{toast, notify.LogNotifier{Logger: logger}}, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := server.New(v, exporter, toast, reg, logger)
	if err := srv.ListenAndServe(ctx, flag.Addr); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	internal.InfoLog("Server shut down")
	return nil
}
