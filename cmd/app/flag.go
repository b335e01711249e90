package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"

	"github.com/pwnholic/invsnap/internal"
	"github.com/pwnholic/invsnap/internal/config"
	"github.com/pwnholic/invsnap/internal/exports"
)

type Flag struct {
	Input         string
	Inputs        []string
	BatchFile     string
	OutputDir     string
	MaxConcurrent int
	Engine        exports.Engine
	Chrome        string
	Template      string
	Currency      string
	Locale        string
	Serve         bool
	Addr          string
	Verbose       bool
	Config        *config.Config
}

func parseFlag() *Flag {
	help := flag.Bool("h", false, "Display this help message and exit")
	flag.BoolVar(help, "help", false, "Alias for -h")
	input := flag.String("i", "", `Invoice JSON file to export (e.g. "invoice.json")`)
	batchFile := flag.String("b", "", "Path to file containing invoice JSON paths (one per line)")
	outputDir := flag.String("o", "", "Directory the PDFs are written to")
	maxConcurrent := flag.Int("x", 0, "Maximum concurrent exports in batch mode, each with its own browser")
	engine := flag.String("engine", "", "PDF engine: gopdf or gofpdf")
	chrome := flag.String("chrome", "", "Path to the Chrome/Chromium executable (default: auto-detect)")
	tmpl := flag.String("template", "", "Custom invoice template (.gohtml) with a data-snapshot-root element")
	cur := flag.String("currency", "", "ISO 4217 currency code used to format amounts")
	locale := flag.String("locale", "", "BCP 47 locale used to format amounts")
	serve := flag.Bool("serve", false, "Serve the editable invoice for a local browser")
	addr := flag.String("addr", "", `Address for -serve (e.g. "127.0.0.1:8080")`)
	configFile := flag.String("c", "", "Config file (yaml, json or toml)")
	verbose := flag.Bool("v", false, "Enable debug logging")

	flag.Parse()

	if *help {
		fmt.Println("invsnap - Fill an invoice and export it as a one-page PDF")
		fmt.Println("Usage: `invsnap -i <invoice.json>`, `invsnap -b <file>` or `invsnap -serve`")
		flag.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Println("  Export one invoice:        -i invoice.json -o out")
		fmt.Println("  Export many with gofpdf:   -b invoices.txt -x 4 -engine gofpdf")
		fmt.Println("  Edit in the browser:       -serve -addr 127.0.0.1:8080 -i invoice.json")
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		internal.ErrorLog("Failed to load config: %v", err)
		os.Exit(1)
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if !set["o"] {
		*outputDir = cfg.Output.Dir
	}
	if !set["x"] {
		*maxConcurrent = cfg.Export.MaxConcurrent
	}
	if !set["engine"] {
		*engine = cfg.Output.Engine
	}
	if !set["chrome"] {
		*chrome = cfg.Export.Chrome
	}
	if !set["template"] {
		*tmpl = cfg.Invoice.Template
	}
	if !set["currency"] {
		*cur = cfg.Invoice.Currency
	}
	if !set["locale"] {
		*locale = cfg.Invoice.Locale
	}
	if !set["addr"] {
		*addr = cfg.Server.Addr
	}

	if *input == "" && *batchFile == "" && !*serve {
		fmt.Println("An invoice, a batch file or a serve address is required. Use -i, -b or -serve")
		os.Exit(1)
	}

	if *input != "" && *batchFile != "" {
		internal.ErrorLog("Cannot use both -i and -b at the same time")
		os.Exit(1)
	}

	if *serve && *batchFile != "" {
		internal.ErrorLog("-serve edits a single invoice and cannot be combined with -b")
		os.Exit(1)
	}

	var inputs []string
	if *batchFile != "" {
		inputs, err = readBatchFile(*batchFile)
		if err != nil {
			internal.ErrorLog("%v", err)
			os.Exit(1)
		}
	}

	if *maxConcurrent < 1 {
		internal.ErrorLog("Concurrency value (-x) must be >= 1")
		os.Exit(1)
	}

	if _, err := exports.NewWriterFunc(exports.Engine(*engine)); err != nil {
		internal.ErrorLog("%v", err)
		os.Exit(1)
	}

	if _, err := currency.ParseISO(*cur); err != nil {
		internal.ErrorLog("Invalid currency %q: %v", *cur, err)
		os.Exit(1)
	}

	if _, err := language.Parse(*locale); err != nil {
		internal.ErrorLog("Invalid locale %q: %v", *locale, err)
		os.Exit(1)
	}

	return &Flag{
		Input:         *input,
		Inputs:        inputs,
		BatchFile:     *batchFile,
		OutputDir:     *outputDir,
		MaxConcurrent: *maxConcurrent,
		Engine:        exports.Engine(*engine),
		Chrome:        *chrome,
		Template:      *tmpl,
		Currency:      strings.ToUpper(*cur),
		Locale:        *locale,
		Serve:         *serve,
		Addr:          *addr,
		Verbose:       *verbose,
		Config:        cfg,
	}
}

// readBatchFile returns the non-empty, non-comment lines of path.
func readBatchFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open batch file: %w", err)
	}
	defer file.Close()

	var paths []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading batch file: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("batch file is empty or contains no invoice paths")
	}
	return paths, nil
}
