/*
main.go - Batch valuation entry point

PURPOSE:
  Values one portfolio end to end: loads configuration and reference data,
  reads the receivables workbook, runs the pipeline and writes the
  corrected table, a PDF summary and a metrics textfile.

STARTUP SEQUENCE:
  1. Parse command-line flags, load config, initialize the logger
  2. Resolve the portfolio variant (flag, else detected from -portfolio)
  3. Build the corrector: stored policy, JSON policy file, or config
  4. Load reference data (SQLite, optionally seeded from a workbook, or
     the workbook alone)
  5. Read receivables, run, export, record the run

COMMAND-LINE FLAGS:
  -config            YAML config path (default $VALUATION_CONFIG)
  -portfolio         portfolio identifier (required)
  -variant           generic | fintech (default: detected from -portfolio)
  -receivables       receivables workbook (required)
  -references        reference workbook (index, recovery and term sheets)
  -refdb             SQLite reference database (default: config reference_db)
  -policy            stored policy ID to use instead of the configured one
  -policy-file       JSON policy file; saved to -refdb when one is given
  -out               corrected table XLSX output
  -pdf               PDF summary output
  -metrics-textfile  Prometheus textfile output (default: config metrics.textfile)

EXIT STATUS:
  0 on success, 1 on any error. A degenerate discount factor is an error,
  but outputs are still written so the failing rows can be inspected.

EXAMPLES:
  # Seed the reference database and value a distributor portfolio
  ./valuate -refdb=var/ref.db -references=refs.xlsx \
      -portfolio="FIDC Energia 2024-06" -receivables=carteira.xlsx -out=out.xlsx

  # Value a fintech portfolio against the seeded database
  ./valuate -refdb=var/ref.db -portfolio="FIDC CCB Fintech" -receivables=ccb.xlsx -pdf=ccb.pdf
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/receivables-engine/config"
	"github.com/warp/receivables-engine/engine"
	"github.com/warp/receivables-engine/engine/store"
	"github.com/warp/receivables-engine/factory"
	"github.com/warp/receivables-engine/logger"
	"github.com/warp/receivables-engine/metrics"
	"github.com/warp/receivables-engine/report"
	"github.com/warp/receivables-engine/sheet"
	"github.com/warp/receivables-engine/store/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "valuate:", err)
		os.Exit(1)
	}
}

type options struct {
	configPath      string
	portfolio       string
	variant         string
	receivables     string
	references      string
	refDB           string
	policyID        string
	policyFile      string
	out             string
	pdf             string
	metricsTextfile string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("valuate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "YAML config path")
	fs.StringVar(&o.portfolio, "portfolio", "", "portfolio identifier")
	fs.StringVar(&o.variant, "variant", "", "generic | fintech (default: detected)")
	fs.StringVar(&o.receivables, "receivables", "", "receivables workbook")
	fs.StringVar(&o.references, "references", "", "reference workbook")
	fs.StringVar(&o.refDB, "refdb", "", "SQLite reference database")
	fs.StringVar(&o.policyID, "policy", "", "stored policy ID")
	fs.StringVar(&o.policyFile, "policy-file", "", "JSON policy file")
	fs.StringVar(&o.out, "out", "", "corrected table XLSX output")
	fs.StringVar(&o.pdf, "pdf", "", "PDF summary output")
	fs.StringVar(&o.metricsTextfile, "metrics-textfile", "", "Prometheus textfile output")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.portfolio == "" {
		return o, errors.New("-portfolio is required")
	}
	if o.receivables == "" {
		return o, errors.New("-receivables is required")
	}
	return o, nil
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	log := logger.Init(cfg.LogLevel)
	if o.refDB == "" {
		o.refDB = cfg.ReferenceDB
	}
	if o.metricsTextfile == "" {
		o.metricsTextfile = cfg.Metrics.Textfile
	}

	recorder := metrics.NewRecorder()
	f := factory.New(cfg)
	f.Logger = log
	f.Observer = recorder

	variant := f.DetectVariant(o.portfolio)
	if o.variant != "" {
		if variant, err = factory.ParseVariant(o.variant); err != nil {
			return err
		}
	}
	log.Info("portfolio classified", "portfolio", o.portfolio, "variant", string(variant))

	var db *sqlite.Store
	if o.refDB != "" {
		if db, err = sqlite.New(o.refDB); err != nil {
			return err
		}
		defer db.Close()
	}

	corrector, err := buildCorrector(ctx, f, db, o, variant)
	if err != nil {
		return err
	}
	refs, err := loadReferences(ctx, db, o.references, factory.IndexKinds(corrector))
	if err != nil {
		return err
	}
	records, err := readReceivables(o.receivables)
	if err != nil {
		return err
	}

	result, runErr := f.PipelineFor(corrector).Run(refs.Input(o.portfolio, variant, records))
	if result == nil {
		return runErr
	}

	if db != nil {
		if err := db.SaveRun(ctx, sqlite.NewRunRecord(result.Diagnostics, runErr)); err != nil {
			log.Warn("failed to record run", "error", err)
		}
	}
	if err := export(result, o, recorder); err != nil {
		return err
	}
	return runErr
}

// buildCorrector picks, in order: a stored policy, a JSON policy file, the
// configured policy of the variant.
func buildCorrector(ctx context.Context, f *factory.Factory, db *sqlite.Store, o options, variant engine.Variant) (engine.Corrector, error) {
	var c engine.Corrector
	switch {
	case o.policyID != "":
		if db == nil {
			return nil, errors.New("-policy needs -refdb")
		}
		rec, err := db.GetPolicy(ctx, o.policyID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("policy %q not found", o.policyID)
		}
		if c, err = f.ParsePolicy(rec.ConfigJSON); err != nil {
			return nil, err
		}

	case o.policyFile != "":
		data, err := os.ReadFile(o.policyFile)
		if err != nil {
			return nil, err
		}
		if c, err = f.ParsePolicy(string(data)); err != nil {
			return nil, err
		}
		if db != nil {
			id, _ := c.Params()["policy"].(string)
			rec := sqlite.PolicyRecord{ID: id, Name: id, Variant: string(c.Variant()), ConfigJSON: string(data)}
			if err := db.SavePolicy(ctx, rec); err != nil {
				return nil, err
			}
		}

	default:
		return f.Corrector(variant)
	}

	if c.Variant() != variant {
		return nil, fmt.Errorf("%w: policy is %s, portfolio is %s", engine.ErrVariantMismatch, c.Variant(), variant)
	}
	return c, nil
}

// loadReferences reads reference data from SQLite, seeding it from the
// workbook when both are given, or from the workbook alone.
func loadReferences(ctx context.Context, db *sqlite.Store, workbook string, kinds []engine.IndexKind) (engine.References, error) {
	var src engine.ReferenceSource
	if db != nil {
		src = db
	}

	if workbook != "" {
		refs, err := readReferences(workbook, kinds)
		if err != nil {
			return engine.References{}, err
		}
		if db != nil {
			if err := seed(ctx, db, refs); err != nil {
				return engine.References{}, err
			}
		} else {
			mem := store.NewMemory()
			for _, s := range refs.Indexes {
				mem.PutIndexSeries(s)
			}
			mem.PutRecoveryTable(refs.Recovery)
			mem.PutTermStructure(refs.Terms)
			src = mem
		}
	}

	if src == nil {
		return engine.References{}, errors.New("no reference data: pass -refdb or -references")
	}
	return engine.LoadReferences(ctx, src, kinds...)
}

func seed(ctx context.Context, db *sqlite.Store, refs engine.References) error {
	for _, s := range refs.Indexes {
		if err := db.SaveIndexSeries(ctx, s); err != nil {
			return err
		}
	}
	if err := db.SaveRecoveryTable(ctx, refs.Recovery); err != nil {
		return err
	}
	return db.SaveTermStructure(ctx, refs.Terms)
}

func readReferences(path string, kinds []engine.IndexKind) (engine.References, error) {
	fh, err := os.Open(path)
	if err != nil {
		return engine.References{}, err
	}
	defer fh.Close()

	wb, err := sheet.Open(fh)
	if err != nil {
		return engine.References{}, err
	}
	defer wb.Close()
	return wb.References(kinds...)
}

func readReceivables(path string) (engine.Records, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	wb, err := sheet.Open(fh)
	if err != nil {
		return nil, err
	}
	defer wb.Close()
	return wb.Receivables()
}

func export(result *engine.Result, o options, recorder *metrics.Recorder) error {
	if o.out != "" {
		data, err := sheet.BuildResultXLSX(result)
		if err != nil {
			return fmt.Errorf("build xlsx: %w", err)
		}
		if err := os.WriteFile(o.out, data, 0o644); err != nil {
			return err
		}
	}
	if o.pdf != "" {
		data, err := report.BuildSummaryPDF(result, time.Now())
		if err != nil {
			return fmt.Errorf("build pdf: %w", err)
		}
		if err := os.WriteFile(o.pdf, data, 0o644); err != nil {
			return err
		}
	}
	if o.metricsTextfile != "" {
		if err := recorder.WriteTextfile(o.metricsTextfile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	slog.Info("outputs written", "out", o.out, "pdf", o.pdf, "metrics", o.metricsTextfile)
	return nil
}
