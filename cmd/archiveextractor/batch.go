package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ArchiveExtractor/internal/domain"
	"ArchiveExtractor/internal/infrastructure/storage"
	"ArchiveExtractor/internal/urls"
	"ArchiveExtractor/internal/usecase"
)

const dateLayout = "2006-01-02"

type batchFlags struct {
	file          string
	concurrency   int
	delay         time.Duration
	name          string
	from          string
	to            string
	source        string
	skipCompleted bool
	retryFailed   bool
	saveDir       string
	save          bool
	ordered       bool
}

func newBatchCmd(global *globalFlags) *cobra.Command {
	flags := &batchFlags{}
	cmd := &cobra.Command{
		Use:   "batch [urls...]",
		Short: "Extract a batch of article URLs",
		Long:  `Validates the given URLs (and those found in --file), extracts each one once with bounded concurrency and prints a summary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := collectURLs(args, flags.file)
			if err != nil {
				return err
			}
			if len(input) == 0 {
				return fmt.Errorf("no urls given")
			}
			rng, err := parseDateRange(flags.from, flags.to)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			application, _, closer, err := openApp(ctx, global)
			if err != nil {
				return err
			}
			defer closer.Close()

			opts := application.BatchOptions()
			if cmd.Flags().Changed("concurrency") {
				opts.Concurrency = flags.concurrency
			}
			if cmd.Flags().Changed("delay") {
				opts.Delay = flags.delay
			}
			if flags.name != "" {
				opts.NameFilter = flags.name
			}
			if flags.source != "" {
				if opts.SourceHint, err = parseSource(flags.source); err != nil {
					return err
				}
			}
			opts.DateRange = rng
			opts.SkipCompleted = flags.skipCompleted
			opts.RetryFailed = flags.retryFailed

			out := cmd.OutOrStdout()
			progress := func(completed, total int, result domain.ExtractionResult) {
				printProgress(out, completed, total, result)
			}

			orch := application.Orchestrator()
			report := orch.ProcessURLsBatch(ctx, input, opts, progress)

			if flags.ordered {
				printOrdered(out, usecase.ReorderBy(input, report))
			}
			if flags.save || flags.saveDir != "" {
				saveArtifacts(out, application.Artifacts(flags.saveDir), report)
			}

			fmt.Fprintln(out)
			fmt.Fprint(out, usecase.FormatSummary(report))
			if report.Successful == 0 && report.Processed > 0 {
				return fmt.Errorf("every extraction failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "read URLs from a text file (\"-\" for stdin)")
	cmd.Flags().IntVarP(&flags.concurrency, "concurrency", "c", usecase.DefaultConcurrency, "parallel extractions (1-5)")
	cmd.Flags().DurationVar(&flags.delay, "delay", time.Second, "pause before each extraction")
	cmd.Flags().StringVar(&flags.name, "name", "", "person name to score relevance against")
	cmd.Flags().StringVar(&flags.from, "from", "", "earliest article date, YYYY-MM-DD")
	cmd.Flags().StringVar(&flags.to, "to", "", "latest article date, YYYY-MM-DD")
	cmd.Flags().StringVar(&flags.source, "source", "", "force a source instead of routing by host")
	cmd.Flags().BoolVar(&flags.skipCompleted, "skip-completed", false, "skip URLs the ledger already holds a success for")
	cmd.Flags().BoolVar(&flags.retryFailed, "retry-failed", false, "run failed URLs once more and merge the outcome")
	cmd.Flags().StringVar(&flags.saveDir, "save-dir", "", "write images and downloads below this directory")
	cmd.Flags().BoolVar(&flags.save, "save", false, "write images and downloads to the configured artifacts directory")
	cmd.Flags().BoolVar(&flags.ordered, "ordered", false, "list results in input order")
	return cmd
}

// collectURLs merges positional URLs with those found in file, preserving order.
func collectURLs(args []string, file string) ([]string, error) {
	input := append([]string(nil), args...)
	if file == "" {
		return input, nil
	}

	var (
		raw []byte
		err error
	)
	if file == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read url file: %w", err)
	}
	return append(input, urls.ExtractLines(string(raw))...), nil
}

func parseDateRange(from, to string) (*usecase.DateRange, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	var rng usecase.DateRange
	if from != "" {
		t, err := time.Parse(dateLayout, from)
		if err != nil {
			return nil, fmt.Errorf("parse --from: %w", err)
		}
		rng.From = t
	}
	if to != "" {
		t, err := time.Parse(dateLayout, to)
		if err != nil {
			return nil, fmt.Errorf("parse --to: %w", err)
		}
		rng.To = t
	}
	if !rng.From.IsZero() && !rng.To.IsZero() && rng.To.Before(rng.From) {
		return nil, fmt.Errorf("--to %s is before --from %s", to, from)
	}
	return &rng, nil
}

func printProgress(w io.Writer, completed, total int, result domain.ExtractionResult) {
	if result.OK() {
		fmt.Fprintf(w, "[%d/%d] ok   %s  %q (%s)\n", completed, total, result.URL, result.Headline(), result.ProcessingTime.Round(time.Millisecond))
		return
	}
	fmt.Fprintf(w, "[%d/%d] fail %s  %s\n", completed, total, result.URL, result.ErrorKind())
}

func printOrdered(w io.Writer, ordered []usecase.OrderedResult) {
	fmt.Fprintln(w)
	for _, entry := range ordered {
		switch {
		case entry.Invalid:
			fmt.Fprintf(w, "%3d. %s  invalid\n", entry.Index+1, entry.URL)
		case entry.Missing:
			fmt.Fprintf(w, "%3d. %s  not processed\n", entry.Index+1, entry.URL)
		case entry.Result.OK():
			fmt.Fprintf(w, "%3d. %s  %s, %s\n", entry.Index+1, entry.URL, entry.Result.Headline(), entry.Result.Success.Article.Date)
		default:
			fmt.Fprintf(w, "%3d. %s  %s\n", entry.Index+1, entry.URL, entry.Result.ErrorKind())
		}
	}
}

func saveArtifacts(w io.Writer, store *storage.ArtifactStore, report domain.BatchReport) {
	for _, result := range report.Results {
		paths, err := store.SaveResult(result)
		if err != nil {
			fmt.Fprintf(w, "save %s: %v\n", result.URL, err)
			continue
		}
		for _, p := range paths {
			fmt.Fprintf(w, "saved %s\n", p)
		}
	}
}
