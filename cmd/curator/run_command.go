package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"curator/internal/pipeline"
	"curator/internal/services"
	"curator/internal/source"
)

const (
	msgAlreadyRunning = "a run is already in progress, try again when it finishes"
	msgTimeout        = "processing took too long, try again later"
	msgNoResult       = "could not produce a result"
	msgTaskFailed     = "task failed, check logs"
	msgRunFailed      = "run failed, check logs"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var windowFlag string
	var totalTimeout time.Duration
	var classifyTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "run [today|<id>]",
		Short: "Rank a listing window or score a single item",
		Long: `Run the pipeline.

With no argument or "today" the configured listing window is fetched, every
item is downloaded and classified, and a ranking card is rendered. With a
numeric id only that item is processed and a single card is rendered.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = strings.TrimSpace(args[0])
			}
			id, single, err := parseRunTarget(target)
			if err != nil {
				return err
			}
			window, err := source.ParseWindow(windowFlag)
			if err != nil {
				return err
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireSource(); err != nil {
				return err
			}
			logger := ctx.loggerFor(cmd)

			root, err := ctx.acquireScratch(logger)
			if err != nil {
				return err
			}
			defer root.Close()

			runner, closeRunner, err := ctx.newRunner(cfg, root, logger)
			if err != nil {
				return err
			}
			if closeRunner != nil {
				defer closeRunner()
			}

			out := cmd.OutOrStdout()
			if single {
				fmt.Fprintf(out, "Processing item %s, this may take a few minutes...\n", id)
				report, err := runner.RunSingle(cmd.Context(), id, classifyTimeout)
				if err != nil {
					return errors.New(describeRunError(err, true))
				}
				return printReport(out, report)
			}

			fmt.Fprintf(out, "Processing the %s listing, this may take several minutes...\n", window)
			report, err := runner.Run(cmd.Context(), pipeline.Request{
				Window:          window,
				TotalTimeout:    totalTimeout,
				ClassifyTimeout: classifyTimeout,
			})
			if err != nil {
				return errors.New(describeRunError(err, false))
			}
			return printReport(out, report)
		},
	}

	cmd.Flags().StringVarP(&windowFlag, "window", "w", string(source.WindowToday), "Listing window: today, week, month or all")
	cmd.Flags().DurationVar(&totalTimeout, "total-timeout", 0, "Whole-run deadline (default from pipeline.total_timeout)")
	cmd.Flags().DurationVar(&classifyTimeout, "classify-timeout", 0, "Per-item classify deadline (default from pipeline.classify_timeout)")
	return cmd
}

// parseRunTarget accepts "", "today" or a bare positive integer.
func parseRunTarget(target string) (string, bool, error) {
	switch strings.ToLower(target) {
	case "", "today":
		return "", false, nil
	}
	n, err := strconv.ParseUint(target, 10, 64)
	if err != nil || n == 0 {
		return "", false, fmt.Errorf("invalid run target %q: expected \"today\" or a numeric id", target)
	}
	return strconv.FormatUint(n, 10), true, nil
}

// describeRunError maps a coordinator error to the message shown to the user.
func describeRunError(err error, single bool) string {
	switch {
	case errors.Is(err, services.ErrAlreadyRunning):
		return msgAlreadyRunning
	case errors.Is(err, services.ErrRunTimeout):
		return msgTimeout
	case single:
		return msgTaskFailed
	default:
		return msgRunFailed
	}
}

func printReport(out io.Writer, report *pipeline.Report) error {
	if report == nil || report.ArtifactPath == "" {
		if report != nil && report.Outcome == pipeline.OutcomeNoListing {
			fmt.Fprintf(out, "%s: the listing was empty\n", msgNoResult)
			return nil
		}
		fmt.Fprintln(out, msgNoResult)
		if report != nil {
			fmt.Fprintln(out, summaryLine(report))
		}
		return nil
	}
	fmt.Fprintf(out, "Artifact: %s\n", report.ArtifactPath)
	if table := rankingTable(report.Ranked); table != "" {
		fmt.Fprintln(out, table)
	}
	fmt.Fprintln(out, summaryLine(report))
	return nil
}

func summaryLine(report *pipeline.Report) string {
	s := report.Summary
	return fmt.Sprintf("Succeeded %d, filtered %d, failed %d in %s",
		len(s.Succeeded), len(s.Filtered), len(s.Failed), report.Duration.Round(time.Second))
}
