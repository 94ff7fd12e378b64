package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"curator/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify directories, classifier backend and source reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.loggerFor(cmd)

			var results []preflight.Result
			root, err := ctx.acquireScratch(logger)
			if err != nil {
				results = append(results, preflight.Result{Name: "Scratch lock", Detail: err.Error()})
			} else {
				results = append(results, preflight.Result{Name: "Scratch lock", Passed: true, Detail: "acquired and cleared"})
			}
			results = append(results, preflight.RunAll(cmd.Context(), cfg, logger)...)
			if root != nil {
				_ = root.Close()
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			lines := renderSectionHeader("Curator", colorize)
			lines = append(lines, preflightLines(results, colorize)...)
			fmt.Fprintln(out, strings.Join(lines, "\n"))

			if preflight.Failed(results) {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
}
