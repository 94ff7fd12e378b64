package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	return newRootCommandWithRunner(defaultRunner)
}

func newRootCommandWithRunner(factory runnerFactory) *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)
	if factory != nil {
		ctx.newRunner = factory
	}

	rootCmd := &cobra.Command{
		Use:           "curator",
		Short:         "Rank popular galleries by classifier score",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newCheckCommand(ctx))
	rootCmd.AddCommand(newTestNotifyCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
