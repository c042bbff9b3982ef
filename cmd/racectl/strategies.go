package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/use-agent/racefetch/validate"
)

func newStrategiesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List the configured strategies and validation gates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			stack, err := root.build(cfg)
			if err != nil {
				return err
			}
			defer stack.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Strategies (launch order):")
			for _, name := range stack.Dispatcher.Strategies() {
				fmt.Fprintf(out, "  %s\n", name)
			}
			fmt.Fprintf(out, "Gates: %s\n", joinNames())
			fmt.Fprintf(out, "Timeouts: %s per strategy, %s overall\n",
				cfg.Race.PerStrategyTimeout, cfg.Race.OverallTimeout)
			return nil
		},
	}
}

func joinNames() string { return strings.Join(validate.Names(), ", ") }
