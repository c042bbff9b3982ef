package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/spf13/cobra"
	"github.com/use-agent/racefetch/cleaner"
	"github.com/use-agent/racefetch/engine"
	"github.com/use-agent/racefetch/validate"
)

type getOptions struct {
	gate            string
	format          string
	extract         string
	selector        string
	strategyTimeout time.Duration
	timeout         time.Duration
	output          string
}

func newGetCmd(root *rootOptions) *cobra.Command {
	opts := &getOptions{}

	cmd := &cobra.Command{
		Use:   "get <url>",
		Short: "Acquire one document",
		Long: `Race every configured strategy for <url> and print the first document
that passes --gate. Each strategy's outcome is reported on stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, root, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.gate, "gate", "g", "html", "validation gate ("+joinNames()+")")
	f.StringVarP(&opts.format, "format", "f", cleaner.FormatRaw, "output format (raw, markdown)")
	f.StringVarP(&opts.extract, "extract", "e", cleaner.ModeRaw, "extraction mode (raw, readability)")
	f.StringVarP(&opts.selector, "selector", "s", "", "keep only elements matching this CSS selector")
	f.DurationVar(&opts.strategyTimeout, "strategy-timeout", 0, "per-strategy timeout (default from config)")
	f.DurationVarP(&opts.timeout, "timeout", "t", 0, "overall race timeout (default from config)")
	f.StringVarP(&opts.output, "output", "o", "", "write the document to this file instead of stdout")
	return cmd
}

func runGet(cmd *cobra.Command, root *rootOptions, opts *getOptions, target string) error {
	gate, ok := validate.ByName(opts.gate)
	if !ok {
		return fmt.Errorf("unknown gate %q (want one of %s)", opts.gate, joinNames())
	}
	if opts.selector != "" {
		if _, err := cascadia.Compile(opts.selector); err != nil {
			return fmt.Errorf("invalid selector: %w", err)
		}
	}

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	stack, err := root.build(cfg)
	if err != nil {
		return err
	}
	defer stack.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	result, err := stack.Dispatcher.Dispatch(ctx, target, gate.Validate, engine.RaceConfig{
		PerStrategyTimeout: opts.strategyTimeout,
		OverallTimeout:     opts.timeout,
		Describe:           gate.Describe,
	})
	if err != nil {
		var failure *engine.RaceFailure
		if errors.As(err, &failure) {
			printReasons(cmd.ErrOrStderr(), failure.Reasons)
			return fmt.Errorf("no strategy produced a valid document (%s)", failure.Cause)
		}
		return err
	}

	for _, o := range result.Outcomes {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %-16s %-9s %s\n", o.Strategy, o.Kind, o.Reason)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "  %-16s %-9s in %s\n", result.Strategy, "won", result.Elapsed.Round(time.Millisecond))

	content, err := cleaner.NewCleaner().Clean(result.Text, target, cleaner.Options{
		OutputFormat: opts.format,
		ExtractMode:  opts.extract,
		CSSSelector:  opts.selector,
	})
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	_, err = io.WriteString(w, content)
	return err
}

func printReasons(w io.Writer, reasons []engine.Reason) {
	for _, r := range reasons {
		fmt.Fprintf(w, "  %-16s %-9s %s\n", r.Strategy, r.Kind, r.Reason)
	}
}
