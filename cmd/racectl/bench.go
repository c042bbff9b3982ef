package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/racefetch/app"
	"github.com/use-agent/racefetch/engine"
	"github.com/use-agent/racefetch/validate"
)

// defaultBenchURLs cover a few site types.
var defaultBenchURLs = []string{
	"https://example.com",
	"https://go.dev/blog/go1.21",
	"https://go.dev/doc/effective_go",
	"https://www.bbc.com/news",
	"https://github.com/go-rod/rod",
}

type benchOptions struct {
	runs   int
	gate   string
	output string
}

type runResult struct {
	Run           int    `json:"run"`
	Strategy      string `json:"strategy,omitempty"`
	ElapsedMs     int64  `json:"elapsed_ms"`
	ContentLength int    `json:"content_length"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
}

type urlResult struct {
	URL          string         `json:"url"`
	Runs         []runResult    `json:"runs"`
	AvgElapsedMs float64        `json:"avg_elapsed_ms"`
	Wins         map[string]int `json:"wins"`
	Failures     int            `json:"failures"`
}

type benchReport struct {
	Timestamp  string      `json:"timestamp"`
	Gate       string      `json:"gate"`
	RunsPerURL int         `json:"runs_per_url"`
	Strategies []string    `json:"strategies"`
	Results    []urlResult `json:"results"`
}

func newBenchCmd(root *rootOptions) *cobra.Command {
	opts := &benchOptions{}

	cmd := &cobra.Command{
		Use:   "bench [url...]",
		Short: "Race a set of URLs repeatedly and report which strategies win",
		Long: `Race each URL --runs times and print the average latency and the
winning strategy counts. Domain memory stays on between runs, so later runs
launch the previous winner first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = defaultBenchURLs
			}
			return runBench(cmd, root, opts, args)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.runs, "runs", "n", 3, "runs per URL")
	f.StringVarP(&opts.gate, "gate", "g", "html", "validation gate")
	f.StringVarP(&opts.output, "output", "o", "", "write a JSON report to this file")
	return cmd
}

func runBench(cmd *cobra.Command, root *rootOptions, opts *benchOptions, urls []string) error {
	if opts.runs < 1 {
		return fmt.Errorf("--runs must be at least 1")
	}
	gate, ok := validate.ByName(opts.gate)
	if !ok {
		return fmt.Errorf("unknown gate %q (want one of %s)", opts.gate, joinNames())
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

	out := cmd.OutOrStdout()
	report := benchReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Gate:       gate.Name,
		RunsPerURL: opts.runs,
		Strategies: stack.Dispatcher.Strategies(),
	}

	for _, u := range urls {
		fmt.Fprintf(out, "Benchmarking %s ...\n", u)
		ur, err := benchURL(cmd, stack, gate, u, opts.runs)
		if err != nil {
			return err
		}
		report.Results = append(report.Results, ur)
	}
	fmt.Fprintln(out)
	printTable(out, report.Results)

	if opts.output != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.output, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nDetailed results written to %s\n", opts.output)
	}
	return nil
}

// benchURL races target runs times. Only caller cancellation aborts the
// benchmark; race failures are recorded.
func benchURL(cmd *cobra.Command, stack *app.Stack, gate validate.Gate, target string, runs int) (urlResult, error) {
	ur := urlResult{URL: target, Wins: map[string]int{}}
	var total time.Duration

	for i := 1; i <= runs; i++ {
		rr := runResult{Run: i}
		start := time.Now()
		result, err := stack.Dispatcher.Dispatch(cmd.Context(), target, gate.Validate, engine.RaceConfig{Describe: gate.Describe})
		rr.ElapsedMs = time.Since(start).Milliseconds()

		switch {
		case errors.Is(err, engine.ErrExternallyCancelled):
			return ur, err
		case err != nil:
			rr.Error = err.Error()
			ur.Failures++
			fmt.Fprintf(cmd.OutOrStdout(), "  Run %d/%d ... FAILED\n", i, runs)
		default:
			rr.Success = true
			rr.Strategy = result.Strategy
			rr.ContentLength = len(result.Text)
			ur.Wins[result.Strategy]++
			total += result.Elapsed
			fmt.Fprintf(cmd.OutOrStdout(), "  Run %d/%d ... OK  %dms  %s\n", i, runs, rr.ElapsedMs, result.Strategy)
		}
		ur.Runs = append(ur.Runs, rr)
	}

	if won := runs - ur.Failures; won > 0 {
		ur.AvgElapsedMs = float64(total.Milliseconds()) / float64(won)
	}
	return ur, nil
}

func printTable(w io.Writer, results []urlResult) {
	fmt.Fprintln(w, strings.Repeat("─", 85))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "URL\tAvg Latency\tWinners\tFailures\n")
	fmt.Fprintf(tw, "───\t───────────\t───────\t────────\n")

	for _, r := range results {
		if len(r.Wins) == 0 {
			fmt.Fprintf(tw, "%s\tFAILED\t-\t%d\n", truncateURL(r.URL, 40), r.Failures)
			continue
		}
		fmt.Fprintf(tw, "%s\t%dms\t%s\t%d\n",
			truncateURL(r.URL, 40),
			int64(r.AvgElapsedMs),
			formatWins(r.Wins),
			r.Failures,
		)
	}

	tw.Flush()
	fmt.Fprintln(w, strings.Repeat("─", 85))
}

// formatWins renders win counts, most frequent first.
func formatWins(wins map[string]int) string {
	names := make([]string, 0, len(wins))
	for name := range wins {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if wins[names[i]] != wins[names[j]] {
			return wins[names[i]] > wins[names[j]]
		}
		return names[i] < names[j]
	})

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s×%d", name, wins[name])
	}
	return strings.Join(parts, " ")
}

func truncateURL(u string, max int) string {
	if len(u) <= max {
		return u
	}
	return u[:max-3] + "..."
}
