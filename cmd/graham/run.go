package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"github.com/aristath/graham/internal/definition"
	"github.com/aristath/graham/internal/services"
)

type runCmd struct {
	file   string
	export bool
	asJSON bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run a backtest definition against its buy-and-hold baseline" }
func (*runCmd) Usage() string {
	return `run -def <file.toml> [-export] [-json]

  Runs the strategy and the buy-and-hold baseline for the definition file,
  stores both runs in the ledger and prints their summaries.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "def", "", "Backtest definition file (required)")
	f.BoolVar(&c.export, "export", false, "Export both runs after completion")
	f.BoolVar(&c.asJSON, "json", false, "Print the pair result as JSON")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.file == "" {
		fail("-def is required")
		return subcommands.ExitUsageError
	}

	env, err := openEnvironment(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer env.Close()

	def, err := definition.LoadFile(c.file, env.cfg.Run)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitUsageError
	}
	if c.export {
		def.Export = true
	}

	pair, err := env.container.BacktestService.RunPair(ctx, def)
	if err != nil {
		fail("backtest failed: %v", err)
		return subcommands.ExitFailure
	}

	if c.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(pair); err != nil {
			fail("%v", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	printPair(os.Stdout, pair)
	return subcommands.ExitSuccess
}

func printPair(out io.Writer, pair *services.PairResult) {
	fmt.Fprintf(out, "%s (pair %s, %s)\n\n", pair.Name, pair.PairID, pair.Duration.Round(time.Millisecond))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "\tstrategy\tbuy and hold\t")
	s, b := pair.Strategy.Run.Summary, pair.Baseline.Run.Summary
	fmt.Fprintf(w, "final equity\t%.2f\t%.2f\t\n", s.FinalEquity, b.FinalEquity)
	fmt.Fprintf(w, "return %%\t%.2f\t%.2f\t\n", s.TotalReturnPct, b.TotalReturnPct)
	fmt.Fprintf(w, "dividends\t%.2f\t%.2f\t\n", s.TotalDividends, b.TotalDividends)
	fmt.Fprintf(w, "trades\t%d\t%d\t\n", s.TradeCount, b.TradeCount)
	fmt.Fprintf(w, "max drawdown %%\t%.2f\t%.2f\t\n", 100*s.MaxDrawdown, 100*b.MaxDrawdown)
	fmt.Fprintf(w, "days\t%d\t%d\t\n", s.Days, b.Days)
	w.Flush()

	fmt.Fprintf(out, "\nexcess return: %+.2f pp\n", pair.Comparison.ExcessReturnPct)
	fmt.Fprintf(out, "strategy run:  %s\nbaseline run:  %s\n", pair.Strategy.Run.ID, pair.Baseline.Run.ID)
	for _, report := range pair.Exports {
		fmt.Fprintf(out, "exported:      %s\n", report.Dir)
	}
}
