package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/aristath/graham/internal/domain"
)

type listCmd struct {
	limit int
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list stored runs, newest first" }
func (*listCmd) Usage() string {
	return `list [-limit N]
`
}

func (c *listCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "limit", 20, "Maximum number of runs")
}

func (c *listCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	env, err := openEnvironment(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer env.Close()

	list, err := env.container.Runs.List(ctx, c.limit)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPAIR\tNAME\tMODE\tCREATED\tRETURN %")
	for _, run := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.2f\n",
			run.ID, run.PairID, run.Name, run.Mode,
			run.CreatedAt.Format(domain.DateLayout), run.Summary.TotalReturnPct)
	}
	w.Flush()
	return subcommands.ExitSuccess
}
