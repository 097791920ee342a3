package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type ratesCmd struct {
	series string
}

func (*ratesCmd) Name() string     { return "rates" }
func (*ratesCmd) Synopsis() string { return "refresh a rate series from the BCB API" }
func (*ratesCmd) Usage() string {
	return `rates [-series <code>]

  Fetches observations from the last stored date onwards and stores them.
`
}

func (c *ratesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.series, "series", "", "SGS series code (defaults to the configured series)")
}

func (c *ratesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	env, err := openEnvironment(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer env.Close()

	series := c.series
	if series == "" {
		series = env.cfg.BCB.Series
	}

	stored, err := env.container.RatesService.Refresh(ctx, series)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("stored %d observations for series %s\n", stored, series)
	return subcommands.ExitSuccess
}
