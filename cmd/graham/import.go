package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"

	"github.com/aristath/graham/internal/events"
)

type importCmd struct {
	kind string
	key  string
	file string
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import a CSV series into the history store" }
func (*importCmd) Usage() string {
	return `import -kind <prices|net_income|eps|rates> -key <ticker|series> -file <file.csv>

  Imports one CSV file:
  - prices: yfinance history export (Date, Close, Dividends columns).
  - net_income, eps: "year,value" rows.
  - rates: "date,value" rows, values in percent.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "kind", "prices", "Series kind: prices, net_income, eps or rates")
	f.StringVar(&c.key, "key", "", "Ticker, or rate series code for rates (required)")
	f.StringVar(&c.file, "file", "", "CSV file (required)")
}

func (c *importCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.key == "" || c.file == "" {
		fail("-key and -file are required")
		return subcommands.ExitUsageError
	}

	env, err := openEnvironment(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer env.Close()

	importer := env.container.Importer
	var stored int
	switch strings.ToLower(c.kind) {
	case "prices":
		stored, err = importer.ImportPrices(ctx, c.key, c.file)
	case "net_income":
		stored, err = importer.ImportNetIncome(ctx, c.key, c.file)
	case "eps":
		stored, err = importer.ImportEPS(ctx, c.key, c.file)
	case "rates":
		stored, err = importer.ImportRates(ctx, c.key, c.file)
	default:
		fail("unknown kind %q", c.kind)
		return subcommands.ExitUsageError
	}
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	env.container.EventManager.EmitTyped("cli", &events.DataImportedData{
		Kind:   strings.ToLower(c.kind),
		Key:    c.key,
		Stored: stored,
	})

	fmt.Printf("stored %d %s rows for %s\n", stored, c.kind, strings.ToUpper(c.key))
	return subcommands.ExitSuccess
}
