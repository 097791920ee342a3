package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type exportCmd struct {
	runID string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "export a stored run as CSV files" }
func (*exportCmd) Usage() string {
	return `export -run <run-id>

  Writes equity_curve.csv, trades.csv, dividends.csv and summary.csv for the
  run, uploading them when an S3 bucket is configured.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.runID, "run", "", "Run id (required)")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.runID == "" {
		fail("-run is required")
		return subcommands.ExitUsageError
	}

	env, err := openEnvironment(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer env.Close()

	result, err := env.container.Runs.Result(ctx, c.runID)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	report, err := env.container.Exporter.Export(ctx, c.runID, result)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	for _, file := range report.Files {
		fmt.Println(file)
	}
	for _, key := range report.Uploaded {
		fmt.Printf("uploaded %s\n", key)
	}
	return subcommands.ExitSuccess
}
