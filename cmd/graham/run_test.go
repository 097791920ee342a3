package main

import (
	"bytes"
	"context"
	"flag"
	"testing"
	"time"

	"github.com/google/subcommands"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/graham/internal/modules/export"
	"github.com/aristath/graham/internal/modules/results"
	"github.com/aristath/graham/internal/modules/runs"
	"github.com/aristath/graham/internal/services"
)

func TestPrintPair(t *testing.T) {
	pair := &services.PairResult{
		PairID: "pair-1",
		Name:   "sample",
		Strategy: services.RunOutcome{Run: &runs.Run{
			ID:      "s-1",
			Summary: results.Summary{FinalEquity: 12000, TotalReturnPct: 20, TradeCount: 3, Days: 250},
		}},
		Baseline: services.RunOutcome{Run: &runs.Run{
			ID:      "b-1",
			Summary: results.Summary{FinalEquity: 11000, TotalReturnPct: 10, Days: 250},
		}},
		Comparison: results.Comparison{ExcessReturnPct: 10},
		Exports:    []*export.Report{{Dir: "/tmp/exports/s-1"}},
		Duration:   1500 * time.Millisecond,
	}

	var out bytes.Buffer
	printPair(&out, pair)

	text := out.String()
	assert.Contains(t, text, "sample (pair pair-1, 1.5s)")
	assert.Contains(t, text, "12000.00")
	assert.Contains(t, text, "11000.00")
	assert.Contains(t, text, "excess return: +10.00 pp")
	assert.Contains(t, text, "strategy run:  s-1")
	assert.Contains(t, text, "baseline run:  b-1")
	assert.Contains(t, text, "exported:      /tmp/exports/s-1")
}

func TestCommandsRequireFlags(t *testing.T) {
	tests := []struct {
		name string
		cmd  subcommands.Command
	}{
		{"run", &runCmd{}},
		{"import", &importCmd{}},
		{"export", &exportCmd{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := flag.NewFlagSet(tt.name, flag.ContinueOnError)
			tt.cmd.SetFlags(fs)
			assert.Equal(t, subcommands.ExitUsageError, tt.cmd.Execute(context.Background(), fs))
		})
	}
}

func TestCommandNames(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range commands {
		assert.False(t, seen[c.Name()], c.Name())
		seen[c.Name()] = true
		assert.NotEmpty(t, c.Synopsis())
		assert.NotEmpty(t, c.Usage())
	}
	assert.Len(t, seen, 5)
}
