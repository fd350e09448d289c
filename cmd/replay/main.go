package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/fatih/color"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/agent"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/audit"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/config"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/replay"
)

// #region main

func main() {
	configPath := flag.String("config", "", "path to agent YAML config (optional)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	dbPath := flag.String("db", "", "path to audit SQLite db (audit mode)")
	jsonlPath := flag.String("jsonl", "", "path to audit JSONL log (audit mode)")
	flag.Parse()

	modes := 0
	for _, p := range []string{*fixturePath, *dbPath, *jsonlPath} {
		if p != "" {
			modes++
		}
	}
	if modes != 1 {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json")
		fmt.Fprintln(os.Stderr, "       replay --db path/to/audit.db")
		fmt.Fprintln(os.Stderr, "       replay --jsonl path/to/audit.jsonl")
		os.Exit(2)
	}

	os.Exit(run(*configPath, *fixturePath, *dbPath, *jsonlPath))
}

func run(configPath, fixturePath, dbPath, jsonlPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 2
	}

	var cases []replay.FixtureCase
	switch {
	case fixturePath != "":
		f, err := replay.LoadFixture(fixturePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
			return 2
		}
		cases = f.Cases
	default:
		events, err := readAudit(dbPath, jsonlPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read audit: %v\n", err)
			return 2
		}
		cases = replay.FromAudit(events)
	}
	if len(cases) == 0 {
		fmt.Fprintln(os.Stderr, "no cases to replay")
		return 2
	}

	// Replays are not audited; the recorded trail is the reference.
	logger := slog.New(slog.DiscardHandler)
	a, err := agent.Build(context.Background(), cfg, logger, agent.WithSinks())
	if err != nil {
		fmt.Fprintf(os.Stderr, "build agent: %v\n", err)
		return 2
	}
	defer a.Close()

	results := replay.Replay(context.Background(), a.Orchestrator, cases)
	return printComparison(results)
}

// #endregion main

// #region audit-extract

func readAudit(dbPath, jsonlPath string) ([]audit.Event, error) {
	if jsonlPath != "" {
		f, err := os.Open(jsonlPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return audit.ReadJSONL(f)
	}
	sink, err := audit.NewSQLiteSink(dbPath)
	if err != nil {
		return nil, err
	}
	defer sink.Close()
	return sink.List(context.Background(), audit.Filter{})
}

// #endregion audit-extract

// #region output

// printComparison outputs a comparison table and returns the exit code.
func printComparison(results []replay.Result) int {
	ok := color.New(color.FgGreen).SprintFunc()
	diff := color.New(color.FgRed, color.Bold).SprintFunc()

	fmt.Printf("%-38s| %-14s| %-14s| %-12s| %s\n", "Case", "Expected", "Replayed", "Rule", "Match")
	fmt.Printf("%-38s+%-15s+%-15s+%-13s+%s\n",
		strings.Repeat("-", 38), strings.Repeat("-", 15), strings.Repeat("-", 15), strings.Repeat("-", 13), "------")

	for _, r := range results {
		got, rule := "-", "-"
		if r.Err == nil {
			got = string(r.Decision.Verdict)
			if r.Decision.RuleID != "" {
				rule = r.Decision.RuleID
			}
		}
		match := ok("OK")
		switch {
		case r.Err != nil:
			match = diff("ERROR " + r.Err.Error())
		case !r.Matched():
			match = diff("DIFF " + strings.Join(r.Drift, "; "))
		}
		fmt.Printf("%-38s| %-14s| %-14s| %-12s| %s\n", r.CaseID, r.Expected.Verdict, got, rule, match)
	}

	s := replay.Summarize(results)
	fmt.Printf("\nSummary: %d total, %d match, %d diverge, %d error\n", s.Total, s.Matched, s.Drifted, s.Errors)
	for _, verdict := range slices.Sorted(maps.Keys(s.ByVerdict)) {
		fmt.Printf("  %-14s %d\n", verdict, s.ByVerdict[verdict])
	}

	if s.Drifted > 0 || s.Errors > 0 {
		return 1
	}
	return 0
}

// #endregion output
