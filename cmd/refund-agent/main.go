package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/agent"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/config"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/logging"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
)

// #region main

func main() {
	configPath := flag.String("config", "", "path to agent YAML config (optional)")
	requestPath := flag.String("request", "", "JSON request file, - for stdin")
	batchPath := flag.String("batch", "", "JSONL file with one request per line")
	workers := flag.Int("workers", 0, "batch concurrency (default from config)")
	jsonOut := flag.Bool("json", false, "print decisions as JSON")
	flag.Parse()

	if (*requestPath == "") == (*batchPath == "") {
		fmt.Fprintln(os.Stderr, "usage: refund-agent --request path/to/request.json [--json]")
		fmt.Fprintln(os.Stderr, "       refund-agent --batch path/to/requests.jsonl [--workers N] [--json]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}
	logger, _, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := agent.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("build agent", "error", err)
		os.Exit(1)
	}

	var code int
	if *requestPath != "" {
		code = runSingle(ctx, a, *requestPath, *jsonOut)
	} else {
		n := cfg.Batch.Workers
		if *workers > 0 {
			n = *workers
		}
		code = runBatch(ctx, a, *batchPath, n, *jsonOut)
	}
	if err := a.Close(); err != nil {
		logger.Warn("close agent", "error", err)
	}
	stop()
	os.Exit(code)
}

// #endregion main

// #region single

func runSingle(ctx context.Context, a *agent.Agent, path string, jsonOut bool) int {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open request: %v\n", err)
			return 2
		}
		defer f.Close()
		r = f
	}

	var req refund.Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		fmt.Fprintf(os.Stderr, "parse request: %v\n", err)
		return 2
	}

	d, err := a.Orchestrator.Decide(ctx, req)
	if err != nil {
		var inputErr *refund.InputError
		if errors.As(err, &inputErr) {
			for _, p := range inputErr.Problems {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", p.Field, p.Message)
			}
			return 2
		}
		fmt.Fprintf(os.Stderr, "decide: %v\n", err)
		return 1
	}

	if jsonOut {
		return printJSON(d)
	}
	printDecision(d)
	return 0
}

// #endregion single

// #region batch

func runBatch(ctx context.Context, a *agent.Agent, path string, workers int, jsonOut bool) int {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open batch: %v\n", err)
		return 2
	}
	defer f.Close()

	items, err := agent.ReadRequests(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	if err := agent.DecideBatch(ctx, a.Orchestrator, items, workers); err != nil {
		fmt.Fprintf(os.Stderr, "batch interrupted: %v\n", err)
		return 1
	}

	counts := map[refund.Verdict]int{}
	failed := 0
	for _, it := range items {
		if it.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("skip"), it.Err)
			continue
		}
		counts[it.Decision.Verdict]++
		if jsonOut {
			line, _ := json.Marshal(it.Decision)
			fmt.Println(string(line))
			continue
		}
		fmt.Printf("%4d  %s  %.2f  %-18s %s\n", it.Line, verdictColor(it.Decision.Verdict),
			it.Decision.Confidence, orDash(it.Decision.RuleID), it.Decision.SourceMethod)
	}

	if !jsonOut {
		fmt.Printf("\nSummary: %d requests, %d failed\n", len(items), failed)
		for _, v := range refund.Verdicts() {
			fmt.Printf("  %-14s %d\n", v, counts[v])
		}
	}
	if failed > 0 {
		return 1
	}
	return 0
}

// #endregion batch

// #region output

func printDecision(d refund.Decision) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("%s %s\n", bold("Verdict:       "), verdictColor(d.Verdict))
	fmt.Printf("%s %s (%.2f)\n", bold("Confidence:    "), d.ConfidenceLabel, d.Confidence)
	fmt.Printf("%s %.3f -> %s\n", bold("Score:         "), d.Score, d.Recommendation)
	fmt.Printf("%s %s\n", bold("Rule:          "), orDash(d.RuleID))
	fmt.Printf("%s %s\n", bold("Source:        "), d.SourceMethod)
	fmt.Printf("%s %v\n", bold("Policies:      "), d.MatchedPolicyIDs)
	fmt.Printf("%s %s\n", bold("Explanation:   "), d.Explanation)
	if d.Degraded {
		color.Yellow("degraded run: an auxiliary stage failed, see logs")
	}
	fmt.Printf("%s %s  (%s)\n", bold("Correlation:   "), d.CorrelationID, d.ProcessingTime)
}

func verdictColor(v refund.Verdict) string {
	padded := fmt.Sprintf("%-14s", v)
	switch v {
	case refund.VerdictApprove:
		return color.GreenString(padded)
	case refund.VerdictReject:
		return color.RedString(padded)
	}
	return color.YellowString(padded)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal json: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}

// #endregion output
