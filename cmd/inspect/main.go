package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/audit"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to audit SQLite db")
	jsonlPath := flag.String("jsonl", "", "path to audit JSONL log")
	last := flag.Int("last", 20, "show N most recent decisions")
	id := flag.String("id", "", "show the full event trail of one correlation id")
	since := flag.Duration("since", 0, "only decisions newer than this (e.g. 24h)")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if (*dbPath == "") == (*jsonlPath == "") {
		fmt.Fprintln(os.Stderr, "usage: inspect (--db path/to/audit.db | --jsonl path/to/audit.jsonl) [--last N] [--since 24h] [--id correlation-id] [--json]")
		os.Exit(2)
	}

	reader, closeFn, err := openReader(*dbPath, *jsonlPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open audit: %v\n", err)
		os.Exit(1)
	}
	defer closeFn()

	ctx := context.Background()
	if *id != "" {
		err = runDetailMode(ctx, reader, *id, *jsonOut)
	} else {
		err = runListMode(ctx, reader, *last, *since, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func openReader(dbPath, jsonlPath string) (audit.Reader, func() error, error) {
	if dbPath != "" {
		s, err := audit.NewSQLiteSink(dbPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	f, err := os.Open(jsonlPath)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	events, err := audit.ReadJSONL(f)
	if err != nil {
		return nil, nil, err
	}
	mem := audit.NewMemorySink()
	for _, e := range events {
		mem.Append(context.Background(), e)
	}
	return mem, mem.Close, nil
}

// #endregion main

// #region list-mode

type listRow struct {
	CorrelationID string  `json:"correlation_id"`
	Verdict       string  `json:"verdict"`
	Confidence    float64 `json:"confidence"`
	RuleID        string  `json:"rule_id,omitempty"`
	Source        string  `json:"source_method"`
	Degraded      bool    `json:"degraded"`
	CreatedAt     string  `json:"created_at"`
}

func runListMode(ctx context.Context, reader audit.Reader, last int, since time.Duration, jsonOut bool) error {
	f := audit.Filter{Type: audit.TypeDecisionFinal, Limit: last}
	if since > 0 {
		f.Since = time.Now().Add(-since)
	}
	events, err := reader.List(ctx, f)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stderr, "no decisions found")
		return nil
	}

	rows := make([]listRow, len(events))
	counts := map[string]int{}
	for i, e := range events {
		rows[i] = listRow{
			CorrelationID: e.CorrelationID,
			Verdict:       str(e.Data, "verdict"),
			Confidence:    num(e.Data, "confidence"),
			RuleID:        str(e.Data, "rule_id"),
			Source:        str(e.Data, "source_method"),
			Degraded:      e.Data["degraded"] == true,
			CreatedAt:     e.Timestamp.Format("2006-01-02T15:04:05Z"),
		}
		counts[rows[i].Verdict]++
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-12s  %-14s  %6s  %-14s  %-16s  %s\n",
		"Decision", "Verdict", "Conf", "Rule", "Source", "Time")
	fmt.Printf("%-12s+-%-14s+-%6s+-%-14s+-%-16s+-%s\n",
		"------------", "--------------", "------", "--------------", "----------------", "--------------------")
	for _, r := range rows {
		rule := r.RuleID
		if rule == "" {
			rule = "—"
		}
		source := r.Source
		if r.Degraded {
			source += "*"
		}
		fmt.Printf("%-12s  %s  %6.2f  %-14s  %-16s  %s\n",
			shortID(r.CorrelationID), verdictColor(r.Verdict), r.Confidence, rule, source, r.CreatedAt)
	}

	fmt.Printf("\nVerdicts:\n")
	for _, v := range refund.Verdicts() {
		fmt.Printf("  %-14s %d\n", v, counts[string(v)])
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

func runDetailMode(ctx context.Context, reader audit.Reader, id string, jsonOut bool) error {
	events, err := reader.Query(ctx, id)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("no events for %s", id)
	}
	if jsonOut {
		return printJSON(events)
	}

	fmt.Printf("Correlation: %s\n", id)
	fmt.Printf("Started:     %s\n", events[0].Timestamp.Format(time.RFC3339Nano))
	for _, e := range events {
		fmt.Printf("\n%s  %s\n", e.Timestamp.Format("15:04:05.000"), color.New(color.Bold).Sprint(e.Type))
		for k, v := range e.Data {
			fmt.Printf("  %-20s %v\n", k, v)
		}
	}

	final := events[len(events)-1]
	if final.Type == audit.TypeDecisionFinal {
		fmt.Printf("\nVerdict:     %s\n", verdictColor(str(final.Data, "verdict")))
		fmt.Printf("Explanation: %s\n", str(final.Data, "explanation"))
	}
	return nil
}

// #endregion detail-mode

// #region output

func verdictColor(v string) string {
	padded := fmt.Sprintf("%-14s", v)
	switch refund.Verdict(v) {
	case refund.VerdictApprove:
		return color.GreenString(padded)
	case refund.VerdictReject:
		return color.RedString(padded)
	case refund.VerdictManualReview, refund.VerdictEscalate:
		return color.YellowString(padded)
	}
	return padded
}

func str(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func num(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
