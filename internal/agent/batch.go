package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
)

// Decider runs one request through the pipeline.
type Decider interface {
	Decide(ctx context.Context, req refund.Request) (refund.Decision, error)
}

// BatchItem is one line of a batch run. Err holds a parse or input error
// for that line only.
type BatchItem struct {
	Line     int
	Request  refund.Request
	Decision refund.Decision
	Err      error
}

// ReadRequests parses one JSON request per line. Blank lines and lines
// starting with # are skipped; an unparseable line becomes an item with Err
// set so the rest of the batch still runs.
func ReadRequests(r io.Reader) ([]BatchItem, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var items []BatchItem
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		item := BatchItem{Line: line}
		if err := json.Unmarshal([]byte(text), &item.Request); err != nil {
			item.Err = fmt.Errorf("line %d: %w", line, err)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return items, fmt.Errorf("read requests: %w", err)
	}
	return items, nil
}

// DecideBatch decides every parsed item with at most workers in flight.
// Items keep their input order. Only context cancellation aborts the run.
func DecideBatch(ctx context.Context, d Decider, items []BatchItem, workers int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))

	for i := range items {
		if items[i].Err != nil {
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			dec, err := d.Decide(gctx, items[i].Request)
			if err != nil {
				items[i].Err = fmt.Errorf("line %d: %w", items[i].Line, err)
				return nil
			}
			items[i].Decision = dec
			return nil
		})
	}
	return g.Wait()
}
