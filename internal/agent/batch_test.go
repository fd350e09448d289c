package agent

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/config"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
)

const batchInput = `# sample batch
{"category":"cancelamento","order_status":"AGUARDANDO_CONFIRMACAO","reason_code":"CANCELAMENTO_RESTAURANTE","order_value":45,"elapsed_minutes":3}

{"category":"fraude","order_status":"ENTREGUE","reason_code":"CONTA_INVADIDA","order_value":80,"elapsed_minutes":10}
{not json}
{"category":"xyz","order_status":"ENTREGUE","reason_code":"OUTRO"}
`

func TestReadRequests(t *testing.T) {
	items, err := ReadRequests(strings.NewReader(batchInput))
	if err != nil {
		t.Fatalf("ReadRequests: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(items))
	}
	if items[0].Line != 2 || items[1].Line != 4 {
		t.Errorf("line numbers = %d, %d", items[0].Line, items[1].Line)
	}
	if items[2].Err == nil {
		t.Error("expected parse error on line 5")
	}
}

func TestDecideBatch_KeepsOrderAndIsolatesErrors(t *testing.T) {
	a, err := Build(context.Background(), config.Default(), quiet(), WithSinks())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	items, _ := ReadRequests(strings.NewReader(batchInput))
	if err := DecideBatch(context.Background(), a.Orchestrator, items, 2); err != nil {
		t.Fatalf("DecideBatch: %v", err)
	}
	if items[0].Decision.Verdict != refund.VerdictApprove {
		t.Errorf("line 2 verdict = %s", items[0].Decision.Verdict)
	}
	if items[1].Decision.Verdict != refund.VerdictManualReview {
		t.Errorf("line 4 verdict = %s", items[1].Decision.Verdict)
	}
	if !errors.Is(items[3].Err, refund.ErrInvalidInput) {
		t.Errorf("line 6 err = %v", items[3].Err)
	}
}

type countingDecider struct {
	inFlight, peak atomic.Int32
}

func (c *countingDecider) Decide(ctx context.Context, req refund.Request) (refund.Decision, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return refund.Decision{Verdict: refund.VerdictApprove}, ctx.Err()
}

func TestDecideBatch_RespectsWorkerLimit(t *testing.T) {
	items := make([]BatchItem, 50)
	d := &countingDecider{}
	if err := DecideBatch(context.Background(), d, items, 3); err != nil {
		t.Fatal(err)
	}
	if p := d.peak.Load(); p > 3 {
		t.Errorf("peak concurrency %d exceeds limit", p)
	}
}

func TestDecideBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items := make([]BatchItem, 5)
	if err := DecideBatch(ctx, &countingDecider{}, items, 2); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
