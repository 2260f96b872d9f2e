package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register should ignore duplicates: %v", err)
	}
}

func TestObserveAnalysisNormalisesOutcome(t *testing.T) {
	before := counterValue(t, analysesTotal.WithLabelValues(OutcomeSuccess))
	ObserveAnalysis(-time.Second, "weird")
	after := counterValue(t, analysesTotal.WithLabelValues(OutcomeSuccess))
	if after != before+1 {
		t.Fatalf("expected unknown outcome to count as success, before=%f after=%f", before, after)
	}
}

func TestObserveExecutionLabels(t *testing.T) {
	ObserveExecution("restart", false)
	if got := counterValue(t, executionsTotal.WithLabelValues("restart", FeedbackFailed)); got < 1 {
		t.Fatalf("expected failed execution counted, got %f", got)
	}
}
