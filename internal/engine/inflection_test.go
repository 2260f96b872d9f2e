package engine

import (
	"testing"
	"time"

	"github.com/miradorstack/mirador-responder/internal/models"
)

func series(values ...float64) []models.MetricSample {
	out := make([]models.MetricSample, len(values))
	for i, v := range values {
		out[i] = models.MetricSample{
			ServiceID: "checkout",
			Key:       "cpu",
			Timestamp: alertTime.Add(time.Duration(i-len(values)+1) * time.Minute),
			Value:     v,
		}
	}
	return out
}

func TestStrongestInflectionFindsKnee(t *testing.T) {
	s := series(1, 1, 1, 1, 5, 9, 13)
	inf, ok := strongestInflection(s, alertTime.Add(-time.Hour), alertTime)
	if !ok {
		t.Fatalf("expected an inflection")
	}
	if !inf.Sample.Timestamp.Equal(s[3].Timestamp) {
		t.Fatalf("expected knee at index 3, got %s", inf.Sample.Timestamp)
	}
	if inf.Score <= 0 {
		t.Fatalf("expected positive score")
	}
}

func TestStrongestInflectionRespectsWindow(t *testing.T) {
	s := series(1, 1, 1, 1, 5, 9, 13)
	if _, ok := strongestInflection(s, alertTime.Add(-time.Minute), alertTime); ok {
		t.Fatalf("knee outside the window must be ignored")
	}
}

func TestStrongestInflectionFlatOrShort(t *testing.T) {
	if _, ok := strongestInflection(series(3, 3, 3, 3), alertTime.Add(-time.Hour), alertTime); ok {
		t.Fatalf("flat series has no inflection")
	}
	if _, ok := strongestInflection(series(1, 9), alertTime.Add(-time.Hour), alertTime); ok {
		t.Fatalf("two samples cannot inflect")
	}
	if _, ok := strongestInflection(series(1, 2, 3, 4, 5), alertTime.Add(-time.Hour), alertTime); ok {
		t.Fatalf("constant slope has no inflection")
	}
}

func TestDedupeByTimestampKeepsLast(t *testing.T) {
	s := series(1, 2, 3)
	dup := s[1]
	dup.Value = 42
	s = append(s[:2], dup, s[2])

	out := dedupeByTimestamp(s)
	if len(out) != 3 || out[1].Value != 42 {
		t.Fatalf("unexpected dedupe result %+v", out)
	}
}
