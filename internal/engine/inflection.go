package engine

import (
	"math"
	"time"

	"github.com/miradorstack/mirador-responder/internal/models"
)

// inflection is the strongest slope change found in a metric series.
type inflection struct {
	Sample models.MetricSample
	Delta  float64
	Score  float64 // Delta divided by the standard deviation of all slopes.
}

// strongestInflection scans series (ascending by time) for the sample inside
// [from, to] whose incoming and outgoing slopes differ most, in units of the
// series' slope standard deviation. Samples need a neighbour on both sides.
// ok is false when the series is too short or flat.
func strongestInflection(series []models.MetricSample, from, to time.Time) (inflection, bool) {
	series = dedupeByTimestamp(series)
	if len(series) < 3 {
		return inflection{}, false
	}

	slopes := make([]float64, len(series)-1)
	for i := 0; i < len(series)-1; i++ {
		dt := series[i+1].Timestamp.Sub(series[i].Timestamp).Seconds()
		slopes[i] = (series[i+1].Value - series[i].Value) / dt
	}

	std := stddev(slopes)
	if std == 0 || math.IsNaN(std) {
		return inflection{}, false
	}

	var best inflection
	found := false
	for j := 1; j < len(series)-1; j++ {
		ts := series[j].Timestamp
		if ts.Before(from) || ts.After(to) {
			continue
		}
		delta := math.Abs(slopes[j] - slopes[j-1])
		if !found || delta > best.Delta {
			best = inflection{Sample: series[j], Delta: delta, Score: delta / std}
			found = true
		}
	}
	if !found || best.Delta == 0 {
		return inflection{}, false
	}
	return best, true
}

// dedupeByTimestamp keeps the last value reported for each timestamp.
func dedupeByTimestamp(series []models.MetricSample) []models.MetricSample {
	out := make([]models.MetricSample, 0, len(series))
	for _, s := range series {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(s.Timestamp) {
			out[n-1] = s
			continue
		}
		out = append(out, s)
	}
	return out
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += math.Pow(v-mean, 2)
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}
