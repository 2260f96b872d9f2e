package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/miradorstack/mirador-responder/internal/models"
)

type queryRequest struct {
	ServiceID string   `json:"service_id"`
	Start     string   `json:"start"`
	End       string   `json:"end"`
	Kinds     []string `json:"kinds"`
}

// scenario returns a deploy, a memory climb and connection errors leading up to end.
func scenario(serviceID string, end time.Time) []models.Evidence {
	out := []models.Evidence{
		models.ChangeEvidence(models.ChangeEvent{
			ServiceID:   serviceID,
			CommitID:    "9f1c2ab7d0e4",
			Author:      "release-bot",
			Timestamp:   end.Add(-4 * time.Minute),
			File:        "internal/db/pool.go",
			LineRange:   models.LineRange{Start: 40, End: 72},
			DiffSummary: "lower max idle connections",
		}),
	}
	values := []float64{410, 412, 409, 411, 413, 410, 690, 702}
	for i, v := range values {
		out = append(out, models.MetricEvidence(models.MetricSample{
			ServiceID: serviceID,
			Timestamp: end.Add(time.Duration(i-len(values)) * 30 * time.Second),
			Key:       "memory_rss_mb",
			Value:     v,
		}))
	}
	out = append(out,
		models.LogEvidence(models.LogEvent{
			ServiceID: serviceID,
			Timestamp: end.Add(-90 * time.Second),
			Key:       "db.connection",
			Text:      "connection pool exhausted",
			Severity:  models.SeverityHigh,
		}),
		models.LogEvidence(models.LogEvent{
			ServiceID: serviceID,
			Timestamp: end.Add(-45 * time.Second),
			Key:       "db.connection",
			Text:      "timeout acquiring connection",
			Severity:  models.SeverityCritical,
		}),
	)
	return out
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/evidence/query", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		end, err := time.Parse(time.RFC3339Nano, req.End)
		if err != nil {
			end = time.Now().UTC()
		}
		writeJSON(w, map[string]any{"evidence": scenario(req.ServiceID, end)})
	})

	logger := log.New(log.Writer(), "evidence-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8090",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8090")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
