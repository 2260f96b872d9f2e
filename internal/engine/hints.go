package engine

import "strings"

type diffHint struct {
	keywords []string
	advice   string
}

// diffHints flag well-known defect patterns in a change's diff summary.
var diffHints = []diffHint{
	{keywords: []string{"full table scan", "select *", "without index", "missing index"}, advice: "query without index: add the index or restore the previous query"},
	{keywords: []string{"connection leak", "unclosed connection", "not closed", "defer close removed"}, advice: "connection leak: make sure connections are returned to the pool"},
	{keywords: []string{"memory leak", "unbounded cache", "not released", "never freed"}, advice: "memory leak: check for retained references or unbounded caches"},
	{keywords: []string{"infinite loop", "infinite", "busy loop", "for {}"}, advice: "possible infinite loop: check loop exit conditions"},
	{keywords: []string{"slow query", "n+1", "query timeout"}, advice: "slow queries: review query plans introduced by the change"},
}

// hintsFor returns the advice for every pattern found in summary.
func hintsFor(summary string) []string {
	lower := strings.ToLower(summary)
	if lower == "" {
		return nil
	}
	var out []string
	for _, h := range diffHints {
		for _, kw := range h.keywords {
			if strings.Contains(lower, kw) {
				out = append(out, h.advice)
				break
			}
		}
	}
	return out
}
