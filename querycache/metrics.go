package querycache

import (
	"sort"
	"time"
)

// Metric records one execution of a query. Only the latest execution of each query id
// is retained, and at most MetricsCapacity ids are kept (least recently used first out).
type Metric struct {
	QueryID     string        `json:"queryId"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     time.Time     `json:"endTime"`
	Duration    time.Duration `json:"duration"`
	CacheHit    bool          `json:"cacheHit"`
	RecordCount int           `json:"recordCount"`
	Error       string        `json:"error,omitempty"`
}

// Stats aggregates the retained metrics. Only the latest execution of each distinct
// query id is kept, so Total counts ids and the rates weigh every id once regardless of
// how often it ran.
type Stats struct {
	Total           int           `json:"total"`
	CacheHitRate    float64       `json:"cacheHitRate"`
	AverageDuration time.Duration `json:"averageDuration"`
	ErrorRate       float64       `json:"errorRate"`
	SlowQueries     []string      `json:"slowQueries"`
}

func (qc *QueryCache) finish(m *Metric, hit bool, count int, err error) {
	m.EndTime = qc.now()
	m.Duration = m.EndTime.Sub(m.StartTime)
	m.CacheHit = hit
	m.RecordCount = count
	if err != nil {
		m.Error = err.Error()
	}
	qc.metrics.Add(m.QueryID, *m)
}

// Metrics returns the latest metric of a query.
func (qc *QueryCache) Metrics(queryID string) (Metric, bool) {
	return qc.metrics.Peek(queryID)
}

// Stats summarizes the retained metrics. SlowQueries lists, sorted, the ids whose latest
// execution exceeded the slow threshold.
func (qc *QueryCache) Stats() Stats {
	metrics := qc.metrics.Values()
	stats := Stats{Total: len(metrics), SlowQueries: []string{}}
	if len(metrics) == 0 {
		return stats
	}

	var (
		hits   int
		errs   int
		summed time.Duration
	)
	for _, m := range metrics {
		if m.CacheHit {
			hits++
		}
		if m.Error != "" {
			errs++
		}
		summed += m.Duration
		if m.Duration > qc.cfg.SlowThreshold {
			stats.SlowQueries = append(stats.SlowQueries, m.QueryID)
		}
	}
	sort.Strings(stats.SlowQueries)

	total := float64(len(metrics))
	stats.CacheHitRate = float64(hits) / total
	stats.ErrorRate = float64(errs) / total
	stats.AverageDuration = summed / time.Duration(len(metrics))
	return stats
}

// ResetMetrics drops every retained metric.
func (qc *QueryCache) ResetMetrics() {
	qc.metrics.Purge()
}
