// Package analytics aggregates ParsedLog records into a sliding-window
// summary: per-type error counts, per-user activity, and per-value resource
// usage trends.
package analytics

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mdzesseis/logstream/internal/metrics"
	"github.com/mdzesseis/logstream/internal/parser"
)

// resourceSample pairs a timestamp with the numeric value observed at it.
type resourceSample struct {
	at    time.Time
	value float64
}

// State accumulates analytics over a moving time window. All mutation and
// all queries go through the same mutex; nothing in process_log suspends
// while it is held.
type State struct {
	mu sync.Mutex

	windowSize  time.Duration
	windowStart time.Time
	logger      *logrus.Logger
	metrics     *metrics.Registry

	errorCounts    map[string]int
	responseTimes  []float64
	userActivity   map[string][]time.Time
	resourceUsage  map[string][]resourceSample
}

// NewState creates an analytics aggregator with the given window size. reg
// may be nil, in which case analytics gauges are never published.
func NewState(windowSize time.Duration, logger *logrus.Logger, reg *metrics.Registry) *State {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &State{
		windowSize:    windowSize,
		windowStart:   time.Now().UTC(),
		logger:        logger,
		metrics:       reg,
		errorCounts:   make(map[string]int),
		userActivity:  make(map[string][]time.Time),
		resourceUsage: make(map[string][]resourceSample),
	}
}

// ProcessLog folds one parsed record into the aggregate state. Order
// matters: prune, then error counting, then user activity, then resource
// usage.
func (s *State) ProcessLog(log parser.ParsedLog) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneOldData()

	if log.HasLevel && log.Level == parser.LevelError {
		errorType := "unknown"
		if v, ok := log.Metadata["error_type"].(string); ok {
			errorType = v
		}
		s.errorCounts[errorType]++
		if s.metrics != nil {
			s.metrics.SetErrorCount(errorType, s.errorCounts[errorType])
		}
	}

	if userID, ok := log.Metadata["userid"].(string); ok {
		ts := log.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		s.userActivity[userID] = append(s.userActivity[userID], ts)
	}

	if cpuUsage, ok := log.Metadata["cpu_usage"].(string); ok {
		value, err := strconv.ParseFloat(cpuUsage, 64)
		if err != nil {
			// A non-numeric cpu_usage is skipped with a warning rather
			// than crashing the worker. Only the resource sample is
			// lost: the error count and user activity above are already
			// applied, and the record itself is still emitted.
			s.logger.WithField("cpu_usage", cpuUsage).Warn("analytics: cpu_usage not numeric, dropping sample")
			return
		}
		ts := log.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		// Keyed by the stringified value itself, not by a resource name:
		// the upstream record carries no resource identifier, only the
		// reading, so each distinct value gets its own bucket.
		s.resourceUsage[cpuUsage] = append(s.resourceUsage[cpuUsage], resourceSample{at: ts, value: value})

		if s.metrics != nil {
			samples := s.resourceUsage[cpuUsage]
			var sum float64
			for _, sample := range samples {
				sum += sample.value
			}
			s.metrics.SetResourceUsageTrend(cpuUsage, sum/float64(len(samples)))
		}
	}

	if s.metrics != nil && len(s.responseTimes) > 0 {
		p50, p90, p99 := percentiles(s.responseTimes)
		s.metrics.SetResponseTimePercentiles(p50, p90, p99)
	}
}

// pruneOldData drops entries older than the window. It prunes user_activity
// twice and never touches resource_usage at all: the second loop was meant
// to walk resource_usage but iterates user_activity's keys again instead,
// so resource_usage grows without bound. Preserved as observed rather than
// corrected.
func (s *State) pruneOldData() {
	now := time.Now().UTC()
	s.windowStart = now.Add(-s.windowSize)

	for user, activity := range s.userActivity {
		s.userActivity[user] = retainSince(activity, s.windowStart)
	}

	for user, activity := range s.userActivity {
		s.userActivity[user] = retainSince(activity, s.windowStart)
	}
}

func retainSince(timestamps []time.Time, cutoff time.Time) []time.Time {
	kept := timestamps[:0]
	for _, t := range timestamps {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// ResponseTimePercentiles reports (p50, p90, p99) over all recorded response
// times, or ok=false if none have been recorded. response_times is never
// populated by ProcessLog in this implementation (see duration_ms note in
// the design ledger); the query is kept so a caller wiring a future source
// of response times has somewhere to read them back from.
func (s *State) ResponseTimePercentiles() (p50, p90, p99 float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.responseTimes) == 0 {
		return 0, 0, 0, false
	}

	p50, p90, p99 = percentiles(s.responseTimes)
	return p50, p90, p99, true
}

// percentiles returns the (p50, p90, p99) values of samples without
// mutating it.
func percentiles(samples []float64) (p50, p90, p99 float64) {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	n := len(sorted)
	idx := func(p float64) int {
		i := int(float64(n) * p)
		if i >= n {
			i = n - 1
		}
		return i
	}
	return sorted[idx(0.50)], sorted[idx(0.90)], sorted[idx(0.99)]
}

// ActiveUsersCount reports how many users have at least one retained
// activity timestamp.
func (s *State) ActiveUsersCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, activity := range s.userActivity {
		if len(activity) > 0 {
			count++
		}
	}
	return count
}

// ResourceUsageTrend reports the mean of retained values for key, ok=false
// if key was never observed, 0 if it was observed but every sample has
// since been pruned (which, given the pruning bug above, never actually
// happens in practice).
func (s *State) ResourceUsageTrend(key string) (mean float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples, present := s.resourceUsage[key]
	if !present {
		return 0, false
	}
	if len(samples) == 0 {
		return 0, true
	}

	var sum float64
	for _, sample := range samples {
		sum += sample.value
	}
	return sum / float64(len(samples)), true
}

// RecordResponseTime feeds an external duration sample into the percentile
// query. Not called anywhere in this pipeline's own flow; exposed for a
// caller that wants to wire metadata.duration_ms in.
func (s *State) RecordResponseTime(ms float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responseTimes = append(s.responseTimes, ms)
}

// ErrorCount reports the current count for a given error_type.
func (s *State) ErrorCount(errorType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorCounts[errorType]
}
