package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdzesseis/logstream/internal/parser"
)

func TestState_ErrorCounts(t *testing.T) {
	s := NewState(time.Minute, nil, nil)

	for i := 0; i < 10; i++ {
		s.ProcessLog(parser.ParsedLog{
			HasLevel: true,
			Level:    parser.LevelError,
			Metadata: map[string]interface{}{"error_type": "E"},
			Timestamp: time.Now().UTC(),
		})
	}

	assert.Equal(t, 10, s.ErrorCount("E"))
}

func TestState_ErrorTypeDefaultsToUnknown(t *testing.T) {
	s := NewState(time.Minute, nil, nil)

	s.ProcessLog(parser.ParsedLog{
		HasLevel:  true,
		Level:     parser.LevelError,
		Metadata:  map[string]interface{}{},
		Timestamp: time.Now().UTC(),
	})

	assert.Equal(t, 1, s.ErrorCount("unknown"))
}

func TestState_ActiveUsersCount(t *testing.T) {
	s := NewState(time.Minute, nil, nil)

	for i := 0; i < 10; i++ {
		s.ProcessLog(parser.ParsedLog{
			Message:   "bad",
			Metadata:  map[string]interface{}{"userid": "u1"},
			Timestamp: time.Now().UTC(),
		})
	}

	assert.Equal(t, 1, s.ActiveUsersCount())
}

func TestState_ResourceUsageTrend(t *testing.T) {
	s := NewState(time.Minute, nil, nil)

	s.ProcessLog(parser.ParsedLog{Metadata: map[string]interface{}{"cpu_usage": "42.5"}, Timestamp: time.Now().UTC()})

	mean, ok := s.ResourceUsageTrend("42.5")
	require.True(t, ok)
	assert.InDelta(t, 42.5, mean, 0.0001)

	_, ok = s.ResourceUsageTrend("never-seen")
	assert.False(t, ok)
}

func TestState_MalformedCPUUsageDropsRecordWithoutPanicking(t *testing.T) {
	s := NewState(time.Minute, nil, nil)

	assert.NotPanics(t, func() {
		s.ProcessLog(parser.ParsedLog{Metadata: map[string]interface{}{"cpu_usage": "not-a-number"}, Timestamp: time.Now().UTC()})
	})

	_, ok := s.ResourceUsageTrend("not-a-number")
	assert.False(t, ok)
}

// TestState_PruneOldDataNeverTouchesResourceUsage exercises the preserved
// pruning bug: prune_old_data iterates user_activity twice and never visits
// resource_usage, so a resource sample older than the window is still
// retained indefinitely while an equally old user-activity entry is dropped.
func TestState_PruneOldDataNeverTouchesResourceUsage(t *testing.T) {
	s := NewState(time.Millisecond, nil, nil)

	old := time.Now().UTC().Add(-time.Hour)
	s.ProcessLog(parser.ParsedLog{
		Metadata:  map[string]interface{}{"userid": "stale-user", "cpu_usage": "99"},
		Timestamp: old,
	})

	time.Sleep(5 * time.Millisecond)
	// Trigger another prune pass via an unrelated record.
	s.ProcessLog(parser.ParsedLog{Metadata: map[string]interface{}{}, Timestamp: time.Now().UTC()})

	assert.Equal(t, 0, s.ActiveUsersCount(), "user activity is pruned on schedule")

	mean, ok := s.ResourceUsageTrend("99")
	require.True(t, ok, "resource_usage entries are never pruned, by the preserved bug")
	assert.InDelta(t, 99, mean, 0.0001)
}

func TestState_ResponseTimePercentiles(t *testing.T) {
	s := NewState(time.Minute, nil, nil)

	_, _, _, ok := s.ResponseTimePercentiles()
	assert.False(t, ok, "no samples means no percentiles")

	for _, v := range []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100} {
		s.RecordResponseTime(v)
	}

	p50, p90, p99, ok := s.ResponseTimePercentiles()
	require.True(t, ok)
	assert.Equal(t, float64(60), p50)
	assert.Equal(t, float64(100), p90)
	assert.Equal(t, float64(100), p99)
}
