package dispatcher

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mdzesseis/logstream/internal/analytics"
	"github.com/mdzesseis/logstream/internal/ingest"
	"github.com/mdzesseis/logstream/internal/parser"
)

// fakeSource yields a fixed slice of lines then io.EOF. Close calls are
// tracked so tests can assert the worker lifecycle.
type fakeSource struct {
	label string
	lines []string

	mu         sync.Mutex
	idx        int
	closed     bool
	closeCount int
}

func newFakeSource(label string, lines ...string) *fakeSource {
	return &fakeSource{label: label, lines: lines}
}

func (f *fakeSource) Label() string                    { return f.label }
func (f *fakeSource) Init(ctx context.Context) error    { return nil }

func (f *fakeSource) ReadLine(ctx context.Context) (ingest.LogLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.lines) {
		return ingest.LogLine{}, io.EOF
	}
	line := f.lines[f.idx]
	f.idx++
	return ingest.LogLine{Content: line, Source: f.label, Timestamp: time.Now().UTC()}, nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCount++
	return nil
}

func newRegistry() *parser.ParserRegistry {
	r := parser.NewParserRegistry()
	r.Register(parser.NewJsonParser())
	r.Register(parser.NewPlainTextParser())
	return r
}

func TestEngine_EmitsOneRecordPerLineAcrossSources(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("github.com/sirupsen/logrus.(*Logger).Log"),
	)

	state := analytics.NewState(time.Minute, nil, nil)
	engine := NewEngine(DefaultConfig(), newRegistry(), state, nil, nil, nil)

	src1 := newFakeSource("src1", `{"message":"a"}`, `{"message":"b"}`)
	src2 := newFakeSource("src2", "plain line")
	engine.AddSource(src1)
	engine.AddSource(src2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := engine.Run(ctx)

	var got []parser.ParsedLog
	for record := range out {
		got = append(got, record)
	}

	require.Len(t, got, 3)
	assert.True(t, src1.closed)
	assert.True(t, src2.closed)
	assert.Equal(t, 1, src1.closeCount)
	assert.Equal(t, 1, src2.closeCount)
}

func TestEngine_BatchesAtConfiguredSize(t *testing.T) {
	state := analytics.NewState(time.Minute, nil, nil)
	engine := NewEngine(Config{OutputChannelCapacity: 10, BatchSize: 2}, newRegistry(), state, nil, nil, nil)

	lines := make([]string, 5)
	for i := range lines {
		lines[i] = fmt.Sprintf(`{"message":"m%d"}`, i)
	}
	engine.AddSource(newFakeSource("src", lines...))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := engine.Run(ctx)

	count := 0
	for range out {
		count++
	}
	assert.Equal(t, 5, count)
}

func TestEngine_DroppingReceiverStopsWorkers(t *testing.T) {
	state := analytics.NewState(time.Minute, nil, nil)
	engine := NewEngine(DefaultConfig(), newRegistry(), state, nil, nil, nil)

	// A source that never runs out of input; without the receiver draining,
	// the worker must stop once the context is canceled rather than block
	// forever on a full channel.
	engine.AddSource(&infiniteSource{label: "infinite"})

	ctx, cancel := context.WithCancel(context.Background())
	out := engine.Run(ctx)

	<-out // take exactly one record to prove the pipeline is live
	cancel()

	select {
	case _, ok := <-out:
		if ok {
			// Drain until closed; a few buffered records may still arrive.
			for range out {
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not shut down after context cancellation")
	}
}

type infiniteSource struct {
	label string
	n     int
}

func (s *infiniteSource) Label() string                 { return s.label }
func (s *infiniteSource) Init(ctx context.Context) error { return nil }
func (s *infiniteSource) Close() error                   { return nil }
func (s *infiniteSource) ReadLine(ctx context.Context) (ingest.LogLine, error) {
	s.n++
	return ingest.LogLine{Content: fmt.Sprintf(`{"message":"m%d"}`, s.n), Source: s.label, Timestamp: time.Now().UTC()}, nil
}
