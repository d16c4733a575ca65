package ingest

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/mdzesseis/logstream/pkg/errors"
)

// NetworkSource connects a TCP stream to addr and frames records with the
// JsonFramer (ExtractJSONObject): multi-line JSON objects are reassembled
// across reads, and lines that never contain a brace are passed through as
// plain text. See spec §4.1.2.
type NetworkSource struct {
	addr   string
	dialer net.Dialer
	logger *logrus.Logger

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	buffer strings.Builder
	opened bool
	closed bool
}

// NewNetworkSource creates a NetworkSource that will dial addr on Init.
func NewNetworkSource(addr string, logger *logrus.Logger) *NetworkSource {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &NetworkSource{addr: addr, logger: logger}
}

// Label implements Source.
func (ns *NetworkSource) Label() string {
	return "network:" + ns.addr
}

// Init implements Source.
func (ns *NetworkSource) Init(ctx context.Context) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	conn, err := ns.dialer.DialContext(ctx, "tcp", ns.addr)
	if err != nil {
		return apperrors.NetworkError("network_source", "init", err.Error()).Wrap(err)
	}

	ns.conn = conn
	ns.reader = bufio.NewReader(conn)
	ns.opened = true
	ns.logger.WithFields(logrus.Fields{
		"component": "network_source",
		"addr":      ns.addr,
	}).Info("network source connected")
	return nil
}

// ReadLine implements Source.
func (ns *NetworkSource) ReadLine(ctx context.Context) (LogLine, error) {
	ns.mu.Lock()
	reader := ns.reader
	opened := ns.opened
	ns.mu.Unlock()

	if !opened {
		return LogLine{}, apperrors.SourceNotInitialized("network_source", "read_line")
	}

	for {
		// First check whether a prior append already completed an object
		// (mirrors the reference implementation re-checking the buffer
		// before blocking on the next read).
		if line, ok := ns.tryFlushBuffered(); ok {
			return line, nil
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// ReadString returns any bytes read before hitting EOF
				// alongside the error; a final unterminated line must not
				// be dropped.
				if line != "" {
					ns.mu.Lock()
					ns.buffer.WriteString(line)
					ns.mu.Unlock()
				}
				if flushed, ok := ns.flushRemainder(); ok {
					return flushed, nil
				}
				return LogLine{}, io.EOF
			}
			return LogLine{}, apperrors.NetworkError("network_source", "read_line", err.Error()).Wrap(err)
		}

		ns.mu.Lock()
		hadBraceBefore := strings.ContainsAny(ns.buffer.String(), "{}")
		ns.buffer.WriteString(line)
		combined := ns.buffer.String()
		ns.mu.Unlock()

		if obj, remainder, ok := ExtractJSONObject(combined); ok {
			ns.mu.Lock()
			ns.buffer.Reset()
			ns.buffer.WriteString(remainder)
			ns.mu.Unlock()
			return LogLine{Content: obj, Source: ns.Label(), Timestamp: time.Now().UTC()}, nil
		}

		hasBraceNow := strings.ContainsAny(combined, "{}")
		if !hadBraceBefore && !hasBraceNow {
			ns.mu.Lock()
			ns.buffer.Reset()
			ns.mu.Unlock()
			return LogLine{
				Content:   strings.TrimSpace(line),
				Source:    ns.Label(),
				Timestamp: time.Now().UTC(),
			}, nil
		}
		// Otherwise keep accumulating: either braces are present but the
		// object isn't complete yet, or this is the line that just
		// introduced the first brace.
	}
}

// tryFlushBuffered re-runs the framer against whatever is already pending,
// in case a previous read already completed an object that ReadLine has
// not yet returned.
func (ns *NetworkSource) tryFlushBuffered() (LogLine, bool) {
	ns.mu.Lock()
	pending := ns.buffer.String()
	ns.mu.Unlock()

	if pending == "" {
		return LogLine{}, false
	}
	obj, remainder, ok := ExtractJSONObject(pending)
	if !ok {
		return LogLine{}, false
	}
	ns.mu.Lock()
	ns.buffer.Reset()
	ns.buffer.WriteString(remainder)
	ns.mu.Unlock()
	return LogLine{Content: obj, Source: ns.Label(), Timestamp: time.Now().UTC()}, true
}

// flushRemainder emits whatever is left in the buffer as a final record
// when the stream ends (spec §4.1.2: network sources flush a non-empty
// buffer at end-of-stream, unlike file sources which drop it).
func (ns *NetworkSource) flushRemainder() (LogLine, bool) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	pending := strings.TrimSpace(ns.buffer.String())
	if pending == "" {
		return LogLine{}, false
	}
	ns.buffer.Reset()
	return LogLine{Content: pending, Source: ns.Label(), Timestamp: time.Now().UTC()}, true
}

// Close implements Source. Safe to call more than once.
func (ns *NetworkSource) Close() error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if ns.closed || ns.conn == nil {
		ns.closed = true
		return nil
	}
	ns.closed = true
	ns.buffer.Reset()
	return ns.conn.Close()
}
