package ingest

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/nxadm/tail"
	"github.com/sirupsen/logrus"

	apperrors "github.com/mdzesseis/logstream/pkg/errors"
)

// FileSourceConfig configures a FileSource.
type FileSourceConfig struct {
	// Follow keeps tailing the file past its current end (like `tail -f`)
	// instead of closing on EOF. Default false: a FileSource reads the
	// file once, end to end, which is what spec's EOF-with-partial-buffer
	// behavior assumes.
	Follow bool
}

// FileSource is a line-buffered Source over a filesystem path. It frames
// records with JSON-object accumulation: lines are appended to a pending
// buffer until the buffer parses as one complete JSON value, at which
// point it is emitted as a LogLine and the buffer resets. A line that is not
// valid JSON is never emitted on its own: it stays in the buffer and later
// lines are appended to it until the whole buffer parses, and a buffer that
// still does not parse when the file ends is dropped.
type FileSource struct {
	path   string
	config FileSourceConfig
	logger *logrus.Logger

	mu      sync.Mutex
	tailer  *tail.Tail
	buffer  strings.Builder
	opened  bool
	closed  bool
}

// NewFileSource creates a FileSource over path. Init must be called before
// ReadLine.
func NewFileSource(path string, config FileSourceConfig, logger *logrus.Logger) *FileSource {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FileSource{path: path, config: config, logger: logger}
}

// Label implements Source.
func (fs *FileSource) Label() string {
	return fs.path
}

// Init implements Source.
func (fs *FileSource) Init(ctx context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	t, err := tail.TailFile(fs.path, tail.Config{
		Follow:    fs.config.Follow,
		ReOpen:    false,
		MustExist: true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekStart},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return apperrors.Io("file_source", "init", err).Wrap(err)
	}

	fs.tailer = t
	fs.opened = true
	fs.logger.WithFields(logrus.Fields{
		"component": "file_source",
		"path":      fs.path,
		"follow":    fs.config.Follow,
	}).Info("file source initialized")
	return nil
}

// ReadLine implements Source.
func (fs *FileSource) ReadLine(ctx context.Context) (LogLine, error) {
	fs.mu.Lock()
	t := fs.tailer
	opened := fs.opened
	fs.mu.Unlock()

	if !opened {
		return LogLine{}, apperrors.SourceNotInitialized("file_source", "read_line")
	}

	for {
		select {
		case <-ctx.Done():
			return LogLine{}, ctx.Err()
		case line, ok := <-t.Lines:
			if !ok {
				if err := t.Err(); err != nil {
					return LogLine{}, apperrors.Io("file_source", "read_line", err)
				}
				// Partial buffer at end-of-stream is dropped, not emitted
				// (spec §4.1.1: file-source EOF policy differs from network).
				return LogLine{}, io.EOF
			}
			if line.Err != nil {
				fs.logger.WithError(line.Err).Warn("file source line error")
				continue
			}

			fs.mu.Lock()
			fs.buffer.WriteString(line.Text)
			fs.buffer.WriteByte('\n')
			candidate := fs.buffer.String()
			fs.mu.Unlock()

			if json.Valid([]byte(strings.TrimSpace(candidate))) {
				fs.mu.Lock()
				fs.buffer.Reset()
				fs.mu.Unlock()
				return LogLine{
					Content:   strings.TrimSpace(candidate),
					Source:    fs.path,
					Timestamp: time.Now().UTC(),
				}, nil
			}
			// Not yet a complete JSON value; keep accumulating.
		}
	}
}

// Close implements Source. Safe to call more than once.
func (fs *FileSource) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.closed || fs.tailer == nil {
		fs.closed = true
		return nil
	}
	fs.closed = true
	_ = fs.tailer.Stop()
	fs.tailer.Cleanup()
	fs.buffer.Reset()
	return nil
}
