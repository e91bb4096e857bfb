package kernel

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/valerka1292/conclave/pkg/models"
)

// loggedEnvelope is the JSON-lines wire shape for one persisted message:
// the bus envelope plus an always-present UTC timestamp.
type loggedEnvelope struct {
	models.Message
	Timestamp time.Time `json:"timestamp"`
}

// EventLogger appends every bus message to a JSON-lines file, injecting a
// UTC timestamp when the message doesn't already carry one.
// It is safe for concurrent use; writes are serialized through a mutex to
// match the single-writer append-only contract.
type EventLogger struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewEventLogger opens path for appending and returns a logger writing to
// it.
func NewEventLogger(path string) (*EventLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("kernel: open event log: %w", err)
	}
	return &EventLogger{w: bufio.NewWriter(f), closer: f}, nil
}

// NewEventLoggerWriter wraps an arbitrary writer (e.g. for tests) as an
// EventLogger with no backing file to close.
func NewEventLoggerWriter(w io.Writer) *EventLogger {
	return &EventLogger{w: w}
}

// Append serializes msg as one JSON line, injecting msg.Timestamp in UTC
// if it is zero.
func (l *EventLogger) Append(msg models.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	} else {
		msg.Timestamp = msg.Timestamp.UTC()
	}
	line, err := json.Marshal(loggedEnvelope{Message: msg, Timestamp: msg.Timestamp})
	if err != nil {
		return fmt.Errorf("kernel: marshal event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("kernel: write event: %w", err)
	}
	if f, ok := l.w.(*bufio.Writer); ok {
		return f.Flush()
	}
	return nil
}

// Close flushes and closes the underlying file, if any.
func (l *EventLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok := l.w.(*bufio.Writer); ok {
		_ = f.Flush()
	}
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// ReadAll replays every logged envelope, in file order, from path.
func ReadAll(path string) ([]models.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("kernel: open event log for replay: %w", err)
	}
	defer f.Close()

	var out []models.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var env loggedEnvelope
		if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
			continue
		}
		msg := env.Message
		msg.Timestamp = env.Timestamp
		out = append(out, msg)
	}
	return out, scanner.Err()
}
