// Package audit is an append-only, batch-committed decision log: every
// control-plane action (who tried to enqueue what, and whether the queue
// admitted it) is appended here before control.Enqueue's caller gets a
// response. It exists to answer "what happened and who asked for it"
// after the fact — it persists decisions, not queued jobs, and carries no
// cross-restart replay obligation the way the teacher's WAL does for job
// state.
//
// The batching strategy — buffer appends, flush on size or a ticking
// interval, one fsync per flush — is adapted from the WAL's batchWriter:
// N decisions in, one disk sync out.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/magyarmex/heatqueue/pkg/types"
)

// Entry is one append-only record.
type Entry struct {
	Seq       uint64              `json:"seq"`
	Timestamp int64               `json:"timestamp_ms"`
	Actor     string              `json:"actor"`
	Role      types.Role          `json:"role"`
	Action    string              `json:"action"`
	Outcome   types.OutcomeRecord `json:"outcome"`
}

type appendRequest struct {
	entry Entry
	errCh chan error
}

// Log is a batch-committing append-only writer over a single file.
type Log struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	seq  uint64

	appendCh      chan appendRequest
	bufferSize    int
	flushInterval time.Duration
	closed        chan struct{}
	wg            sync.WaitGroup
}

// Open creates or appends to the audit log at path. bufferSize and
// flushInterval control the batch-commit cadence; non-positive values fall
// back to defaults matching the teacher's WAL (100 entries / 10ms).
func Open(path string, bufferSize int, flushInterval time.Duration) (*Log, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 10 * time.Millisecond
	}
	l := &Log{
		file:          file,
		enc:           json.NewEncoder(file),
		appendCh:      make(chan appendRequest, bufferSize*2),
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		closed:        make(chan struct{}),
	}
	l.wg.Add(1)
	go l.batchWriter()
	return l, nil
}

// Record appends one decision and blocks until it has been durably
// flushed, returning any write error.
func (l *Log) Record(actor string, role types.Role, action string, outcome types.OutcomeRecord) error {
	l.mu.Lock()
	l.seq++
	seq := l.seq
	l.mu.Unlock()

	entry := Entry{
		Seq:       seq,
		Timestamp: time.Now().UnixMilli(),
		Actor:     actor,
		Role:      role,
		Action:    action,
		Outcome:   outcome,
	}

	select {
	case <-l.closed:
		return fmt.Errorf("audit: log is closed")
	default:
	}

	errCh := make(chan error, 1)
	select {
	case l.appendCh <- appendRequest{entry: entry, errCh: errCh}:
		return <-errCh
	case <-l.closed:
		return fmt.Errorf("audit: log is closed")
	}
}

// Close flushes any pending entries and closes the underlying file.
func (l *Log) Close() error {
	close(l.closed)
	l.wg.Wait()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

func (l *Log) batchWriter() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	batch := make([]appendRequest, 0, l.bufferSize)
	for {
		select {
		case req := <-l.appendCh:
			batch = append(batch, req)
			if len(batch) >= l.bufferSize {
				l.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				l.flush(batch)
				batch = batch[:0]
			}
		case <-l.closed:
		drain:
			for {
				select {
				case req := <-l.appendCh:
					batch = append(batch, req)
				default:
					break drain
				}
			}
			if len(batch) > 0 {
				l.flush(batch)
			}
			return
		}
	}
}

func (l *Log) flush(batch []appendRequest) {
	l.mu.Lock()
	var writeErr error
	for i := range batch {
		if writeErr == nil {
			writeErr = l.enc.Encode(batch[i].entry)
		}
	}
	if writeErr == nil {
		writeErr = l.file.Sync()
	}
	l.mu.Unlock()

	for i := range batch {
		batch[i].errCh <- writeErr
	}
}

// Replay reads every entry in the log in order, calling handler for each.
// It stops at the first handler error or malformed record.
func Replay(path string, handler func(Entry) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", path, err)
	}
	defer file.Close()

	dec := json.NewDecoder(file)
	for {
		var entry Entry
		if err := dec.Decode(&entry); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("audit: decode entry: %w", err)
		}
		if err := handler(entry); err != nil {
			return err
		}
	}
}
