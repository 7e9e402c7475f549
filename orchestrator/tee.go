package orchestrator

import (
	"context"
	"iter"
	"strings"
	"sync"
)

type chunk struct {
	text string
	err  error
}

// Tee fans a single upstream token stream out to two independent consumers:
// the live client stream and the audit/persistence path. Tokens reach both
// sides in arrival order. The audit side buffers without bound so it can
// never block or truncate the client stream; the client side is a channel the
// HTTP boundary drains.
type Tee struct {
	clientCh chan chunk

	mu     sync.Mutex
	cond   *sync.Cond
	buf    strings.Builder
	closed bool
	err    error
}

// NewTee creates an open tee.
func NewTee() *Tee {
	// one slot so the terminal error never races a disconnecting client
	t := &Tee{clientCh: make(chan chunk, 1)}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Publish delivers one token to both consumers. The audit capture happens
// first and always succeeds; the client send is abandoned when ctx is done
// (caller disconnected), which is reported so the driver can cancel upstream.
func (t *Tee) Publish(ctx context.Context, text string) error {
	t.mu.Lock()
	t.buf.WriteString(text)
	t.mu.Unlock()

	select {
	case t.clientCh <- chunk{text: text}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseWith ends both streams; a non-nil err is surfaced to both consumers.
func (t *Tee) CloseWith(ctx context.Context, err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.err = err
	t.cond.Broadcast()
	t.mu.Unlock()

	if err != nil {
		select {
		case t.clientCh <- chunk{err: err}:
		case <-ctx.Done():
		}
	}
	close(t.clientCh)
}

// Client returns the live stream, consumable exactly once by the HTTP
// boundary. A mid-stream failure is yielded as the final pair's error.
func (t *Tee) Client() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for c := range t.clientCh {
			if !yield(c.text, c.err) {
				return
			}
		}
	}
}

// AuditText blocks until the stream is closed and returns the full captured
// text plus the terminal error, independent of the client consumer's pace.
func (t *Tee) AuditText() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for !t.closed {
		t.cond.Wait()
	}
	return t.buf.String(), t.err
}
