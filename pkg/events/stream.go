package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStreamClosed is returned when publishing after the terminal event.
var ErrStreamClosed = errors.New("event stream closed")

// Stream is the ordered event channel for one session. Events are
// published in total order, timestamps are strictly monotonic, and the
// terminal event occurs at most once. Subscribers joining late replay
// the full history before receiving live events. A slow subscriber
// blocks the publisher at its next emission; events are never dropped.
type Stream struct {
	sessionID string
	bufSize   int

	// publishCh serializes all publishes through the pump goroutine.
	publishCh chan Event
	subCh     chan *subscriber
	done      chan struct{}
	release   chan struct{}

	releaseOnce sync.Once
}

type subscriber struct {
	ch     chan Event
	ctx    context.Context
	cancel context.CancelFunc
}

// NewStream creates a stream for the session. bufSize is the per-
// subscriber channel buffer; zero falls back to 64.
func NewStream(sessionID string, bufSize int) *Stream {
	if bufSize <= 0 {
		bufSize = 64
	}
	s := &Stream{
		sessionID: sessionID,
		bufSize:   bufSize,
		publishCh: make(chan Event),
		subCh:     make(chan *subscriber),
		done:      make(chan struct{}),
		release:   make(chan struct{}),
	}
	go s.pump()
	return s
}

// SessionID returns the owning session id.
func (s *Stream) SessionID() string { return s.sessionID }

// pump owns the history and subscriber set; all mutation happens here,
// which gives the total-order guarantee for free.
func (s *Stream) pump() {
	var history []Event
	var subs []*subscriber
	var lastTS time.Time

	deliver := func(sub *subscriber, e Event) bool {
		select {
		case sub.ch <- e:
			return true
		case <-sub.ctx.Done():
			return false
		}
	}

	for {
		select {
		case e := <-s.publishCh:
			now := time.Now()
			if !now.After(lastTS) {
				now = lastTS.Add(time.Nanosecond)
			}
			lastTS = now
			e.Timestamp = now
			history = append(history, e)

			alive := subs[:0]
			for _, sub := range subs {
				if deliver(sub, e) {
					alive = append(alive, sub)
				} else {
					close(sub.ch)
				}
			}
			subs = alive

			if e.Type.Terminal() {
				for _, sub := range subs {
					close(sub.ch)
				}
				close(s.done)
				s.drain(history)
				return
			}

		case sub := <-s.subCh:
			ok := true
			for _, e := range history {
				if !deliver(sub, e) {
					ok = false
					break
				}
			}
			if ok {
				subs = append(subs, sub)
			} else {
				close(sub.ch)
			}
		}
	}
}

// Publish appends an event to the stream. The timestamp is stamped by
// the stream itself. Blocks while a subscriber's buffer is full; fails
// only when the stream is already terminal or ctx is done.
func (s *Stream) Publish(ctx context.Context, e Event) error {
	select {
	case s.publishCh <- e:
		return nil
	case <-s.done:
		return ErrStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a channel that replays the history and then streams
// live events. The channel closes after the terminal event or when ctx
// is cancelled.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscriber{
		ch:     make(chan Event, s.bufSize),
		ctx:    subCtx,
		cancel: cancel,
	}
	select {
	case s.subCh <- sub:
	case <-s.release:
		close(sub.ch)
		cancel()
	case <-subCtx.Done():
		close(sub.ch)
	}
	return sub.ch
}

// drain keeps replaying history to late subscribers after the terminal
// event, until the session manager releases the stream.
func (s *Stream) drain(history []Event) {
	for {
		select {
		case sub := <-s.subCh:
			for _, e := range history {
				select {
				case sub.ch <- e:
				case <-sub.ctx.Done():
				}
			}
			close(sub.ch)
		case <-s.release:
			return
		}
	}
}

// Release frees the stream's goroutine once the session is evicted.
// Late subscribers after release see an immediately closed channel.
func (s *Stream) Release() {
	s.releaseOnce.Do(func() { close(s.release) })
}

// Closed reports whether the terminal event has been published.
func (s *Stream) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed after the terminal event.
func (s *Stream) Done() <-chan struct{} { return s.done }
