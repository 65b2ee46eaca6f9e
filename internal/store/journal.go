package store

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ErrJournalFull is returned when the writer queue is full and an entry was dropped.
var ErrJournalFull = errors.New("store: journal queue full")

// ErrJournalClosed is returned after Close.
var ErrJournalClosed = errors.New("store: journal closed")

// journalSink is the blocking write the JournalWriter hands off to.
type journalSink interface {
	RecordActivation(group, label string, at time.Time) error
}

type journalItem struct {
	group, label string
	at           time.Time
	done         chan struct{} // flush marker when non-nil
}

// JournalWriter queues activations and writes them in order on its own
// goroutine, so RecordActivation never waits on disk.
type JournalWriter struct {
	sink  journalSink
	queue chan journalItem
	log   *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewJournalWriter starts a writer with room for depth pending entries.
func NewJournalWriter(sink journalSink, depth int, logger *slog.Logger) *JournalWriter {
	if depth < 1 {
		depth = 1
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	w := &JournalWriter{
		sink:  sink,
		queue: make(chan journalItem, depth),
		log:   logger.With("component", "journal"),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *JournalWriter) run() {
	defer w.wg.Done()
	for it := range w.queue {
		if it.done != nil {
			close(it.done)
			continue
		}
		if err := w.sink.RecordActivation(it.group, it.label, it.at); err != nil {
			w.log.Warn("journal write failed", "group", it.group, "action", it.label, "err", err)
		}
	}
}

// RecordActivation enqueues an entry without blocking.
func (w *JournalWriter) RecordActivation(group, label string, at time.Time) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrJournalClosed
	}
	select {
	case w.queue <- journalItem{group: group, label: label, at: at}:
		return nil
	default:
		return ErrJournalFull
	}
}

// Flush blocks until every entry queued before the call has been written.
func (w *JournalWriter) Flush() {
	done := make(chan struct{})
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return
	}
	w.queue <- journalItem{done: done}
	w.mu.RUnlock()
	<-done
}

// Close drains the queue and stops the writer. The sink is not closed.
func (w *JournalWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()
	w.wg.Wait()
	return nil
}
