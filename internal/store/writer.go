package store

import (
	"context"
	"errors"
	"sync"
)

// ErrWriterClosed is returned for writes submitted after Close.
var ErrWriterClosed = errors.New("store writer is closed")

type writeOp int

const (
	opUpsert writeOp = iota
	opRemove
)

type writeReq struct {
	op     writeOp
	index  FileIndex
	path   string
	result chan error
}

// Writer serializes every mutation of a Mutator through one goroutine.
// Requests are applied in submission order, so two writes for the same path
// land in the order they were issued.
type Writer struct {
	m    Mutator
	reqs chan writeReq
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewWriter starts the writer goroutine. Call Close to stop it.
func NewWriter(m Mutator) *Writer {
	w := &Writer{
		m:    m,
		reqs: make(chan writeReq, 64),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Writer) loop() {
	defer close(w.done)
	for req := range w.reqs {
		var err error
		switch req.op {
		case opUpsert:
			err = w.m.UpsertFile(req.index)
		case opRemove:
			err = w.m.RemoveFile(req.path)
		}
		req.result <- err
	}
}

// Upsert queues fi and waits for its transaction to finish. If ctx is done
// before the request is queued nothing is written; once queued, the write
// always runs to completion.
func (w *Writer) Upsert(ctx context.Context, fi FileIndex) error {
	return w.submit(ctx, writeReq{op: opUpsert, index: fi, path: fi.File.Path})
}

// Remove queues the removal of path and waits for it to finish.
func (w *Writer) Remove(ctx context.Context, path string) error {
	return w.submit(ctx, writeReq{op: opRemove, path: path})
}

func (w *Writer) submit(ctx context.Context, req writeReq) error {
	req.result = make(chan error, 1)

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrWriterClosed
	}
	select {
	case w.reqs <- req:
		w.mu.RUnlock()
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}
	return <-req.result
}

// Close stops accepting writes, lets queued ones finish and waits for the
// goroutine to exit. Safe to call more than once.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.reqs)
	}
	w.mu.Unlock()
	<-w.done
}
