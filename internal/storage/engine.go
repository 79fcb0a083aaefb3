// Package storage implements the L1 persistence layer: a write-ahead log
// shared by every mutating operation, an append-only payload blob log, and
// the open/replay/checkpoint lifecycle that ties them together. It is
// deliberately ignorant of what a point, edge, or index actually is —
// vectors.dat's slot table, the graph's edge lists, and property indexes
// all persist themselves and only hand this package opaque payload bytes,
// the way the teacher's wal.go and BTreeIndex.go know nothing about the
// key/value semantics layered on top of them in key_value_storage.go.
package storage

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// RecordHandler applies a decoded WAL record to whatever in-memory
// structure owns that op_kind. Handlers are called with the single writer
// lock held, in log order, both during startup replay and for every live
// Append — so handler bodies can assume no concurrent handler call.
type RecordHandler interface {
	ApplyUpsertPoint(payload []byte) error
	ApplyDeletePoint(payload []byte) error
	ApplyAddEdge(payload []byte) error
	ApplyRemoveEdge(payload []byte) error
	ApplyCreateIndex(payload []byte) error
	ApplyDropIndex(payload []byte) error
}

// Engine owns a collection's wal.log and payloads.log and enforces the
// atomicity contract: an operation is either durable in the WAL and
// reflected in memory, or it is neither. Snapshotting the mmap'd data
// region itself (vectors.dat, hnsw.snap) is the caller's job; Engine only
// knows how to serialize the record, fsync it, and invoke the handler.
type Engine struct {
	dir        string
	wal        *WAL
	payloads   *PayloadLog
	handler    RecordHandler
	writeLock  sync.Mutex // single log-append lock; serializes all writers
	flushRun   int32
	lastFlush  uint64 // atomic: seq of the last checkpoint
}

// Open maps the data region (delegated to the caller via handler — Engine
// itself holds no domain state) and replays any WAL records past the last
// checkpoint, in order, before returning. handler must already be
// constructed (empty collection or restored from a prior snapshot) so
// replay has something to apply records onto.
func Open(dir string, handler RecordHandler) (*Engine, error) {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, err
	}
	w, err := OpenWAL(filepath.Join(dir, "wal.log"))
	if err != nil {
		return nil, err
	}
	pl, err := OpenPayloadLog(filepath.Join(dir, "payloads.log"))
	if err != nil {
		return nil, err
	}
	e := &Engine{dir: dir, wal: w, payloads: pl, handler: handler}

	if err := w.Replay(e.apply); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) apply(r Record) error {
	switch r.Kind {
	case OpUpsertPoint:
		return e.handler.ApplyUpsertPoint(r.Payload)
	case OpDeletePoint:
		return e.handler.ApplyDeletePoint(r.Payload)
	case OpAddEdge:
		return e.handler.ApplyAddEdge(r.Payload)
	case OpRemoveEdge:
		return e.handler.ApplyRemoveEdge(r.Payload)
	case OpCreateIndex:
		return e.handler.ApplyCreateIndex(r.Payload)
	case OpDropIndex:
		return e.handler.ApplyDropIndex(r.Payload)
	default:
		// An unrecognized op_kind byte is a hard error, never a silent skip:
		// it means either disk corruption or a version this binary doesn't
		// know how to interpret.
		return unknownOpError(r.Kind)
	}
}

// Append durably logs kind/payload, then applies it to the handler. The
// WAL write (with fsync) happens before the in-memory apply, so a crash
// between the two leaves the record durable and replay simply re-applies
// it — idempotent handlers are assumed for Upsert/Delete/AddEdge/RemoveEdge
// (replaying an already-applied record is a no-op overwrite, not a
// duplicate).
func (e *Engine) Append(kind Op, payload []byte) (uint64, error) {
	e.writeLock.Lock()
	defer e.writeLock.Unlock()

	seq, err := e.wal.Append(kind, payload)
	if err != nil {
		return 0, err
	}
	if err := e.apply(Record{Seq: seq, Kind: kind, Payload: payload}); err != nil {
		return seq, err
	}
	return seq, nil
}

// AppendPayload writes blob to the payload log and returns its offset, for
// callers (point upsert, property index build) that need to persist a blob
// alongside a WAL record referencing it.
func (e *Engine) AppendPayload(blob []byte) (int64, error) {
	return e.payloads.Append(blob)
}

func (e *Engine) ReadPayload(offset int64) ([]byte, error) {
	return e.payloads.ReadAt(offset)
}

// Flush performs a checkpoint: snapshot persists the caller's in-memory
// data region to its own durable files (vectors.dat, hnsw.snap, ...),
// then the payload log is fsynced and the WAL is truncated. Checkpointing
// and appends both take the single write lock, so a Flush never races a
// concurrent Append.
func (e *Engine) Flush(snapshot func() error) error {
	if !atomic.CompareAndSwapInt32(&e.flushRun, 0, 1) {
		return nil // a flush is already in progress
	}
	defer atomic.StoreInt32(&e.flushRun, 0)

	e.writeLock.Lock()
	defer e.writeLock.Unlock()

	if err := snapshot(); err != nil {
		return err
	}
	if err := e.payloads.file.Sync(); err != nil {
		return err
	}
	return e.wal.Truncate()
}

func (e *Engine) Close() error {
	if err := e.payloads.Close(); err != nil {
		return err
	}
	return e.wal.Close()
}

type unknownOpError Op

func (e unknownOpError) Error() string {
	return "storage: unknown wal op_kind byte"
}
