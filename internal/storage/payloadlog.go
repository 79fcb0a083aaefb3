package storage

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/velesdb/velesdb/internal/veleserr"
)

// PayloadLog is the append-only blob log backing payloads.log: point
// payload bytes (JSON-ish property blobs) referenced by slot. Grounded in
// the teacher's length-prefixed record layout in key_value_storage.go's
// FlushBatch, generalized from "key+value" pairs to a single opaque blob
// returning the caller a stable offset to store in its own index.
type PayloadLog struct {
	file *os.File
	lock sync.Mutex
	size int64
}

func OpenPayloadLog(path string) (*PayloadLog, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, err
	}
	size, err := f.Seek(0, 2)
	if err != nil {
		return nil, err
	}
	return &PayloadLog{file: f, size: size}, nil
}

// Append writes blob and returns the byte offset at which it starts (the
// length header); callers persist this offset in their own index (the
// mmap'd slot table, a property index, etc.) for later ReadAt calls.
func (p *PayloadLog) Append(blob []byte) (int64, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	buf := make([]byte, 4+len(blob))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(blob)))
	copy(buf[4:], blob)

	offset := p.size
	n, err := p.file.WriteAt(buf, offset)
	if err != nil {
		return 0, err
	}
	if n != len(buf) {
		return 0, veleserr.New(veleserr.IOError, "storage: short write to payload log")
	}
	if err := p.file.Sync(); err != nil {
		return 0, err
	}
	p.size += int64(len(buf))
	return offset, nil
}

// ReadAt reconstructs the blob written at offset by a prior Append.
func (p *PayloadLog) ReadAt(offset int64) ([]byte, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	header := make([]byte, 4)
	if _, err := p.file.ReadAt(header, offset); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(header)
	blob := make([]byte, length)
	if _, err := p.file.ReadAt(blob, offset+4); err != nil {
		return nil, err
	}
	return blob, nil
}

func (p *PayloadLog) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.file.Close()
}
