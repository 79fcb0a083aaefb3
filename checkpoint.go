package velesdb

import (
	"encoding/gob"
	"log"
	"os"
	"path/filepath"

	"github.com/velesdb/velesdb/internal/graph"
	"github.com/velesdb/velesdb/internal/storage"
	"github.com/velesdb/velesdb/internal/veleserr"
)

// Beyond vectors.dat (internal/quant.Store.Save/Load) and hnsw.snap
// (internal/hnsw.Index.Save/LoadSnapshot), a checkpoint also needs to
// recover the graph and the payload-offset table, or everything before the
// last-truncated WAL segment would vanish on reopen — the same "reconstruct
// deterministically from a saved snapshot, fall back to replay on a
// checksum failure" shape as hnsw.snap, written with encoding/gob rather
// than a hand-rolled binary layout since these two structures (a node/edge
// list, an id->offset map) have no fixed-width fields worth hand-packing
// the way vectors.dat's per-mode byte arrays do.

// gob requires every concrete type that ever rides inside an interface{}
// value (here, graph.Edge.Props entries) to be registered up front — the
// values a payload's JSON properties can take, mirroring what
// encoding/json.Unmarshal produces into a map[string]any plus the extra
// scalar kinds Upsert callers may pass directly (see columnValueOf).
func init() {
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register("")
	gob.Register(float64(0))
	gob.Register(int64(0))
	gob.Register(int(0))
	gob.Register(false)
}

type graphSnapshot struct {
	Nodes []graph.NodeID
	Edges []graph.Edge
}

type payloadIndexSnapshot struct {
	Offsets map[uint64]int64
}

func (c *Collection) graphSnapPath() string  { return filepath.Join(c.dir, "graph.snap") }
func (c *Collection) payloadIdxPath() string { return filepath.Join(c.dir, "payloads.idx") }
func (c *Collection) vectorsPath() string    { return filepath.Join(c.dir, "vectors.dat") }

func (c *Collection) saveGraphSnapshot() error {
	snap := graphSnapshot{Nodes: c.graph.ExportNodes(), Edges: c.graph.ExportEdges()}
	return writeGob(c.graphSnapPath(), snap)
}

func (c *Collection) savePayloadIndex() error {
	c.mu.RLock()
	snap := payloadIndexSnapshot{Offsets: make(map[uint64]int64, len(c.payloadOffsets))}
	for id, off := range c.payloadOffsets {
		snap.Offsets[id] = off
	}
	c.mu.RUnlock()
	return writeGob(c.payloadIdxPath(), snap)
}

func writeGob(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readGob(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(v)
}

// restoreGraph loads dir/graph.snap into c.graph if present. A decode
// failure is logged and treated as "no snapshot" (the graph stays empty and
// is rebuilt purely from whatever WAL records remain after the last
// checkpoint) rather than failing collection open outright — consistent
// with hnsw.snap's checksum-failure fallback to rebuild-by-replay.
func (c *Collection) restoreGraph() {
	var snap graphSnapshot
	if err := readGob(c.graphSnapPath(), &snap); err != nil {
		if !os.IsNotExist(err) {
			logCheckpointWarning("graph.snap", err)
		}
		return
	}
	for _, id := range snap.Nodes {
		c.graph.AddNode(id)
	}
	for _, e := range snap.Edges {
		if err := c.graph.ReplayEdge(e.ID, e.Src, e.Dst, e.Label, e.Props); err != nil {
			logCheckpointWarning("graph.snap edge replay", err)
		}
	}
}

// restorePayloads loads dir/payloads.idx (if present) and, for every
// restored offset, reads the referenced blob from a throwaway PayloadLog
// handle (payloads.log is append-only and never exclusively locked, so a
// second *os.File over it is safe) to repopulate c.payloads and reindex
// every restored id's text/column fields. This must run before
// storage.Open's WAL replay so that pre-checkpoint rows are already
// present when post-checkpoint records apply on top of them.
func (c *Collection) restorePayloads() {
	var snap payloadIndexSnapshot
	if err := readGob(c.payloadIdxPath(), &snap); err != nil {
		if !os.IsNotExist(err) {
			logCheckpointWarning("payloads.idx", err)
		}
		return
	}
	pl, err := storage.OpenPayloadLog(filepath.Join(c.dir, "payloads.log"))
	if err != nil {
		logCheckpointWarning("payloads.log (for restore)", err)
		return
	}
	defer pl.Close()

	for id, off := range snap.Offsets {
		c.payloadOffsets[id] = off
		blob, err := pl.ReadAt(off)
		if err != nil {
			logCheckpointWarning("payloads.log read during restore", err)
			continue
		}
		p, err := unmarshalProps(blob)
		if err != nil {
			logCheckpointWarning("payloads.log decode during restore", err)
			continue
		}
		if p != nil {
			c.payloads[id] = p
			c.indexPayload(id, nil, p)
		}
	}
}

func logCheckpointWarning(what string, err error) {
	if k, ok := veleserr.KindOf(err); ok && k == veleserr.Corruption {
		log.Printf("velesdb: %s corrupt, falling back to WAL replay: %v", what, err)
		return
	}
	log.Printf("velesdb: %s restore failed, falling back to WAL replay: %v", what, err)
}
