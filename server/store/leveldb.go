package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/goleveldb/leveldb/opt"
	"github.com/df-mc/goleveldb/leveldb/util"
	"github.com/pierrec/lz4/v4"
)

// snapshotEvery is the number of journal entries written between full-tree
// snapshots. Replay cost on open is bounded by this.
const snapshotEvery = 256

// compressThreshold is the record size at or above which payloads are stored
// lz4-compressed. Smaller records are left raw.
const compressThreshold = 1024

const (
	recordRaw byte = iota
	recordLZ4
)

// LevelDB is the persistent Store. The working tree lives in memory; every
// commit is appended to a journal in leveldb and a full snapshot is written
// periodically so that opening a store replays a bounded suffix of the
// journal. Both the journal batch write and the in-memory apply are atomic,
// which preserves the all-or-nothing contract of Commit across restarts.
type LevelDB struct {
	mem *Memory
	db  *leveldb.DB

	mu  sync.Mutex
	seq uint64
}

// OpenLevelDB opens (or creates) the store in dir and restores the working
// tree from the latest snapshot plus the journal suffix.
func OpenLevelDB(dir string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{BlockSize: 16 * opt.KiB})
	if err != nil {
		return nil, fmt.Errorf("store: open leveldb: %w", err)
	}
	s := &LevelDB{mem: NewMemory(), db: db}
	if err := s.restore(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *LevelDB) Read(path string) (Value, error) { return s.mem.Read(path) }

func (s *LevelDB) Commit(u Update) error {
	if len(u) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Commit(u); err != nil {
		return err
	}
	return s.append(u)
}

func (s *LevelDB) Transact(root string, f func(Value) (Value, error)) error {
	var (
		final   Value
		applied bool
	)
	err := s.mem.Transact(root, func(cur Value) (Value, error) {
		next, err := f(cur)
		if err != nil {
			return nil, err
		}
		final, applied = next, true
		return next, nil
	})
	if err != nil || !applied {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.append(Update{root: final})
}

func (s *LevelDB) Close() error {
	return s.db.Close()
}

// append journals one update and writes a snapshot when due. Callers hold
// s.mu so sequence numbers are strictly increasing.
func (s *LevelDB) append(u Update) error {
	s.seq++
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("store: encode journal entry: %w", err)
	}
	batch := new(leveldb.Batch)
	batch.Put(journalKey(s.seq), encodeRecord(payload))
	batch.Put([]byte("meta/seq"), encodeSeq(s.seq))
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("store: write journal: %w", err)
	}
	if s.seq%snapshotEvery == 0 {
		return s.writeSnapshot()
	}
	return nil
}

func (s *LevelDB) writeSnapshot() error {
	tree := s.mem.snapshotTree()
	payload, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("store: encode snapshot: %w", err)
	}
	batch := new(leveldb.Batch)
	batch.Put(snapshotKey(s.seq), encodeRecord(payload))

	// Journal entries at or before the snapshot are no longer needed.
	iter := s.db.NewIterator(util.BytesPrefix([]byte("log/")), nil)
	for iter.Next() {
		if seqOfKey(iter.Key()) <= s.seq {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("store: scan journal: %w", err)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("store: write snapshot: %w", err)
	}
	return nil
}

// restore loads the newest snapshot and replays every journal entry after it.
func (s *LevelDB) restore() error {
	if raw, err := s.db.Get([]byte("meta/seq"), nil); err == nil {
		s.seq = binary.BigEndian.Uint64(raw)
	} else if err != leveldb.ErrNotFound {
		return fmt.Errorf("store: read sequence: %w", err)
	}

	var (
		snapSeq uint64
		snapRaw []byte
	)
	iter := s.db.NewIterator(util.BytesPrefix([]byte("snap/")), nil)
	for iter.Next() {
		if seq := seqOfKey(iter.Key()); seq >= snapSeq {
			snapSeq = seq
			snapRaw = append(snapRaw[:0], iter.Value()...)
		}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("store: scan snapshots: %w", err)
	}

	if snapRaw != nil {
		payload, err := decodeRecord(snapRaw)
		if err != nil {
			return err
		}
		var tree map[string]Value
		if err := json.Unmarshal(payload, &tree); err != nil {
			return fmt.Errorf("store: decode snapshot: %w", err)
		}
		s.mem.replaceTree(tree)
	}

	iter = s.db.NewIterator(util.BytesPrefix([]byte("log/")), nil)
	defer iter.Release()
	for iter.Next() {
		if seqOfKey(iter.Key()) <= snapSeq {
			continue
		}
		payload, err := decodeRecord(iter.Value())
		if err != nil {
			return err
		}
		var u Update
		if err := json.Unmarshal(payload, &u); err != nil {
			return fmt.Errorf("store: decode journal entry: %w", err)
		}
		if err := s.mem.Commit(u); err != nil {
			return fmt.Errorf("store: replay journal entry: %w", err)
		}
	}
	return iter.Error()
}

func journalKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("log/%016x", seq))
}

func snapshotKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("snap/%016x", seq))
}

func seqOfKey(key []byte) uint64 {
	i := len(key) - 16
	if i < 0 {
		return 0
	}
	var seq uint64
	_, _ = fmt.Sscanf(string(key[i:]), "%016x", &seq)
	return seq
}

func encodeSeq(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

// encodeRecord prefixes the payload with a format byte, compressing payloads
// at or above the threshold.
func encodeRecord(payload []byte) []byte {
	if len(payload) < compressThreshold {
		return append([]byte{recordRaw}, payload...)
	}
	buf := make([]byte, 5+lz4.CompressBlockBound(len(payload)))
	buf[0] = recordLZ4
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	var c lz4.Compressor
	n, err := c.CompressBlock(payload, buf[5:])
	if err != nil || n == 0 || n >= len(payload) {
		// Incompressible; store raw.
		return append([]byte{recordRaw}, payload...)
	}
	return buf[:5+n]
}

func decodeRecord(rec []byte) ([]byte, error) {
	if len(rec) == 0 {
		return nil, fmt.Errorf("store: empty record")
	}
	switch rec[0] {
	case recordRaw:
		return rec[1:], nil
	case recordLZ4:
		if len(rec) < 5 {
			return nil, fmt.Errorf("store: truncated lz4 record")
		}
		size := binary.BigEndian.Uint32(rec[1:5])
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(rec[5:], out)
		if err != nil {
			return nil, fmt.Errorf("store: decompress record: %w", err)
		}
		return out[:n], nil
	default:
		return nil, fmt.Errorf("store: unknown record format %#x", rec[0])
	}
}
