package lockbox

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"os"

	"go.etcd.io/bbolt"
)

// TagBolt is the backend family tag of the log-structured on-disk backend
const TagBolt Tag = "bolt"

type (
	// BoltConfig locates the database file of the on-disk backend
	BoltConfig struct {
		Path     string
		FileMode os.FileMode
		Options  *bbolt.Options
	}

	// BoltState is the backend-specific handle of the on-disk backend,
	// recoverable from a generic Handle via Downcast
	BoltState struct {
		journal *boltJournal
	}

	boltJournal struct {
		db   *bbolt.DB
		path string
	}
)

// DefaultBoltFileMode is used when BoltConfig.FileMode is zero
const DefaultBoltFileMode os.FileMode = 0o600

var (
	journalBucket    = []byte("journal")
	checkpointBucket = []byte("checkpoint")

	checkpointDataKey = []byte("data")
	checkpointSeqKey  = []byte("seq")
)

// OpenBolt creates a Handle backed by a log-structured bbolt database.
// Events are journaled in a single write transaction per batch, so an
// Update's effects are on disk before its future is fulfilled. Checkpoints
// prune the journal prefix they cover
func OpenBolt[S any](
	ctx context.Context, cfg Config, bcfg BoltConfig, model Model[S],
) (*Handle, error) {
	mode := bcfg.FileMode
	if mode == 0 {
		mode = DefaultBoltFileMode
	}
	db, err := bbolt.Open(bcfg.Path, mode, bcfg.Options)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(journalBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(checkpointBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	j := &boltJournal{db: db, path: bcfg.Path}
	eng, err := newEngine(ctx, cfg, model, j)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewHandle(TagBolt, eng, &BoltState{journal: j}), nil
}

// DB exposes the underlying bbolt database
func (b *BoltState) DB() *bbolt.DB {
	return b.journal.db
}

// Path returns the database file path
func (b *BoltState) Path() string {
	return b.journal.path
}

// JournalSize returns the number of events retained since the last
// checkpoint
func (b *BoltState) JournalSize() (int, error) {
	var size int
	err := b.journal.db.View(func(tx *bbolt.Tx) error {
		size = tx.Bucket(journalBucket).Stats().KeyN
		return nil
	})
	return size, err
}

func (j *boltJournal) Append(_ context.Context, evs []*Event) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(journalBucket)
		for _, ev := range evs {
			data, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			if err := bucket.Put(seqKey(ev.Sequence), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (j *boltJournal) Load(context.Context) (*JournalState, error) {
	js := &JournalState{}
	err := j.db.View(func(tx *bbolt.Tx) error {
		cp := tx.Bucket(checkpointBucket)
		if data := cp.Get(checkpointDataKey); data != nil {
			js.Checkpoint = append(json.RawMessage{}, data...)
		}
		if seq := cp.Get(checkpointSeqKey); seq != nil {
			js.NextSequence = int64(binary.BigEndian.Uint64(seq))
		}

		cursor := tx.Bucket(journalBucket).Cursor()
		start := seqKey(js.NextSequence)
		for k, v := cursor.Seek(start); k != nil; k, v = cursor.Next() {
			ev := &Event{}
			if err := json.Unmarshal(v, ev); err != nil {
				return err
			}
			js.Events = append(js.Events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return js, nil
}

func (j *boltJournal) WriteCheckpoint(
	_ context.Context, data []byte, nextSeq int64,
) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		cp := tx.Bucket(checkpointBucket)
		if err := cp.Put(checkpointDataKey, data); err != nil {
			return err
		}
		seq := make([]byte, 8)
		binary.BigEndian.PutUint64(seq, uint64(nextSeq))
		if err := cp.Put(checkpointSeqKey, seq); err != nil {
			return err
		}

		cursor := tx.Bucket(journalBucket).Cursor()
		limit := seqKey(nextSeq)
		for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
			if bytes.Compare(k, limit) >= 0 {
				break
			}
			if err := cursor.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

func (j *boltJournal) Close() error {
	return j.db.Close()
}

// seqKey encodes a sequence so that bbolt's byte ordering matches numeric
// ordering
func seqKey(seq int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(seq))
	return key
}
