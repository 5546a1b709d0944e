package plog

import (
	"context"
	"encoding/binary"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

// metaSealedKey and metaSizeKey live in every log's bucket alongside its
// data chunks, distinguished by key length so a cursor scan over data
// skips them (data keys are all exactly 8 bytes; these are not).
var (
	metaSealedKey = []byte("sealed")
	metaSizeKey   = []byte("size")
)

// BoltStore is a Store backed by a single bbolt database file: one bucket
// per PlogId, data chunks keyed by the big-endian offset they start at,
// append serialized by bbolt's single-writer transaction semantics —
// which is exactly the guarantee "append is serialized, sealed rejects
// further writes" needs, with no hand-rolled locking required.
type BoltStore struct {
	db  *bolt.DB
	log *logrus.Entry
}

// OpenBoltStore opens (creating if necessary) a bbolt database at path.
func OpenBoltStore(path string, log *logrus.Entry) (*BoltStore, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	return &BoltStore{db: db, log: log.WithField("component", "plog")}, nil
}

// Close releases the underlying database file.
func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) Create(ctx context.Context, n int) ([]PlogId, error) {
	ids := make([]PlogId, 0, n)
	err := s.db.Update(func(tx *bolt.Tx) error {
		for i := 0; i < n; i++ {
			id := NewPlogId()
			bucket, err := tx.CreateBucket([]byte(id))
			if err != nil {
				return err
			}
			if err := putUint32(bucket, metaSizeKey, 0); err != nil {
				return err
			}
			if err := bucket.Put(metaSealedKey, []byte{0}); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *BoltStore) GetInfo(ctx context.Context, id PlogId) (Info, error) {
	var info Info
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(id))
		if bucket == nil {
			return ErrNotFound
		}
		info = Info{
			Id:     id,
			Size:   getUint32(bucket, metaSizeKey),
			Sealed: isSealed(bucket),
		}
		return nil
	})
	if err != nil {
		return Info{}, err
	}
	return info, nil
}

func (s *BoltStore) Append(ctx context.Context, id PlogId, data []byte) (uint32, error) {
	var offset uint32
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(id))
		if bucket == nil {
			return ErrNotFound
		}
		if isSealed(bucket) {
			return ErrSealed
		}
		size := getUint32(bucket, metaSizeKey)
		if uint64(size)+uint64(len(data)) > PlogMaxSize {
			return ErrTooLarge
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, uint64(size))
		if err := bucket.Put(key, append([]byte(nil), data...)); err != nil {
			return err
		}
		offset = size
		return putUint32(bucket, metaSizeKey, size+uint32(len(data)))
	})
	if err != nil {
		return 0, err
	}
	return offset, nil
}

func (s *BoltStore) Read(ctx context.Context, id PlogId, region Region) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(id))
		if bucket == nil {
			return ErrNotFound
		}

		regionEnd := region.Offset + region.Size
		out = make([]byte, 0, region.Size)

		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(k) != 8 {
				continue // meta key
			}
			chunkStart := uint32(binary.BigEndian.Uint64(k))
			chunkEnd := chunkStart + uint32(len(v))
			if chunkEnd <= region.Offset || chunkStart >= regionEnd {
				continue
			}
			lo := max32(chunkStart, region.Offset) - chunkStart
			hi := min32(chunkEnd, regionEnd) - chunkStart
			out = append(out, v[lo:hi]...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) Seal(ctx context.Context, id PlogId) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(id))
		if bucket == nil {
			return ErrNotFound
		}
		return bucket.Put(metaSealedKey, []byte{1})
	})
}

func (s *BoltStore) Drop(ctx context.Context, id PlogId) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(id)) == nil {
			return ErrNotFound
		}
		return tx.DeleteBucket([]byte(id))
	})
}

func putUint32(bucket *bolt.Bucket, key []byte, v uint32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return bucket.Put(key, buf)
}

func getUint32(bucket *bolt.Bucket, key []byte) uint32 {
	v := bucket.Get(key)
	if len(v) != 4 {
		return 0
	}
	return binary.BigEndian.Uint32(v)
}

func isSealed(bucket *bolt.Bucket) bool {
	v := bucket.Get(metaSealedKey)
	return len(v) == 1 && v[0] == 1
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
