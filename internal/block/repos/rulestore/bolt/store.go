package bolt

import (
	"encoding/binary"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/rr-block/internal/block/common/clock"
	"github.com/haukened/rr-block/internal/block/repos/rulestore"
)

var (
	bucketData = []byte("sync")
	bucketMeta = []byte("meta")

	metaVersion = []byte("version")
	metaUpdated = []byte("updated")
)

// boltStore implements rulestore.KVStore using bbolt.
type boltStore struct {
	db  *bbolt.DB
	clk clock.Clock
}

// bucketCreator is the subset of *bbolt.Tx used to create buckets.
type bucketCreator interface {
	CreateBucketIfNotExists(name []byte) (*bbolt.Bucket, error)
}

// ensureBuckets creates the data and meta buckets when missing.
func ensureBuckets(tx bucketCreator) error {
	for _, name := range [][]byte{bucketData, bucketMeta} {
		if _, err := tx.CreateBucketIfNotExists(name); err != nil {
			return err
		}
	}
	return nil
}

// seams for tests
var (
	ensureBucketsFn = ensureBuckets
	writeMetaFn     = writeMeta
)

// New opens (or creates) a Bolt database at path and ensures buckets exist.
// A nil clk uses the wall clock for write metadata.
func New(path string, clk clock.Clock) (rulestore.KVStore, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		return ensureBucketsFn(tx)
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db, clk: clk}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

func (s *boltStore) Get(key string) ([]byte, bool, error) {
	var (
		out   []byte
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketData)
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		// bbolt values are only valid for the life of the transaction
		out = make([]byte, len(v))
		copy(out, v)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, found, nil
}

// Put overwrites the value and bumps version/updated in the same transaction.
func (s *boltStore) Put(key string, value []byte) error {
	now := s.clk.Now().Unix()
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := ensureBucketsFn(tx); err != nil {
			return err
		}
		if value == nil {
			value = []byte{}
		}
		if err := tx.Bucket(bucketData).Put([]byte(key), value); err != nil {
			return err
		}
		return writeMetaFn(tx, readUint64(tx.Bucket(bucketMeta), metaVersion)+1, now)
	})
}

func (s *boltStore) Stats() rulestore.StoreStats {
	st := rulestore.StoreStats{}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketData); b != nil {
			st.Keys = uint64(b.Stats().KeyN)
		}
		if b := tx.Bucket(bucketMeta); b != nil {
			st.Version = readUint64(b, metaVersion)
			st.UpdatedUnix = int64(readUint64(b, metaUpdated))
		}
		return nil
	})
	return st
}

func writeMeta(tx *bbolt.Tx, version uint64, updatedUnix int64) error {
	b := tx.Bucket(bucketMeta)
	vbuf := make([]byte, 8)
	ubuf := make([]byte, 8)
	binary.BigEndian.PutUint64(vbuf, version)
	binary.BigEndian.PutUint64(ubuf, uint64(updatedUnix))
	if err := b.Put(metaVersion, vbuf); err != nil {
		return err
	}
	return b.Put(metaUpdated, ubuf)
}

func readUint64(b *bbolt.Bucket, key []byte) uint64 {
	if b == nil {
		return 0
	}
	if v := b.Get(key); len(v) == 8 {
		return binary.BigEndian.Uint64(v)
	}
	return 0
}

var _ rulestore.KVStore = (*boltStore)(nil)
