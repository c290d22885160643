package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"minDex/internal/model"
)

// LevelDBStore keeps the snapshot and event log of one pool in LevelDB.
//
// Keys:
//
//	pair/<address>/snapshot      JSON PoolSnapshot
//	pair/<address>/event/<seq>   JSON TypedEvent, seq as 8-byte big endian
type LevelDBStore struct {
	db     *leveldb.DB
	prefix []byte
}

// OpenLevelDB opens or creates a database at path for the given pool.
func OpenLevelDB(path string, pool common.Address) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return NewLevelDBStore(db, pool), nil
}

func NewLevelDBStore(db *leveldb.DB, pool common.Address) *LevelDBStore {
	return &LevelDBStore{db: db, prefix: []byte("pair/" + pool.Hex() + "/")}
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

func (s *LevelDBStore) snapshotKey() []byte {
	return append(append([]byte{}, s.prefix...), "snapshot"...)
}

func (s *LevelDBStore) eventPrefix() []byte {
	return append(append([]byte{}, s.prefix...), "event/"...)
}

func (s *LevelDBStore) eventKey(seq uint64) []byte {
	key := s.eventPrefix()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return append(key, buf[:]...)
}

func (s *LevelDBStore) Load(ctx context.Context) (model.PoolSnapshot, bool, error) {
	data, err := s.db.Get(s.snapshotKey(), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return model.PoolSnapshot{}, false, nil
		}
		return model.PoolSnapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	var snap model.PoolSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.PoolSnapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, true, nil
}

func (s *LevelDBStore) Save(ctx context.Context, snap model.PoolSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.db.Put(s.snapshotKey(), data, nil); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// PutEvents writes a batch of events atomically.
func (s *LevelDBStore) PutEvents(ctx context.Context, events []model.TypedEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := new(leveldb.Batch)
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event %d: %w", event.Sequence, err)
		}
		batch.Put(s.eventKey(event.Sequence), data)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	return nil
}

// ResetEvents deletes the pool's event log. The snapshot is kept.
func (s *LevelDBStore) ResetEvents(ctx context.Context) error {
	iter := s.db.NewIterator(util.BytesPrefix(s.eventPrefix()), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch.Delete(append([]byte{}, iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("iterate events: %w", err)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	return nil
}

// Events returns the stored events with sequence >= from, in order.
func (s *LevelDBStore) Events(ctx context.Context, from uint64) ([]model.TypedEventRecord, error) {
	rng := util.BytesPrefix(s.eventPrefix())
	rng.Start = s.eventKey(from)

	iter := s.db.NewIterator(rng, nil)
	defer iter.Release()

	var out []model.TypedEventRecord
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rec model.TypedEventRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("parse event: %w", err)
		}
		out = append(out, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
