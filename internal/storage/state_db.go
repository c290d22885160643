package storage

import (
	"context"

	"minDex/internal/model"
	"minDex/internal/storage/postgres"
)

// DBStateStore stores the snapshot of one pool in Postgres.
type DBStateStore struct {
	Store   *postgres.Store
	Address string
}

func (s *DBStateStore) Load(ctx context.Context) (model.PoolSnapshot, bool, error) {
	if s == nil || s.Store == nil {
		return model.PoolSnapshot{}, false, nil
	}
	return s.Store.LoadSnapshot(ctx, s.Address)
}

func (s *DBStateStore) Save(ctx context.Context, snap model.PoolSnapshot) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveSnapshot(ctx, snap)
}

// DBEventLog stores the events of one pool in Postgres.
type DBEventLog struct {
	Store   *postgres.Store
	Address string
}

func (l *DBEventLog) PutEvents(ctx context.Context, events []model.TypedEvent) error {
	return l.Store.PutEvents(ctx, events)
}

func (l *DBEventLog) ResetEvents(ctx context.Context) error {
	return l.Store.DeleteEvents(ctx, l.Address)
}
