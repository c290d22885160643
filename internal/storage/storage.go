package storage

import (
	"context"

	"minDex/internal/model"
)

// EventSink receives pool events in commit order.
type EventSink interface {
	PutEvents(ctx context.Context, events []model.TypedEvent) error
}

// StateStore persists the latest pool snapshot.
type StateStore interface {
	Load(ctx context.Context) (model.PoolSnapshot, bool, error)
	Save(ctx context.Context, snap model.PoolSnapshot) error
}

// EventResetter is implemented by sinks that can drop the stored event
// history of their pool.
type EventResetter interface {
	ResetEvents(ctx context.Context) error
}

// MultiSink fans events out to every sink in order and stops at the first error.
type MultiSink []EventSink

func (m MultiSink) PutEvents(ctx context.Context, events []model.TypedEvent) error {
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.PutEvents(ctx, events); err != nil {
			return err
		}
	}
	return nil
}

// ResetEvents resets every member that implements EventResetter.
func (m MultiSink) ResetEvents(ctx context.Context) error {
	for _, sink := range m {
		resetter, ok := sink.(EventResetter)
		if !ok {
			continue
		}
		if err := resetter.ResetEvents(ctx); err != nil {
			return err
		}
	}
	return nil
}
