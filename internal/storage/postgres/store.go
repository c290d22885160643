package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"minDex/internal/model"
)

// Schema creates the tables used by Store. Amounts are numeric(78,0), wide
// enough for any 256-bit value.
const Schema = `
CREATE TABLE IF NOT EXISTS pair_snapshots (
	pool_address        text PRIMARY KEY,
	asset_a             text NOT NULL,
	asset_b             text NOT NULL,
	reserve_a           numeric(78,0) NOT NULL,
	reserve_b           numeric(78,0) NOT NULL,
	last_sync_ts        bigint NOT NULL,
	price_a_cumulative  numeric(78,0) NOT NULL,
	price_b_cumulative  numeric(78,0) NOT NULL,
	total_shares        numeric(78,0) NOT NULL,
	updated_at          timestamptz NOT NULL
);
ALTER TABLE pair_snapshots ADD COLUMN IF NOT EXISTS last_sequence bigint NOT NULL DEFAULT 0;
CREATE TABLE IF NOT EXISTS pair_share_balances (
	pool_address text NOT NULL,
	holder       text NOT NULL,
	amount       numeric(78,0) NOT NULL,
	PRIMARY KEY (pool_address, holder)
);
CREATE TABLE IF NOT EXISTS pair_events (
	pool_address text NOT NULL,
	sequence     bigint NOT NULL,
	event_name   text NOT NULL,
	event_ts     bigint NOT NULL,
	payload      jsonb NOT NULL,
	topics       text[],
	data         text,
	created_at   timestamptz NOT NULL,
	PRIMARY KEY (pool_address, sequence)
);
CREATE TABLE IF NOT EXISTS pair_twap_windows (
	chain_id        bigint NOT NULL,
	pair_address    text NOT NULL,
	window_start_ts timestamptz NOT NULL,
	window_end_ts   timestamptz NOT NULL,
	elapsed_seconds bigint NOT NULL,
	price0          numeric(78,0) NOT NULL,
	price1          numeric(78,0) NOT NULL,
	price0_decimal  text NOT NULL,
	price1_decimal  text NOT NULL,
	created_at      timestamptz NOT NULL,
	updated_at      timestamptz NOT NULL,
	PRIMARY KEY (chain_id, pair_address, window_start_ts)
);
`

// Store provides Postgres persistence for pair state, events and TWAP windows.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveSnapshot replaces the stored snapshot and share balances of a pool in
// one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, snap model.PoolSnapshot) error {
	if snap.Address == "" {
		return fmt.Errorf("snapshot address required")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO pair_snapshots (
			pool_address, asset_a, asset_b, reserve_a, reserve_b, last_sync_ts,
			price_a_cumulative, price_b_cumulative, total_shares, last_sequence, updated_at
		) VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7::numeric, $8::numeric, $9::numeric, $10, now())
		ON CONFLICT (pool_address)
		DO UPDATE SET
			asset_a = EXCLUDED.asset_a,
			asset_b = EXCLUDED.asset_b,
			reserve_a = EXCLUDED.reserve_a,
			reserve_b = EXCLUDED.reserve_b,
			last_sync_ts = EXCLUDED.last_sync_ts,
			price_a_cumulative = EXCLUDED.price_a_cumulative,
			price_b_cumulative = EXCLUDED.price_b_cumulative,
			total_shares = EXCLUDED.total_shares,
			last_sequence = EXCLUDED.last_sequence,
			updated_at = now()
	`,
		snap.Address,
		snap.AssetA,
		snap.AssetB,
		orZero(snap.ReserveA),
		orZero(snap.ReserveB),
		int64(snap.LastSyncTimestamp),
		orZero(snap.PriceACumulative),
		orZero(snap.PriceBCumulative),
		orZero(snap.TotalShares),
		int64(snap.Sequence),
	); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM pair_share_balances WHERE pool_address=$1`, snap.Address); err != nil {
		return fmt.Errorf("clear share balances: %w", err)
	}
	if len(snap.Shares) > 0 {
		batch := &pgx.Batch{}
		for holder, amount := range snap.Shares {
			batch.Queue(`
				INSERT INTO pair_share_balances (pool_address, holder, amount)
				VALUES ($1, $2, $3::numeric)
			`, snap.Address, holder, orZero(amount))
		}
		br := tx.SendBatch(ctx, batch)
		for range snap.Shares {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert share balance: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// LoadSnapshot returns the stored snapshot of a pool.
func (s *Store) LoadSnapshot(ctx context.Context, address string) (model.PoolSnapshot, bool, error) {
	if address == "" {
		return model.PoolSnapshot{}, false, fmt.Errorf("pool address required")
	}
	snap := model.PoolSnapshot{Address: address, Shares: map[string]string{}}
	var lastSync, lastSequence int64
	row := s.pool.QueryRow(ctx, `
		SELECT asset_a, asset_b, reserve_a::text, reserve_b::text, last_sync_ts,
			price_a_cumulative::text, price_b_cumulative::text, total_shares::text, last_sequence
		FROM pair_snapshots WHERE pool_address=$1
	`, address)
	if err := row.Scan(
		&snap.AssetA, &snap.AssetB, &snap.ReserveA, &snap.ReserveB, &lastSync,
		&snap.PriceACumulative, &snap.PriceBCumulative, &snap.TotalShares, &lastSequence,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PoolSnapshot{}, false, nil
		}
		return model.PoolSnapshot{}, false, err
	}
	snap.LastSyncTimestamp = uint32(lastSync)
	snap.Sequence = uint64(lastSequence)

	rows, err := s.pool.Query(ctx, `
		SELECT holder, amount::text FROM pair_share_balances WHERE pool_address=$1
	`, address)
	if err != nil {
		return model.PoolSnapshot{}, false, fmt.Errorf("query share balances: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var holder, amount string
		if err := rows.Scan(&holder, &amount); err != nil {
			return model.PoolSnapshot{}, false, fmt.Errorf("scan share balance: %w", err)
		}
		snap.Shares[holder] = amount
	}
	if err := rows.Err(); err != nil {
		return model.PoolSnapshot{}, false, err
	}
	return snap, true, nil
}

// DeleteEvents removes the stored events of a pool.
func (s *Store) DeleteEvents(ctx context.Context, poolAddress string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM pair_events WHERE pool_address=$1`, poolAddress); err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	return nil
}

// PutEvents inserts events, ignoring sequences already stored.
func (s *Store) PutEvents(ctx context.Context, events []model.TypedEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, event := range events {
		payload, err := json.Marshal(event.Decoded)
		if err != nil {
			return fmt.Errorf("marshal event %d: %w", event.Sequence, err)
		}
		var topics []string
		var data *string
		if event.Raw != nil {
			topics = event.Raw.Topics
			data = &event.Raw.Data
		}
		batch.Queue(`
			INSERT INTO pair_events (
				pool_address, sequence, event_name, event_ts, payload, topics, data, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (pool_address, sequence) DO NOTHING
		`,
			event.Pool,
			int64(event.Sequence),
			event.EventName,
			int64(event.Timestamp),
			payload,
			topics,
			data,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertTWAPWindows inserts or updates observed TWAP windows.
func (s *Store) UpsertTWAPWindows(ctx context.Context, windows []model.TWAPWindow) error {
	if len(windows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, w := range windows {
		batch.Queue(`
			INSERT INTO pair_twap_windows (
				chain_id, pair_address, window_start_ts, window_end_ts, elapsed_seconds,
				price0, price1, price0_decimal, price1_decimal, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8,$9,now(),now())
			ON CONFLICT (chain_id, pair_address, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				elapsed_seconds = EXCLUDED.elapsed_seconds,
				price0 = EXCLUDED.price0,
				price1 = EXCLUDED.price1,
				price0_decimal = EXCLUDED.price0_decimal,
				price1_decimal = EXCLUDED.price1_decimal,
				updated_at = now()
		`,
			int64(w.ChainID),
			w.PairAddress,
			w.WindowStart,
			w.WindowEnd,
			int64(w.ElapsedSecs),
			orZero(w.Price0),
			orZero(w.Price1),
			w.Price0Decimal,
			w.Price1Decimal,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range windows {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func orZero(v string) string {
	if v == "" {
		return "0"
	}
	return v
}
