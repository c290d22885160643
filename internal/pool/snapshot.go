package pool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"minDex/internal/model"
	"minDex/internal/shares"
	"minDex/internal/uq112"
)

// Snapshot exports the persisted layout of the pool.
func (p *Pool) Snapshot() model.PoolSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	balances := p.shares.Balances()
	holders := make(map[string]string, len(balances))
	for holder, amount := range balances {
		holders[holder.Hex()] = amount.Dec()
	}
	snap := model.PoolSnapshot{
		Address:           p.address.Hex(),
		ReserveA:          p.state.ReserveA.Dec(),
		ReserveB:          p.state.ReserveB.Dec(),
		LastSyncTimestamp: p.state.LastSyncTimestamp,
		PriceACumulative:  p.state.PriceACumulative.Dec(),
		PriceBCumulative:  p.state.PriceBCumulative.Dec(),
		TotalShares:       p.shares.TotalSupply().Dec(),
		Shares:            holders,
		Sequence:          p.sequence,
	}
	if p.initialized {
		snap.AssetA = p.assetA.Hex()
		snap.AssetB = p.assetB.Hex()
	}
	return snap
}

// Restore builds a pool from a snapshot taken by Snapshot. The snapshot's
// address must match cfg.Address. Event sequence numbers continue after the
// snapshot's.
func Restore(ctx context.Context, cfg Config, snap model.PoolSnapshot) (*Pool, error) {
	p, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(snap.Address) || common.HexToAddress(snap.Address) != cfg.Address {
		return nil, fmt.Errorf("restore pool: snapshot address %q does not match %s", snap.Address, cfg.Address.Hex())
	}

	state := ReserveState{LastSyncTimestamp: snap.LastSyncTimestamp}
	fields := []struct {
		name  string
		value string
		dst   **uint256.Int
		bits  int
	}{
		{"reserve_a", snap.ReserveA, &state.ReserveA, uq112.ReserveBits},
		{"reserve_b", snap.ReserveB, &state.ReserveB, uq112.ReserveBits},
		{"price_a_cumulative", snap.PriceACumulative, &state.PriceACumulative, uq112.CumulativeBits},
		{"price_b_cumulative", snap.PriceBCumulative, &state.PriceBCumulative, uq112.CumulativeBits},
	}
	for _, f := range fields {
		v, err := parseAmount(f.value)
		if err != nil {
			return nil, fmt.Errorf("restore pool: %s: %w", f.name, err)
		}
		if v.BitLen() > f.bits {
			return nil, fmt.Errorf("restore pool: %s exceeds %d bits", f.name, f.bits)
		}
		*f.dst = v
	}

	balances := make(map[common.Address]*uint256.Int, len(snap.Shares))
	for holder, amount := range snap.Shares {
		if !common.IsHexAddress(holder) {
			return nil, fmt.Errorf("restore pool: invalid holder %q", holder)
		}
		v, err := parseAmount(amount)
		if err != nil {
			return nil, fmt.Errorf("restore pool: shares of %s: %w", holder, err)
		}
		balances[common.HexToAddress(holder)] = v
	}
	ledger, err := shares.Restore(balances)
	if err != nil {
		return nil, fmt.Errorf("restore pool: %w", err)
	}
	total, err := parseAmount(snap.TotalShares)
	if err != nil {
		return nil, fmt.Errorf("restore pool: total_shares: %w", err)
	}
	if !ledger.TotalSupply().Eq(total) {
		return nil, fmt.Errorf("restore pool: total shares %s does not match balances sum %s", total.Dec(), ledger.TotalSupply().Dec())
	}

	p.state = state
	p.shares = ledger
	p.sequence = snap.Sequence
	if snap.AssetA == "" && snap.AssetB == "" {
		return p, nil
	}

	assetA, assetB := common.HexToAddress(snap.AssetA), common.HexToAddress(snap.AssetB)
	if assetA == assetB {
		return nil, fmt.Errorf("restore pool: %w", ErrIdenticalAssets)
	}
	if p.ledgerA, err = cfg.Assets.Ledger(assetA); err != nil {
		return nil, fmt.Errorf("restore pool: resolve asset a: %w", err)
	}
	if p.ledgerB, err = cfg.Assets.Ledger(assetB); err != nil {
		return nil, fmt.Errorf("restore pool: resolve asset b: %w", err)
	}
	p.assetA, p.assetB = assetA, assetB
	p.initialized = true

	// ledgers must hold at least the restored reserves
	v, _ := p.view()
	balanceA, balanceB, err := v.balances(ctx, p.address)
	if err != nil {
		return nil, fmt.Errorf("restore pool: %w", err)
	}
	if balanceA.Lt(state.ReserveA) || balanceB.Lt(state.ReserveB) {
		return nil, fmt.Errorf("restore pool: ledger balances %s/%s below reserves %s/%s",
			balanceA.Dec(), balanceB.Dec(), state.ReserveA.Dec(), state.ReserveB.Dec())
	}
	return p, nil
}

func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}
