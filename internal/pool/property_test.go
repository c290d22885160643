package pool

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"pgregory.net/rapid"

	"minDex/internal/asset"
)

type propertyPool struct {
	ctx    context.Context
	pool   *Pool
	tokenA *asset.MemLedger
	tokenB *asset.MemLedger
}

func newPropertyPool(t *rapid.T) *propertyPool {
	pp := &propertyPool{
		ctx:    context.Background(),
		tokenA: asset.NewMemLedger("TKNA"),
		tokenB: asset.NewMemLedger("TKNB"),
	}
	supply := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(30))
	for _, holder := range []common.Address{owner, other} {
		if err := pp.tokenA.Mint(holder, supply); err != nil {
			t.Fatalf("mint a: %v", err)
		}
		if err := pp.tokenB.Mint(holder, supply); err != nil {
			t.Fatalf("mint b: %v", err)
		}
	}
	p, err := New(Config{
		Address: poolAddr,
		Factory: factory,
		Assets:  asset.Registry{assetAID: pp.tokenA, assetBID: pp.tokenB},
	})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	if err := p.Initialize(pp.ctx, factory, assetAID, assetBID); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	pp.pool = p
	return pp
}

func (pp *propertyPool) push(t *rapid.T, from common.Address, amountA, amountB *uint256.Int) {
	if !amountA.IsZero() {
		if err := pp.tokenA.Transfer(pp.ctx, from, poolAddr, amountA); err != nil {
			t.Fatalf("push a: %v", err)
		}
	}
	if !amountB.IsZero() {
		if err := pp.tokenB.Transfer(pp.ctx, from, poolAddr, amountB); err != nil {
			t.Fatalf("push b: %v", err)
		}
	}
}

func (pp *propertyPool) checkConservation(t *rapid.T) {
	snap := pp.pool.Snapshot()
	sum := new(uint256.Int)
	for holder, amount := range snap.Shares {
		v, err := uint256.FromDecimal(amount)
		if err != nil {
			t.Fatalf("parse shares of %s: %v", holder, err)
		}
		sum.Add(sum, v)
	}
	if sum.Dec() != snap.TotalShares {
		t.Fatalf("total shares %s != sum of balances %s", snap.TotalShares, sum.Dec())
	}
}

func drawAmount(t *rapid.T, label string, max uint64) *uint256.Int {
	return uint256.NewInt(rapid.Uint64Range(1, max).Draw(t, label))
}

func TestPropertyConservationAndInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pp := newPropertyPool(t)
		pp.push(t, owner, drawAmount(t, "seedA", 1e18), drawAmount(t, "seedB", 1e18))
		if _, err := pp.pool.SupplyLiquidity(pp.ctx, owner); err != nil && !errors.Is(err, ErrInsufficientInitialLiquidity) {
			t.Fatalf("bootstrap: %v", err)
		}

		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			actor := rapid.SampledFrom([]common.Address{owner, other}).Draw(t, "actor")
			beforeA, beforeB, _ := pp.pool.Reserves()
			before := new(uint256.Int).Mul(beforeA, beforeB)

			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				pp.push(t, actor, drawAmount(t, "depositA", 1e17), drawAmount(t, "depositB", 1e17))
				_, err := pp.pool.SupplyLiquidity(pp.ctx, actor)
				if err != nil && !errors.Is(err, ErrInsufficientInitialLiquidity) && !errors.Is(err, ErrInsufficientLiquidityMinted) {
					t.Fatalf("supply: %v", err)
				}
			case 1:
				if beforeA.IsZero() || beforeB.IsZero() {
					continue
				}
				in := drawAmount(t, "in", 1e17)
				outA := uint256.NewInt(rapid.Uint64Range(0, beforeA.Uint64()-1).Draw(t, "outA"))
				outB := uint256.NewInt(rapid.Uint64Range(0, beforeB.Uint64()-1).Draw(t, "outB"))
				if rapid.Bool().Draw(t, "inIsA") {
					pp.push(t, actor, in, new(uint256.Int))
				} else {
					pp.push(t, actor, new(uint256.Int), in)
				}
				err := pp.pool.Swap(pp.ctx, outA, outB, actor)
				afterA, afterB, _ := pp.pool.Reserves()
				after := new(uint256.Int).Mul(afterA, afterB)
				switch {
				case err == nil:
					if after.Lt(before) {
						t.Fatalf("product decreased: %s -> %s", before.Dec(), after.Dec())
					}
				case errors.Is(err, ErrInvalidInvariant), errors.Is(err, ErrInsufficientOutputAmount):
					if !afterA.Eq(beforeA) || !afterB.Eq(beforeB) {
						t.Fatalf("rejected swap changed reserves")
					}
				default:
					t.Fatalf("swap: %v", err)
				}
			case 2:
				held := pp.pool.ShareBalance(actor)
				if held.IsZero() {
					continue
				}
				amount := uint256.NewInt(rapid.Uint64Range(1, held.Uint64()).Draw(t, "burn"))
				if err := pp.pool.TransferShares(pp.ctx, actor, poolAddr, amount); err != nil {
					t.Fatalf("transfer shares: %v", err)
				}
				if _, _, err := pp.pool.WithdrawLiquidity(pp.ctx, actor); err != nil && !errors.Is(err, ErrInsufficientLiquidityBurned) {
					t.Fatalf("withdraw: %v", err)
				}
			case 3:
				if err := pp.pool.Resync(pp.ctx); err != nil {
					t.Fatalf("resync: %v", err)
				}
			}
			pp.checkConservation(t)
		}
	})
}

func TestPropertyNoFreeLiquidity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pp := newPropertyPool(t)
		pp.push(t, owner, drawAmount(t, "seedA", 1e18), drawAmount(t, "seedB", 1e18))
		if _, err := pp.pool.SupplyLiquidity(pp.ctx, owner); err != nil {
			// seed below minimum liquidity
			return
		}

		depositA, depositB := drawAmount(t, "depositA", 1e18), drawAmount(t, "depositB", 1e18)
		pp.push(t, other, depositA, depositB)
		granted, err := pp.pool.SupplyLiquidity(pp.ctx, other)
		if errors.Is(err, ErrInsufficientLiquidityMinted) {
			return
		}
		if err != nil {
			t.Fatalf("supply: %v", err)
		}
		if err := pp.pool.TransferShares(pp.ctx, other, poolAddr, granted); err != nil {
			t.Fatalf("transfer shares: %v", err)
		}
		outA, outB, err := pp.pool.WithdrawLiquidity(pp.ctx, other)
		if errors.Is(err, ErrInsufficientLiquidityBurned) {
			return
		}
		if err != nil {
			t.Fatalf("withdraw: %v", err)
		}
		if outA.Gt(depositA) && outB.Gt(depositB) {
			t.Fatalf("free liquidity: deposited %s/%s, withdrew %s/%s",
				depositA.Dec(), depositB.Dec(), outA.Dec(), outB.Dec())
		}
	})
}
