// Package shares keeps the pool's liquidity share accounting.
package shares

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MinimumShares is locked in Sink on the first issuance and never redeemed.
const MinimumShares = 1000

// Sink holds the locked minimum. Shares held here cannot move.
var Sink = common.Address{}

var (
	ErrInsufficientInitialLiquidity = errors.New("insufficient initial liquidity")
	ErrInsufficientLiquidityMinted  = errors.New("insufficient liquidity minted")
	ErrInsufficientShares           = errors.New("insufficient shares")
	ErrLockedShares                 = errors.New("shares are locked")
	ErrSupplyOverflow               = errors.New("share supply overflow")
)

// Ledger tracks total supply and per-holder balances. It is not safe for
// concurrent use; the owning pool serializes access.
type Ledger struct {
	total    *uint256.Int
	balances map[common.Address]*uint256.Int
}

func New() *Ledger {
	return &Ledger{
		total:    new(uint256.Int),
		balances: make(map[common.Address]*uint256.Int),
	}
}

// Restore rebuilds a ledger from persisted balances. The total is recomputed
// so a restored ledger always satisfies the conservation invariant.
func Restore(balances map[common.Address]*uint256.Int) (*Ledger, error) {
	l := New()
	for holder, amount := range balances {
		if amount == nil || amount.IsZero() {
			continue
		}
		if _, overflow := new(uint256.Int).AddOverflow(l.total, amount); overflow {
			return nil, fmt.Errorf("restore %s: %w", holder.Hex(), ErrSupplyOverflow)
		}
		l.total.Add(l.total, amount)
		l.balances[holder] = new(uint256.Int).Set(amount)
	}
	return l, nil
}

// TotalSupply returns a copy of the total share supply.
func (l *Ledger) TotalSupply() *uint256.Int {
	return new(uint256.Int).Set(l.total)
}

// BalanceOf returns a copy of the holder's balance.
func (l *Ledger) BalanceOf(holder common.Address) *uint256.Int {
	if bal, ok := l.balances[holder]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

// Balances returns a copy of every non-zero balance.
func (l *Ledger) Balances() map[common.Address]*uint256.Int {
	out := make(map[common.Address]*uint256.Int, len(l.balances))
	for holder, bal := range l.balances {
		out[holder] = new(uint256.Int).Set(bal)
	}
	return out
}

// Issue credits amount to holder and grows the supply.
func (l *Ledger) Issue(holder common.Address, amount *uint256.Int) error {
	if l.total.IsZero() && len(l.balances) > 0 {
		return fmt.Errorf("issue: empty supply with %d holders", len(l.balances))
	}
	if amount.IsZero() {
		return nil
	}
	newTotal, overflow := new(uint256.Int).AddOverflow(l.total, amount)
	if overflow {
		return ErrSupplyOverflow
	}
	l.total = newTotal
	l.credit(holder, amount)
	return nil
}

// Mint issues a grant to holder and, when lock is set, MinimumShares to Sink.
// Either both issuances happen or neither does.
func (l *Ledger) Mint(holder common.Address, grant *uint256.Int, lock bool) error {
	need := new(uint256.Int).Set(grant)
	if lock {
		need.AddUint64(need, MinimumShares)
	}
	if _, overflow := new(uint256.Int).AddOverflow(l.total, need); overflow || need.Lt(grant) {
		return ErrSupplyOverflow
	}
	if lock {
		if err := l.Issue(Sink, uint256.NewInt(MinimumShares)); err != nil {
			return err
		}
	}
	return l.Issue(holder, grant)
}

// Redeem debits amount from holder and shrinks the supply.
func (l *Ledger) Redeem(holder common.Address, amount *uint256.Int) error {
	if holder == Sink {
		return ErrLockedShares
	}
	if err := l.debit(holder, amount); err != nil {
		return err
	}
	l.total.Sub(l.total, amount)
	return nil
}

// Transfer moves shares between holders. The supply is unchanged.
func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int) error {
	if from == Sink {
		return ErrLockedShares
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	l.credit(to, amount)
	return nil
}

func (l *Ledger) credit(holder common.Address, amount *uint256.Int) {
	bal, ok := l.balances[holder]
	if !ok {
		bal = new(uint256.Int)
		l.balances[holder] = bal
	}
	bal.Add(bal, amount)
}

func (l *Ledger) debit(holder common.Address, amount *uint256.Int) error {
	bal := l.BalanceOf(holder)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientShares, bal.Dec(), amount.Dec())
	}
	bal.Sub(bal, amount)
	if bal.IsZero() {
		delete(l.balances, holder)
		return nil
	}
	l.balances[holder] = bal
	return nil
}

// Grant computes the shares owed for a deposit against the current reserves.
// When the supply is empty the geometric mean is used and lock reports that
// MinimumShares must be issued to Sink alongside the grant.
func (l *Ledger) Grant(depositA, depositB, reserveA, reserveB *uint256.Int) (grant *uint256.Int, lock bool, err error) {
	if l.total.IsZero() {
		product, overflow := new(uint256.Int).MulOverflow(depositA, depositB)
		if overflow {
			return nil, false, ErrSupplyOverflow
		}
		root := new(uint256.Int).Sqrt(product)
		minimum := uint256.NewInt(MinimumShares)
		if !root.Gt(minimum) {
			return nil, false, ErrInsufficientInitialLiquidity
		}
		return root.Sub(root, minimum), true, nil
	}

	if reserveA.IsZero() || reserveB.IsZero() {
		return nil, false, fmt.Errorf("%w: zero reserve with supply %s", ErrInsufficientLiquidityMinted, l.total.Dec())
	}
	byA, overflowA := new(uint256.Int).MulDivOverflow(depositA, l.total, reserveA)
	byB, overflowB := new(uint256.Int).MulDivOverflow(depositB, l.total, reserveB)
	if overflowA || overflowB {
		return nil, false, ErrSupplyOverflow
	}
	grant = byA
	if byB.Lt(byA) {
		grant = byB
	}
	if grant.IsZero() {
		return nil, false, ErrInsufficientLiquidityMinted
	}
	return grant, false, nil
}

// Share returns floor(amount * balance / total), the slice of balance that
// amount shares are entitled to.
func (l *Ledger) Share(amount, balance *uint256.Int) (*uint256.Int, error) {
	if l.total.IsZero() {
		return nil, fmt.Errorf("share: empty supply")
	}
	out, overflow := new(uint256.Int).MulDivOverflow(amount, balance, l.total)
	if overflow {
		return nil, ErrSupplyOverflow
	}
	return out, nil
}
