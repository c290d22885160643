// Package asset defines the boundary between the pool and the ledgers of the
// two traded assets.
//
// The pool never pulls value. A caller that wants to supply liquidity or
// trade first transfers the input asset to the pool's identity on the asset
// ledger and then invokes the pool, which infers the deposit by comparing the
// ledger balance against its stored reserves ("push then call").
package asset

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownAsset        = errors.New("unknown asset")
)

// Ledger is the collaborator the pool needs from each asset ledger.
//
// Snapshot and RevertToSnapshot let the pool undo transfers it performed
// optimistically when a later invariant check fails. Reverting to a
// snapshot discards every change made after it was taken, whoever made it,
// so a ledger must have a single writer while a snapshot is open, as with
// geth's StateDB. DiscardSnapshot keeps the changes and releases the
// snapshot.
type Ledger interface {
	BalanceOf(ctx context.Context, holder common.Address) (*uint256.Int, error)
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error
	Snapshot() int
	RevertToSnapshot(id int)
	DiscardSnapshot(id int)
}

// Resolver maps an asset identity to its ledger.
type Resolver interface {
	Ledger(id common.Address) (Ledger, error)
}

// Registry is a static Resolver.
type Registry map[common.Address]Ledger

func (r Registry) Ledger(id common.Address) (Ledger, error) {
	l, ok := r[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, id.Hex())
	}
	return l, nil
}

type journalEntry struct {
	holder common.Address
	prev   *uint256.Int
}

type revision struct {
	id    int
	index int
}

// MemLedger is an in-memory asset ledger with a change journal. The journal
// records prior balances, not deltas: callers must not transfer on the same
// ledger from elsewhere between Snapshot and RevertToSnapshot.
type MemLedger struct {
	mu        sync.Mutex
	symbol    string
	balances  map[common.Address]*uint256.Int
	journal   []journalEntry
	revisions []revision
	nextRevID int
}

func NewMemLedger(symbol string) *MemLedger {
	return &MemLedger{
		symbol:   symbol,
		balances: make(map[common.Address]*uint256.Int),
	}
}

func (l *MemLedger) Symbol() string {
	return l.symbol
}

// BalanceOf returns a copy of holder's balance.
func (l *MemLedger) BalanceOf(_ context.Context, holder common.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(holder), nil
}

// Mint credits new units to holder. It is journaled like a transfer.
func (l *MemLedger) Mint(holder common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balanceLocked(holder)
	next, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return fmt.Errorf("mint %s: balance overflow", l.symbol)
	}
	l.setLocked(holder, next)
	return nil
}

// Transfer moves amount from one holder to another.
func (l *MemLedger) Transfer(_ context.Context, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	fromBal := l.balanceLocked(from)
	if fromBal.Lt(amount) {
		return fmt.Errorf("transfer %s: %w: have %s, want %s", l.symbol, ErrInsufficientBalance, fromBal.Dec(), amount.Dec())
	}
	if from == to {
		return nil
	}
	toBal := l.balanceLocked(to)
	next, overflow := new(uint256.Int).AddOverflow(toBal, amount)
	if overflow {
		return fmt.Errorf("transfer %s: balance overflow", l.symbol)
	}
	l.setLocked(from, fromBal.Sub(fromBal, amount))
	l.setLocked(to, next)
	return nil
}

// Snapshot returns an identifier for the current ledger state.
func (l *MemLedger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextRevID
	l.nextRevID++
	l.revisions = append(l.revisions, revision{id: id, index: len(l.journal)})
	return id
}

// RevertToSnapshot undoes every change made since the snapshot was taken.
// Unknown identifiers are ignored.
func (l *MemLedger) RevertToSnapshot(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i := len(l.revisions) - 1; i >= 0; i-- {
		if l.revisions[i].id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	mark := l.revisions[idx].index
	for i := len(l.journal) - 1; i >= mark; i-- {
		entry := l.journal[i]
		if entry.prev.IsZero() {
			delete(l.balances, entry.holder)
		} else {
			l.balances[entry.holder] = entry.prev
		}
	}
	l.journal = l.journal[:mark]
	l.revisions = l.revisions[:idx]
}

// DiscardSnapshot releases the snapshot and every later one while keeping
// their changes. The journal is dropped once no snapshot is open.
func (l *MemLedger) DiscardSnapshot(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.revisions) - 1; i >= 0; i-- {
		if l.revisions[i].id == id {
			l.revisions = l.revisions[:i]
			break
		}
	}
	if len(l.revisions) == 0 {
		l.journal = l.journal[:0]
	}
}

// Balances returns a copy of every non-zero balance.
func (l *MemLedger) Balances() map[common.Address]*uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[common.Address]*uint256.Int, len(l.balances))
	for holder, bal := range l.balances {
		out[holder] = new(uint256.Int).Set(bal)
	}
	return out
}

func (l *MemLedger) balanceLocked(holder common.Address) *uint256.Int {
	if bal, ok := l.balances[holder]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

func (l *MemLedger) setLocked(holder common.Address, value *uint256.Int) {
	if len(l.revisions) > 0 {
		l.journal = append(l.journal, journalEntry{holder: holder, prev: l.balanceLocked(holder)})
	}
	if value.IsZero() {
		delete(l.balances, holder)
		return
	}
	l.balances[holder] = value
}
