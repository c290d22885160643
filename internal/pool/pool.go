// Package pool implements a two-asset constant-product pair without fees.
//
// Callers push assets to the pool's address on the asset ledgers before
// calling SupplyLiquidity or Swap, and push shares to the pool's address
// with TransferShares before calling WithdrawLiquidity. The pool infers what
// it received by comparing ledger balances against its stored reserves.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"minDex/internal/asset"
	"minDex/internal/metrics"
	"minDex/internal/model"
	"minDex/internal/shares"
)

// EventSink receives the events of every committed operation.
type EventSink interface {
	PutEvents(ctx context.Context, events []model.TypedEvent) error
}

// Config wires a pool to its environment.
type Config struct {
	// Address is the pool's identity on the asset and share ledgers.
	Address common.Address
	// Factory is the only caller allowed to initialize the pool.
	Factory common.Address
	Assets  asset.Resolver
	Now     func() time.Time
	Logger  *zap.Logger
	Events  EventSink
	Metrics *metrics.PoolMetrics
}

// Pool is a single pair. All mutating methods are serialized by a
// non-blocking guard and fail with ErrReentrant while another is running.
type Pool struct {
	address common.Address
	factory common.Address
	assets  asset.Resolver
	now     func() time.Time
	logger  *zap.Logger
	events  EventSink
	metrics *metrics.PoolMetrics
	label   string

	guard guard

	mu          sync.RWMutex
	initialized bool
	assetA      common.Address
	assetB      common.Address
	ledgerA     asset.Ledger
	ledgerB     asset.Ledger
	state       ReserveState
	shares      *shares.Ledger
	sequence    uint64
}

func New(cfg Config) (*Pool, error) {
	if cfg.Address == shares.Sink {
		return nil, fmt.Errorf("pool address must not be the share sink")
	}
	if cfg.Assets == nil {
		return nil, fmt.Errorf("asset resolver is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Pool{
		address: cfg.Address,
		factory: cfg.Factory,
		assets:  cfg.Assets,
		now:     cfg.Now,
		logger:  cfg.Logger.With(zap.String("pool", cfg.Address.Hex())),
		events:  cfg.Events,
		metrics: cfg.Metrics,
		label:   cfg.Address.Hex(),
		state:   newReserveState(),
		shares:  shares.New(),
	}, nil
}

func (p *Pool) Address() common.Address {
	return p.address
}

// Initialize binds the two assets. Only the factory may call it, once.
func (p *Pool) Initialize(ctx context.Context, caller, assetA, assetB common.Address) (err error) {
	if err := p.guard.enter(); err != nil {
		return err
	}
	defer p.guard.exit()
	defer func() { p.finish("initialize", err) }()

	if caller != p.factory {
		return ErrForbidden
	}
	if assetA == assetB {
		return ErrIdenticalAssets
	}
	if p.isInitialized() {
		return ErrAlreadyInitialized
	}
	ledgerA, err := p.assets.Ledger(assetA)
	if err != nil {
		return fmt.Errorf("resolve asset a: %w", err)
	}
	ledgerB, err := p.assets.Ledger(assetB)
	if err != nil {
		return fmt.Errorf("resolve asset b: %w", err)
	}

	p.mu.Lock()
	p.initialized = true
	p.assetA, p.assetB = assetA, assetB
	p.ledgerA, p.ledgerB = ledgerA, ledgerB
	p.mu.Unlock()

	p.logger.Info("pool initialized",
		zap.String("asset_a", assetA.Hex()),
		zap.String("asset_b", assetB.Hex()),
	)
	return nil
}

// SupplyLiquidity issues shares to recipient for the assets deposited since
// the last sync point and returns the amount granted.
func (p *Pool) SupplyLiquidity(ctx context.Context, recipient common.Address) (granted *uint256.Int, err error) {
	if err := p.guard.enter(); err != nil {
		return nil, err
	}
	defer p.guard.exit()
	defer func() { p.finish("supply", err) }()

	v, err := p.view()
	if err != nil {
		return nil, err
	}
	balanceA, balanceB, err := v.balances(ctx, p.address)
	if err != nil {
		return nil, err
	}
	depositA, err := surplus(balanceA, v.state.ReserveA)
	if err != nil {
		return nil, fmt.Errorf("supply liquidity: asset a %w", err)
	}
	depositB, err := surplus(balanceB, v.state.ReserveB)
	if err != nil {
		return nil, fmt.Errorf("supply liquidity: asset b %w", err)
	}

	next := v.state.clone()
	if err := next.Sync(balanceA, balanceB, p.timestamp()); err != nil {
		return nil, err
	}

	p.mu.Lock()
	grant, lock, err := p.shares.Grant(depositA, depositB, v.state.ReserveA, v.state.ReserveB)
	if err == nil {
		err = p.shares.Mint(recipient, grant, lock)
	}
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.state = next
	var events []model.TypedEvent
	if lock {
		events = append(events, p.eventLocked(next.LastSyncTimestamp, model.EventTransfer, model.TransferEventData{
			From:   shares.Sink.Hex(),
			To:     shares.Sink.Hex(),
			Amount: uint256.NewInt(shares.MinimumShares).Dec(),
		}))
	}
	events = append(events,
		p.eventLocked(next.LastSyncTimestamp, model.EventTransfer, model.TransferEventData{
			From:   shares.Sink.Hex(),
			To:     recipient.Hex(),
			Amount: grant.Dec(),
		}),
		p.syncEventLocked(next),
		p.eventLocked(next.LastSyncTimestamp, model.EventMint, model.MintEventData{
			Recipient: recipient.Hex(),
			AmountA:   depositA.Dec(),
			AmountB:   depositB.Dec(),
			Shares:    grant.Dec(),
		}),
	)
	total := p.shares.TotalSupply()
	p.mu.Unlock()

	p.committed(ctx, next, total, events)
	return grant, nil
}

// WithdrawLiquidity burns the shares held at the pool's own address and
// sends the proportional slice of the actual balances to recipient.
func (p *Pool) WithdrawLiquidity(ctx context.Context, recipient common.Address) (amountA, amountB *uint256.Int, err error) {
	if err := p.guard.enter(); err != nil {
		return nil, nil, err
	}
	defer p.guard.exit()
	defer func() { p.finish("withdraw", err) }()

	v, err := p.view()
	if err != nil {
		return nil, nil, err
	}
	balanceA, balanceB, err := v.balances(ctx, p.address)
	if err != nil {
		return nil, nil, err
	}

	p.mu.RLock()
	liquidity := p.shares.BalanceOf(p.address)
	amountA, errA := p.shares.Share(liquidity, balanceA)
	amountB, errB := p.shares.Share(liquidity, balanceB)
	p.mu.RUnlock()
	if errA != nil || errB != nil || amountA.IsZero() || amountB.IsZero() {
		return nil, nil, fmt.Errorf("%w: shares %s", ErrInsufficientLiquidityBurned, liquidity.Dec())
	}

	tx := v.begin()
	if err := tx.pay(ctx, p.address, recipient, amountA, amountB); err != nil {
		tx.revert()
		return nil, nil, err
	}
	balanceA, balanceB, err = v.balances(ctx, p.address)
	if err != nil {
		tx.revert()
		return nil, nil, err
	}
	next := v.state.clone()
	if err := next.Sync(balanceA, balanceB, p.timestamp()); err != nil {
		tx.revert()
		return nil, nil, err
	}

	p.mu.Lock()
	if err := p.shares.Redeem(p.address, liquidity); err != nil {
		p.mu.Unlock()
		tx.revert()
		return nil, nil, err
	}
	p.state = next
	events := []model.TypedEvent{
		p.eventLocked(next.LastSyncTimestamp, model.EventTransfer, model.TransferEventData{
			From:   p.address.Hex(),
			To:     shares.Sink.Hex(),
			Amount: liquidity.Dec(),
		}),
		p.syncEventLocked(next),
		p.eventLocked(next.LastSyncTimestamp, model.EventBurn, model.BurnEventData{
			Recipient: recipient.Hex(),
			AmountA:   amountA.Dec(),
			AmountB:   amountB.Dec(),
			Shares:    liquidity.Dec(),
		}),
	}
	total := p.shares.TotalSupply()
	p.mu.Unlock()
	tx.commit()

	p.committed(ctx, next, total, events)
	return amountA, amountB, nil
}

// Swap sends the requested outputs to recipient and keeps them only if the
// resulting balances do not lower the reserve product.
func (p *Pool) Swap(ctx context.Context, amountOutA, amountOutB *uint256.Int, recipient common.Address) (err error) {
	if err := p.guard.enter(); err != nil {
		return err
	}
	defer p.guard.exit()
	defer func() { p.finish("swap", err) }()

	// nil outputs count as zero
	if amountOutA == nil {
		amountOutA = new(uint256.Int)
	}
	if amountOutB == nil {
		amountOutB = new(uint256.Int)
	}
	if amountOutA.IsZero() && amountOutB.IsZero() {
		return ErrInsufficientOutputAmount
	}
	v, err := p.view()
	if err != nil {
		return err
	}
	if !amountOutA.Lt(v.state.ReserveA) || !amountOutB.Lt(v.state.ReserveB) {
		return fmt.Errorf("%w: want %s/%s, reserves %s/%s", ErrInsufficientLiquidity,
			amountOutA.Dec(), amountOutB.Dec(), v.state.ReserveA.Dec(), v.state.ReserveB.Dec())
	}
	if recipient == v.assetA || recipient == v.assetB {
		return ErrInvalidRecipient
	}

	tx := v.begin()
	if err := tx.pay(ctx, p.address, recipient, amountOutA, amountOutB); err != nil {
		tx.revert()
		return err
	}
	balanceA, balanceB, err := v.balances(ctx, p.address)
	if err != nil {
		tx.revert()
		return err
	}
	next := v.state.clone()
	if err := next.Sync(balanceA, balanceB, p.timestamp()); err != nil {
		tx.revert()
		return err
	}
	before, after := v.state.Product(), next.Product()
	if after.Lt(before) {
		tx.revert()
		return fmt.Errorf("%w: product %s < %s", ErrInvalidInvariant, after.Dec(), before.Dec())
	}

	p.mu.Lock()
	p.state = next
	events := []model.TypedEvent{
		p.syncEventLocked(next),
		p.eventLocked(next.LastSyncTimestamp, model.EventSwap, model.SwapEventData{
			Recipient:  recipient.Hex(),
			AmountAIn:  inflow(balanceA, v.state.ReserveA, amountOutA).Dec(),
			AmountBIn:  inflow(balanceB, v.state.ReserveB, amountOutB).Dec(),
			AmountAOut: amountOutA.Dec(),
			AmountBOut: amountOutB.Dec(),
		}),
	}
	total := p.shares.TotalSupply()
	p.mu.Unlock()
	tx.commit()

	p.committed(ctx, next, total, events)
	return nil
}

// Resync sets the reserves to the actual balances.
func (p *Pool) Resync(ctx context.Context) (err error) {
	if err := p.guard.enter(); err != nil {
		return err
	}
	defer p.guard.exit()
	defer func() { p.finish("resync", err) }()

	v, err := p.view()
	if err != nil {
		return err
	}
	balanceA, balanceB, err := v.balances(ctx, p.address)
	if err != nil {
		return err
	}
	next := v.state.clone()
	if err := next.Sync(balanceA, balanceB, p.timestamp()); err != nil {
		return err
	}

	p.mu.Lock()
	p.state = next
	events := []model.TypedEvent{p.syncEventLocked(next)}
	total := p.shares.TotalSupply()
	p.mu.Unlock()

	p.committed(ctx, next, total, events)
	return nil
}

// Skim sends any balance above the reserves to recipient. Reserves and the
// oracle are left untouched.
func (p *Pool) Skim(ctx context.Context, recipient common.Address) (err error) {
	if err := p.guard.enter(); err != nil {
		return err
	}
	defer p.guard.exit()
	defer func() { p.finish("skim", err) }()

	v, err := p.view()
	if err != nil {
		return err
	}
	balanceA, balanceB, err := v.balances(ctx, p.address)
	if err != nil {
		return err
	}
	excessA, err := surplus(balanceA, v.state.ReserveA)
	if err != nil {
		return fmt.Errorf("skim: asset a %w", err)
	}
	excessB, err := surplus(balanceB, v.state.ReserveB)
	if err != nil {
		return fmt.Errorf("skim: asset b %w", err)
	}

	tx := v.begin()
	if err := tx.pay(ctx, p.address, recipient, excessA, excessB); err != nil {
		tx.revert()
		return err
	}
	tx.commit()
	return nil
}

// TransferShares moves shares between holders. Holders push shares to the
// pool's address this way before WithdrawLiquidity.
func (p *Pool) TransferShares(ctx context.Context, from, to common.Address, amount *uint256.Int) (err error) {
	if err := p.guard.enter(); err != nil {
		return err
	}
	defer p.guard.exit()
	defer func() { p.finish("transfer_shares", err) }()

	if amount == nil {
		amount = new(uint256.Int)
	}
	p.mu.Lock()
	if err := p.shares.Transfer(from, to, amount); err != nil {
		p.mu.Unlock()
		return err
	}
	events := []model.TypedEvent{p.eventLocked(p.timestamp(), model.EventTransfer, model.TransferEventData{
		From:   from.Hex(),
		To:     to.Hex(),
		Amount: amount.Dec(),
	})}
	p.mu.Unlock()

	p.emit(ctx, events)
	return nil
}

// Reserves returns the committed reserves and the last sync timestamp.
func (p *Pool) Reserves() (reserveA, reserveB *uint256.Int, lastSyncTimestamp uint32) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(uint256.Int).Set(p.state.ReserveA), new(uint256.Int).Set(p.state.ReserveB), p.state.LastSyncTimestamp
}

// PriceCumulatives returns the accumulators as of the last sync point.
func (p *Pool) PriceCumulatives() (cumA, cumB *uint256.Int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(uint256.Int).Set(p.state.PriceACumulative), new(uint256.Int).Set(p.state.PriceBCumulative)
}

// CurrentCumulatives returns the accumulators extrapolated to at with the
// current reserves, without writing anything.
func (p *Pool) CurrentCumulatives(at time.Time) (cumA, cumB *uint256.Int, timestamp uint32) {
	timestamp = uint32(at.Unix())
	p.mu.RLock()
	defer p.mu.RUnlock()
	cumA, cumB = p.state.CumulativesAt(timestamp)
	return cumA, cumB, timestamp
}

func (p *Pool) ShareBalance(holder common.Address) *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.shares.BalanceOf(holder)
}

func (p *Pool) TotalShares() *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.shares.TotalSupply()
}

// Assets returns the bound asset identities. Both are zero before Initialize.
func (p *Pool) Assets() (assetA, assetB common.Address) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.assetA, p.assetB
}

func (p *Pool) isInitialized() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.initialized
}

func (p *Pool) timestamp() uint32 {
	return uint32(p.now().Unix())
}

// poolView is the part of the pool state an operation reads before it
// touches the asset ledgers.
type poolView struct {
	assetA  common.Address
	assetB  common.Address
	ledgerA asset.Ledger
	ledgerB asset.Ledger
	state   ReserveState
}

func (p *Pool) view() (poolView, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.initialized {
		return poolView{}, ErrNotInitialized
	}
	return poolView{
		assetA:  p.assetA,
		assetB:  p.assetB,
		ledgerA: p.ledgerA,
		ledgerB: p.ledgerB,
		state:   p.state.clone(),
	}, nil
}

func (v poolView) balances(ctx context.Context, holder common.Address) (*uint256.Int, *uint256.Int, error) {
	balanceA, err := v.ledgerA.BalanceOf(ctx, holder)
	if err != nil {
		return nil, nil, fmt.Errorf("read balance a: %w", err)
	}
	balanceB, err := v.ledgerB.BalanceOf(ctx, holder)
	if err != nil {
		return nil, nil, fmt.Errorf("read balance b: %w", err)
	}
	return balanceA, balanceB, nil
}

// payout groups the outbound transfers of one operation so they can be
// undone together.
type payout struct {
	v     poolView
	snapA int
	snapB int
}

func (v poolView) begin() *payout {
	return &payout{v: v, snapA: v.ledgerA.Snapshot(), snapB: v.ledgerB.Snapshot()}
}

func (t *payout) pay(ctx context.Context, from, to common.Address, amountA, amountB *uint256.Int) error {
	if !amountA.IsZero() {
		if err := t.v.ledgerA.Transfer(ctx, from, to, amountA); err != nil {
			return fmt.Errorf("transfer asset a: %w", err)
		}
	}
	if !amountB.IsZero() {
		if err := t.v.ledgerB.Transfer(ctx, from, to, amountB); err != nil {
			return fmt.Errorf("transfer asset b: %w", err)
		}
	}
	return nil
}

func (t *payout) revert() {
	t.v.ledgerB.RevertToSnapshot(t.snapB)
	t.v.ledgerA.RevertToSnapshot(t.snapA)
}

func (t *payout) commit() {
	t.v.ledgerB.DiscardSnapshot(t.snapB)
	t.v.ledgerA.DiscardSnapshot(t.snapA)
}

// surplus returns balance - reserve.
func surplus(balance, reserve *uint256.Int) (*uint256.Int, error) {
	if balance.Lt(reserve) {
		return nil, fmt.Errorf("balance %s below reserve %s", balance.Dec(), reserve.Dec())
	}
	return new(uint256.Int).Sub(balance, reserve), nil
}

// inflow returns how much of an asset arrived during a swap:
// balance - (reserve - out), or zero.
func inflow(balance, reserve, out *uint256.Int) *uint256.Int {
	kept := new(uint256.Int).Sub(reserve, out)
	if !balance.Gt(kept) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(balance, kept)
}

func (p *Pool) eventLocked(timestamp uint32, name string, payload interface{}) model.TypedEvent {
	p.sequence++
	return model.TypedEvent{
		Pool:      p.address.Hex(),
		Sequence:  p.sequence,
		EventName: name,
		Timestamp: timestamp,
		Decoded:   payload,
	}
}

func (p *Pool) syncEventLocked(state ReserveState) model.TypedEvent {
	return p.eventLocked(state.LastSyncTimestamp, model.EventSync, model.SyncEventData{
		ReserveA:  state.ReserveA.Dec(),
		ReserveB:  state.ReserveB.Dec(),
		Timestamp: state.LastSyncTimestamp,
	})
}

func (p *Pool) committed(ctx context.Context, state ReserveState, total *uint256.Int, events []model.TypedEvent) {
	p.metrics.RecordReserves(p.label, state.ReserveA, state.ReserveB)
	p.metrics.RecordTotalShares(p.label, total)
	p.emit(ctx, events)
}

// emit hands events to the sink. The operation has already committed, so a
// sink failure is logged and not returned.
func (p *Pool) emit(ctx context.Context, events []model.TypedEvent) {
	if p.events == nil || len(events) == 0 {
		return
	}
	if err := p.events.PutEvents(ctx, events); err != nil {
		p.logger.Warn("event sink failed",
			zap.Uint64("first_sequence", events[0].Sequence),
			zap.Int("events", len(events)),
			zap.Error(err),
		)
	}
}

func (p *Pool) finish(operation string, err error) {
	p.metrics.ObserveOperation(p.label, operation, err)
	if err != nil {
		p.logger.Debug("pool operation rejected", zap.String("operation", operation), zap.Error(err))
		return
	}
	p.logger.Debug("pool operation committed", zap.String("operation", operation))
}
