// Package sim replays JSONL scripts of pool operations against an in-memory
// pool backed by in-memory asset ledgers.
package sim

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"minDex/internal/asset"
	"minDex/internal/metrics"
	"minDex/internal/model"
	"minDex/internal/pool"
	"minDex/internal/storage"
)

// RunConfig holds runtime settings for a simulation.
type RunConfig struct {
	PoolAddress common.Address
	Factory     common.Address
	AssetA      common.Address
	AssetB      common.Address
	StartTime   time.Time
	// FailFast stops the run at the first unexpected rejection.
	FailFast bool
}

// Summary reports the outcome of a run.
type Summary struct {
	Steps     int
	Committed int
	Rejected  int
	Snapshot  model.PoolSnapshot
	// Balances maps asset symbol to holder to amount.
	Balances map[string]map[string]string
}

// Runner executes script steps in order.
type Runner struct {
	cfg     RunConfig
	pool    *pool.Pool
	ledgerA *asset.MemLedger
	ledgerB *asset.MemLedger
	state   storage.StateStore
	logger  *zap.Logger
	now     time.Time
	poolCfg pool.Config
}

// NewRunner builds a Runner with a fresh pool. events and state may be nil.
func NewRunner(cfg RunConfig, events storage.EventSink, state storage.StateStore, poolMetrics *metrics.PoolMetrics, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now().UTC().Truncate(time.Second)
	}

	r := &Runner{
		cfg:     cfg,
		ledgerA: asset.NewMemLedger("A"),
		ledgerB: asset.NewMemLedger("B"),
		state:   state,
		logger:  logger,
		now:     cfg.StartTime,
	}

	poolCfg := pool.Config{
		Address: cfg.PoolAddress,
		Factory: cfg.Factory,
		Assets:  asset.Registry{cfg.AssetA: r.ledgerA, cfg.AssetB: r.ledgerB},
		Now:     func() time.Time { return r.now },
		Logger:  logger,
		Metrics: poolMetrics,
	}
	if events != nil {
		poolCfg.Events = events
	}
	p, err := pool.New(poolCfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}
	r.pool = p
	r.poolCfg = poolCfg
	return r, nil
}

// Resume rebuilds the pool from the state store's snapshot and reports
// whether one was found. Call it before Run. Asset ledgers are not part of
// the snapshot: the pool's own balances are seeded with the restored
// reserves and every other holder starts empty.
func (r *Runner) Resume(ctx context.Context) (bool, error) {
	if r.state == nil {
		return false, nil
	}
	snap, ok, err := r.state.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		return false, nil
	}

	for _, seed := range []struct {
		ledger  *asset.MemLedger
		reserve string
	}{
		{r.ledgerA, snap.ReserveA},
		{r.ledgerB, snap.ReserveB},
	} {
		amount, err := ParseAmount(seed.reserve)
		if err != nil {
			return false, fmt.Errorf("snapshot reserve %s: %w", seed.ledger.Symbol(), err)
		}
		if err := seed.ledger.Mint(r.cfg.PoolAddress, amount); err != nil {
			return false, err
		}
	}
	p, err := pool.Restore(ctx, r.poolCfg, snap)
	if err != nil {
		return false, err
	}
	r.pool = p

	// the clock never runs behind the restored sync point
	if last := time.Unix(int64(snap.LastSyncTimestamp), 0); last.After(r.now) {
		r.now = last
	}
	r.logger.Info("pool resumed",
		zap.Uint64("sequence", snap.Sequence),
		zap.String("reserve_a", snap.ReserveA),
		zap.String("reserve_b", snap.ReserveB),
		zap.Uint32("last_sync", snap.LastSyncTimestamp),
	)
	return true, nil
}

// Pool exposes the simulated pool.
func (r *Runner) Pool() *pool.Pool {
	return r.pool
}

// Run executes steps in order. A step whose outcome contradicts its
// expect_error field aborts the run.
func (r *Runner) Run(ctx context.Context, steps []Step) (Summary, error) {
	summary := Summary{}
	// a run that stops after executing steps still saves what committed
	fail := func(err error) (Summary, error) {
		if summary.Steps == 0 {
			return summary, err
		}
		if saveErr := r.persist(context.WithoutCancel(ctx), &summary); saveErr != nil {
			r.logger.Warn("save snapshot of failed run", zap.Error(saveErr))
		}
		return summary, err
	}
	for i, step := range steps {
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		default:
		}

		exec, err := r.prepare(step)
		if err != nil {
			return fail(fmt.Errorf("step %d (%s): %w", i+1, step.Op, err))
		}
		summary.Steps++
		opErr := exec(ctx)

		switch {
		case step.ExpectError != "" && opErr == nil:
			return fail(fmt.Errorf("step %d (%s): expected error containing %q", i+1, step.Op, step.ExpectError))
		case step.ExpectError != "" && !strings.Contains(opErr.Error(), step.ExpectError):
			return fail(fmt.Errorf("step %d (%s): expected error containing %q, got %w", i+1, step.Op, step.ExpectError, opErr))
		case opErr != nil:
			summary.Rejected++
			if step.ExpectError == "" {
				r.logger.Warn("step rejected", zap.Int("step", i+1), zap.String("op", step.Op), zap.Error(opErr))
				if r.cfg.FailFast {
					return fail(fmt.Errorf("step %d (%s): %w", i+1, step.Op, opErr))
				}
			}
		default:
			summary.Committed++
		}
	}

	if err := r.persist(ctx, &summary); err != nil {
		return summary, err
	}

	r.logger.Info("simulation complete",
		zap.Int("steps", summary.Steps),
		zap.Int("committed", summary.Committed),
		zap.Int("rejected", summary.Rejected),
	)
	return summary, nil
}

// persist fills the final state into summary and saves the snapshot.
func (r *Runner) persist(ctx context.Context, summary *Summary) error {
	summary.Snapshot = r.pool.Snapshot()
	summary.Balances = map[string]map[string]string{
		r.ledgerA.Symbol(): renderBalances(r.ledgerA.Balances()),
		r.ledgerB.Symbol(): renderBalances(r.ledgerB.Balances()),
	}
	if r.state == nil {
		return nil
	}
	if err := r.state.Save(ctx, summary.Snapshot); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// prepare resolves a step's inputs. Malformed input is a script error, not a
// pool rejection.
func (r *Runner) prepare(step Step) (func(context.Context) error, error) {
	switch step.Op {
	case OpInitialize:
		caller := r.cfg.Factory
		if step.From != "" {
			var err error
			if caller, err = r.actor(step.From); err != nil {
				return nil, err
			}
		}
		return func(ctx context.Context) error {
			return r.pool.Initialize(ctx, caller, r.cfg.AssetA, r.cfg.AssetB)
		}, nil

	case OpFund:
		to, err := r.actor(step.To)
		if err != nil {
			return nil, err
		}
		ledger, err := r.ledger(step.Asset)
		if err != nil {
			return nil, err
		}
		amount, err := ParseAmount(step.Amount)
		if err != nil {
			return nil, err
		}
		return func(context.Context) error {
			return ledger.Mint(to, amount)
		}, nil

	case OpDeposit:
		from, err := r.actor(step.From)
		if err != nil {
			return nil, err
		}
		amountA, amountB, err := parsePair(step)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			return r.deposit(ctx, from, amountA, amountB)
		}, nil

	case OpSupply:
		to, err := r.actor(step.To)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			granted, err := r.pool.SupplyLiquidity(ctx, to)
			if err == nil {
				r.logger.Debug("shares granted", zap.String("to", to.Hex()), zap.String("shares", granted.Dec()))
			}
			return err
		}, nil

	case OpTransferShares:
		from, err := r.actor(step.From)
		if err != nil {
			return nil, err
		}
		to, err := r.actor(step.To)
		if err != nil {
			return nil, err
		}
		amount, err := r.shareAmount(step.Amount, from)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			return r.pool.TransferShares(ctx, from, to, amount())
		}, nil

	case OpWithdraw:
		to, err := r.actor(step.To)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			_, _, err := r.pool.WithdrawLiquidity(ctx, to)
			return err
		}, nil

	case OpSwap:
		to, err := r.actor(step.To)
		if err != nil {
			return nil, err
		}
		outA, outB, err := parsePair(step)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			return r.pool.Swap(ctx, outA, outB, to)
		}, nil

	case OpResync:
		return r.pool.Resync, nil

	case OpSkim:
		to, err := r.actor(step.To)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			return r.pool.Skim(ctx, to)
		}, nil

	case OpAdvance:
		if step.Seconds == 0 {
			return nil, fmt.Errorf("advance needs seconds")
		}
		seconds := step.Seconds
		return func(context.Context) error {
			r.now = r.now.Add(time.Duration(seconds) * time.Second)
			return nil
		}, nil
	}
	return nil, fmt.Errorf("unknown op %q", step.Op)
}

func (r *Runner) deposit(ctx context.Context, from common.Address, amountA, amountB *uint256.Int) error {
	if !amountA.IsZero() {
		if err := r.ledgerA.Transfer(ctx, from, r.cfg.PoolAddress, amountA); err != nil {
			return fmt.Errorf("deposit a: %w", err)
		}
	}
	if !amountB.IsZero() {
		if err := r.ledgerB.Transfer(ctx, from, r.cfg.PoolAddress, amountB); err != nil {
			return fmt.Errorf("deposit b: %w", err)
		}
	}
	return nil
}

// shareAmount returns the requested amount, or the holder's full balance at
// execution time when the amount is "all".
func (r *Runner) shareAmount(input string, holder common.Address) (func() *uint256.Int, error) {
	if strings.EqualFold(strings.TrimSpace(input), "all") {
		return func() *uint256.Int { return r.pool.ShareBalance(holder) }, nil
	}
	amount, err := ParseAmount(input)
	if err != nil {
		return nil, err
	}
	return func() *uint256.Int { return amount }, nil
}

func (r *Runner) actor(input string) (common.Address, error) {
	if strings.EqualFold(strings.TrimSpace(input), "pool") {
		return r.cfg.PoolAddress, nil
	}
	return ResolveActor(input)
}

func (r *Runner) ledger(name string) (*asset.MemLedger, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "a":
		return r.ledgerA, nil
	case "b":
		return r.ledgerB, nil
	}
	return nil, fmt.Errorf("unknown asset %q, want a or b", name)
}

func parsePair(step Step) (*uint256.Int, *uint256.Int, error) {
	a, err := ParseAmount(step.AmountA)
	if err != nil {
		return nil, nil, fmt.Errorf("amount_a: %w", err)
	}
	b, err := ParseAmount(step.AmountB)
	if err != nil {
		return nil, nil, fmt.Errorf("amount_b: %w", err)
	}
	return a, b, nil
}

func renderBalances(balances map[common.Address]*uint256.Int) map[string]string {
	out := make(map[string]string, len(balances))
	for holder, amount := range balances {
		out[holder.Hex()] = amount.Dec()
	}
	return out
}
