package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"minDex/internal/chain"
	"minDex/internal/config"
	"minDex/internal/dex"
	"minDex/internal/model"
	"minDex/internal/oracle"
	"minDex/internal/storage/postgres"
)

type pairSample struct {
	block uint64
	time  uint64
	state model.PairState
	obs   oracle.Observation
}

func runTwap(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadTwap(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	pair, err := parseAddress("pair", cfg.Pair)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	var chainID *big.Int
	if err := chain.WithRetry(ctx, cfg.MaxRetries, cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		chainID, err = chainClient.GetChainID(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}

	sampler := &twapSampler{cfg: cfg, client: chainClient, pair: pair, logger: logger}

	var first, last pairSample
	if cfg.FromBlock > 0 {
		to := cfg.ToBlock
		if to == 0 {
			if to, err = sampler.latest(ctx); err != nil {
				return err
			}
		}
		if first, err = sampler.sample(ctx, cfg.FromBlock); err != nil {
			return err
		}
		if last, err = sampler.sample(ctx, to); err != nil {
			return err
		}
	} else {
		block, err := sampler.latest(ctx)
		if err != nil {
			return err
		}
		if first, err = sampler.sample(ctx, block); err != nil {
			return err
		}
		logger.Info("waiting for second sample", zap.Duration("interval", cfg.Interval))
		timer := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if block, err = sampler.latest(ctx); err != nil {
			return err
		}
		if last, err = sampler.sample(ctx, block); err != nil {
			return err
		}
	}

	avg, err := oracle.Consult(first.obs, last.obs, oracle.PairCumulativeBits)
	if err != nil {
		return fmt.Errorf("blocks %d and %d: %w", first.block, last.block, err)
	}

	tokens := dex.NewTokenMetaCache()
	token0 := dex.ResolveTokenMeta(ctx, chainClient, common.HexToAddress(last.state.Token0), tokens, logger)
	token1 := dex.ResolveTokenMeta(ctx, chainClient, common.HexToAddress(last.state.Token1), tokens, logger)

	window := model.TWAPWindow{
		ChainID:       chainID.Uint64(),
		PairAddress:   pair.Hex(),
		WindowStart:   time.Unix(int64(first.time), 0).UTC(),
		WindowEnd:     time.Unix(int64(last.time), 0).UTC(),
		ElapsedSecs:   avg.Elapsed,
		Price0:        avg.PriceA.Dec(),
		Price1:        avg.PriceB.Dec(),
		Price0Decimal: oracle.DecimalPrice(avg.PriceA, token0.Decimals, token1.Decimals, cfg.Precision),
		Price1Decimal: oracle.DecimalPrice(avg.PriceB, token1.Decimals, token0.Decimals, cfg.Precision),
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "pair %s blocks %d..%d (%ds)\n", window.PairAddress, first.block, last.block, window.ElapsedSecs)
	fmt.Fprintf(out, "  1 %s = %s %s\n", symbolOr(token0), window.Price0Decimal, symbolOr(token1))
	fmt.Fprintf(out, "  1 %s = %s %s\n", symbolOr(token1), window.Price1Decimal, symbolOr(token0))

	if cfg.PGDSN == "" {
		return nil
	}
	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if err := store.UpsertTWAPWindows(ctx, []model.TWAPWindow{window}); err != nil {
		return fmt.Errorf("store twap window: %w", err)
	}
	logger.Info("twap window stored", zap.String("pair", window.PairAddress), zap.Time("window_start", window.WindowStart))
	return nil
}

type twapSampler struct {
	cfg    config.TwapConfig
	client *chain.Client
	pair   common.Address
	logger *zap.Logger
}

func (s *twapSampler) latest(ctx context.Context) (uint64, error) {
	var block uint64
	err := chain.WithRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		block, err = s.client.LatestBlockNumber(ctx)
		if err != nil {
			s.logger.Warn("latest block fetch failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get latest block: %w", err)
	}
	return block, nil
}

func (s *twapSampler) sample(ctx context.Context, block uint64) (pairSample, error) {
	out := pairSample{block: block}
	err := chain.WithRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		ts, err := s.client.BlockTimestamp(ctx, block)
		if err != nil {
			s.logger.Warn("block timestamp fetch failed", zap.Uint64("block_number", block), zap.Error(err))
			return err
		}
		state, err := dex.FetchPairState(ctx, s.client, s.pair, new(big.Int).SetUint64(block))
		if err != nil {
			s.logger.Warn("pair state fetch failed", zap.Uint64("block_number", block), zap.Error(err))
			return err
		}
		out.time = ts
		out.state = state
		return nil
	})
	if err != nil {
		return pairSample{}, fmt.Errorf("sample block %d: %w", block, err)
	}
	out.state.BlockTimestamp = out.time

	obs, err := oracle.ObservePair(out.state, out.time)
	if err != nil {
		return pairSample{}, err
	}
	out.obs = obs
	s.logger.Debug("pair sampled",
		zap.Uint64("block_number", block),
		zap.String("reserve0", out.state.Reserve0),
		zap.String("reserve1", out.state.Reserve1),
	)
	return out, nil
}

func symbolOr(meta model.TokenMeta) string {
	if meta.Symbol != "" {
		return meta.Symbol
	}
	return meta.Address
}
