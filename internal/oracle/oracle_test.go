package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"minDex/internal/asset"
	"minDex/internal/model"
	"minDex/internal/pool"
	"minDex/internal/uq112"
)

var (
	pairAddr = common.HexToAddress("0x9000000000000000000000000000000000000009")
	factory  = common.HexToAddress("0x8000000000000000000000000000000000000008")
	tokenA   = common.HexToAddress("0xa000000000000000000000000000000000000001")
	tokenB   = common.HexToAddress("0xb000000000000000000000000000000000000002")
	lp       = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func TestConsultPoolWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	ledgerA, ledgerB := asset.NewMemLedger("A"), asset.NewMemLedger("B")
	require.NoError(t, ledgerA.Mint(lp, uint256.NewInt(1_000_000)))
	require.NoError(t, ledgerB.Mint(lp, uint256.NewInt(1_000_000)))

	p, err := pool.New(pool.Config{
		Address: pairAddr,
		Factory: factory,
		Assets:  asset.Registry{tokenA: ledgerA, tokenB: ledgerB},
		Now:     func() time.Time { return now },
	})
	require.NoError(t, err)
	require.NoError(t, p.Initialize(ctx, factory, tokenA, tokenB))

	require.NoError(t, ledgerA.Transfer(ctx, lp, pairAddr, uint256.NewInt(10_000)))
	require.NoError(t, ledgerB.Transfer(ctx, lp, pairAddr, uint256.NewInt(40_000)))
	_, err = p.SupplyLiquidity(ctx, lp)
	require.NoError(t, err)

	start := ObservePool(p, now)
	end := ObservePool(p, now.Add(90*time.Second))

	avg, err := Consult(start, end, uq112.CumulativeBits)
	require.NoError(t, err)
	require.Equal(t, uint32(90), avg.Elapsed)
	require.Equal(t, new(uint256.Int).Mul(uq112.Encode(uint256.NewInt(1)), uint256.NewInt(4)), avg.PriceA)
	require.Equal(t, "0.250000", DecimalPrice(avg.PriceB, 18, 18, 6))

	_, err = Consult(start, start, uq112.CumulativeBits)
	require.True(t, errors.Is(err, ErrZeroElapsed))
}

func TestObservePairExtendsAcrossWrap(t *testing.T) {
	// the stored accumulator sits just below 2^256
	max := new(uint256.Int).SetAllOne()
	start := model.PairState{
		Address:              pairAddr.Hex(),
		Reserve0:             "1000",
		Reserve1:             "2000",
		BlockTimestampLast:   100,
		Price0CumulativeLast: max.Dec(),
		Price1CumulativeLast: "0",
	}
	older, err := ObservePair(start, 100)
	require.NoError(t, err)
	require.Equal(t, max, older.PriceACumulative)

	newer, err := ObservePair(start, 160)
	require.NoError(t, err)

	avg, err := Consult(older, newer, PairCumulativeBits)
	require.NoError(t, err)
	require.Equal(t, uint32(60), avg.Elapsed)
	require.Equal(t, "2.000", DecimalPrice(avg.PriceA, 18, 18, 3))
	require.Equal(t, "0.500", DecimalPrice(avg.PriceB, 18, 18, 3))
}

func TestObservePairRejectsGarbage(t *testing.T) {
	_, err := ObservePair(model.PairState{Reserve0: "x", Reserve1: "1", Price0CumulativeLast: "0", Price1CumulativeLast: "0"}, 1)
	require.Error(t, err)
}

func TestDecimalPriceScalesByDecimals(t *testing.T) {
	// 1 raw unit of an 18-decimal base buys 2e-12 raw units of a 6-decimal quote
	price, err := uq112.Ratio(uint256.NewInt(2), uint256.NewInt(1_000_000_000_000))
	require.NoError(t, err)
	require.Equal(t, "2.00", DecimalPrice(price, 18, 6, 2))
	require.Equal(t, "0.00", DecimalPrice(price, 6, 18, 2))
}
