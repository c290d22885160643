package pool

import (
	"errors"

	"minDex/internal/shares"
)

var (
	ErrAlreadyInitialized = errors.New("pool already initialized")
	ErrForbidden          = errors.New("forbidden")
	ErrIdenticalAssets    = errors.New("identical assets")
	ErrNotInitialized     = errors.New("pool not initialized")
	ErrReentrant          = errors.New("reentrant call")
	ErrOverflow           = errors.New("reserve overflow")

	ErrInsufficientInitialLiquidity = shares.ErrInsufficientInitialLiquidity
	ErrInsufficientLiquidityMinted  = shares.ErrInsufficientLiquidityMinted
	ErrInsufficientLiquidityBurned  = errors.New("insufficient liquidity burned")
	ErrInsufficientOutputAmount     = errors.New("insufficient output amount")
	ErrInsufficientLiquidity        = errors.New("insufficient liquidity")
	ErrInvalidInvariant             = errors.New("invalid invariant")
	ErrInvalidRecipient             = errors.New("invalid recipient")
)
