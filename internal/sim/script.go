package sim

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Script operations.
const (
	OpInitialize     = "initialize"
	OpFund           = "fund"
	OpDeposit        = "deposit"
	OpSupply         = "supply"
	OpTransferShares = "transfer_shares"
	OpWithdraw       = "withdraw"
	OpSwap           = "swap"
	OpResync         = "resync"
	OpSkim           = "skim"
	OpAdvance        = "advance"
)

var knownOps = map[string]struct{}{
	OpInitialize: {}, OpFund: {}, OpDeposit: {}, OpSupply: {}, OpTransferShares: {},
	OpWithdraw: {}, OpSwap: {}, OpResync: {}, OpSkim: {}, OpAdvance: {},
}

// Step is one line of a simulation script. Amounts are decimal integers and
// may use an exponent, e.g. "1.5e18". For swap, AmountA and AmountB are the
// requested outputs.
type Step struct {
	Op          string `json:"op"`
	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
	Asset       string `json:"asset,omitempty"`
	Amount      string `json:"amount,omitempty"`
	AmountA     string `json:"amount_a,omitempty"`
	AmountB     string `json:"amount_b,omitempty"`
	Seconds     uint32 `json:"seconds,omitempty"`
	ExpectError string `json:"expect_error,omitempty"`
}

// ReadScriptFile loads a JSONL script from disk.
func ReadScriptFile(path string) ([]Step, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	return ReadScript(f)
}

// ReadScript parses one step per line. Blank lines and lines starting with
// '#' are skipped.
func ReadScript(r io.Reader) ([]Step, error) {
	var steps []Step
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var step Step
		if err := json.Unmarshal([]byte(line), &step); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		step.Op = strings.ToLower(strings.TrimSpace(step.Op))
		if _, ok := knownOps[step.Op]; !ok {
			return nil, fmt.Errorf("line %d: unknown op %q", lineNo, step.Op)
		}
		steps = append(steps, step)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return steps, nil
}

// ParseAmount parses a non-negative integer amount. Empty means zero.
func ParseAmount(input string) (*uint256.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return new(uint256.Int), nil
	}
	rat, ok := new(big.Rat).SetString(input)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", input)
	}
	if !rat.IsInt() || rat.Sign() < 0 {
		return nil, fmt.Errorf("amount must be a non-negative integer: %s", input)
	}
	v, overflow := uint256.FromBig(rat.Num())
	if overflow {
		return nil, fmt.Errorf("amount exceeds 256 bits: %s", input)
	}
	return v, nil
}

// ResolveActor maps a hex address to itself and any other label to an
// address derived from its keccak hash, so scripts can name participants.
func ResolveActor(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return common.Address{}, fmt.Errorf("empty actor")
	}
	if common.IsHexAddress(input) {
		return common.HexToAddress(input), nil
	}
	if strings.HasPrefix(input, "0x") {
		return common.Address{}, fmt.Errorf("invalid address: %s", input)
	}
	return common.BytesToAddress(crypto.Keccak256([]byte(strings.ToLower(input)))[12:]), nil
}
