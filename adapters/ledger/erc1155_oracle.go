package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/adapters/metrics"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/ports"
)

// DefaultTimeout bounds a single ledger call
const DefaultTimeout = 10 * time.Second

// ERC1155ABI covers the read-only balance functions of an ERC-1155 contract
const ERC1155ABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"balanceOfBatch","stateMutability":"view",
	 "inputs":[{"name":"accounts","type":"address[]"},{"name":"ids","type":"uint256[]"}],
	 "outputs":[{"name":"","type":"uint256[]"}]}
]`

const (
	methodBalanceOf      = "balanceOf"
	methodBalanceOfBatch = "balanceOfBatch"
)

// ERC1155Oracle queries ERC-1155 balances through any ethereum.ContractCaller,
// typically an *ethclient.Client dialled at the configured RPC endpoint.
// It keeps no per-call state, so abandoned calls leave nothing behind.
type ERC1155Oracle struct {
	caller  ethereum.ContractCaller
	abi     abi.ABI
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewERC1155Oracle creates an oracle over caller
func NewERC1155Oracle(caller ethereum.ContractCaller, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) (*ERC1155Oracle, error) {
	parsed, err := abi.JSON(strings.NewReader(ERC1155ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC-1155 ABI: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ERC1155Oracle{
		caller:  caller,
		abi:     parsed,
		timeout: timeout,
		logger:  logger.With("component", "ownership_oracle"),
		metrics: m,
	}, nil
}

var _ ports.OwnershipOracle = (*ERC1155Oracle)(nil)

// VerifyOwnership reports whether wallet holds a positive balance of tokenID
func (o *ERC1155Oracle) VerifyOwnership(ctx context.Context, wallet, contract string, tokenID *big.Int) (*core.OwnershipResult, error) {
	account, target, err := parseAddresses(wallet, contract)
	if err != nil {
		return nil, core.ErrOwnershipQueryFailed.WithMessage(err.Error()).WithCategory(core.CategoryValidation)
	}
	if tokenID == nil || tokenID.Sign() < 0 {
		return nil, core.ErrOwnershipQueryFailed.WithMessage("token id must be a non-negative integer").WithCategory(core.CategoryValidation)
	}

	out, err := o.call(ctx, target, methodBalanceOf, account, tokenID)
	if err != nil {
		o.logger.Warn("balanceOf failed", "contract", contract, "token_id", tokenID.String(), "error", err)
		return nil, core.ErrOwnershipQueryFailed.WithCause(err)
	}

	vals, err := o.abi.Unpack(methodBalanceOf, out)
	if err != nil || len(vals) != 1 {
		return nil, core.ErrOwnershipQueryFailed.WithCause(fmt.Errorf("failed to decode balance: %w", err))
	}
	balance := *abi.ConvertType(vals[0], new(*big.Int)).(**big.Int)

	result := core.NewOwnershipResult(wallet, contract, tokenID, balance)
	return &result, nil
}

// VerifyBatch answers ownership for every id with one balanceOfBatch call.
// Results are in the same order as tokenIDs.
func (o *ERC1155Oracle) VerifyBatch(ctx context.Context, wallet, contract string, tokenIDs []*big.Int) ([]core.OwnershipResult, error) {
	account, target, err := parseAddresses(wallet, contract)
	if err != nil {
		return nil, core.ErrBatchQueryFailed.WithMessage(err.Error()).WithCategory(core.CategoryValidation)
	}
	for _, id := range tokenIDs {
		if id == nil || id.Sign() < 0 {
			return nil, core.ErrBatchQueryFailed.WithMessage("token ids must be non-negative integers").WithCategory(core.CategoryValidation)
		}
	}
	if len(tokenIDs) == 0 {
		return []core.OwnershipResult{}, nil
	}

	accounts := make([]common.Address, len(tokenIDs))
	for i := range accounts {
		accounts[i] = account
	}

	out, err := o.call(ctx, target, methodBalanceOfBatch, accounts, tokenIDs)
	if err != nil {
		o.logger.Warn("balanceOfBatch failed", "contract", contract, "count", len(tokenIDs), "error", err)
		return nil, core.ErrBatchQueryFailed.WithCause(err)
	}

	vals, err := o.abi.Unpack(methodBalanceOfBatch, out)
	if err != nil || len(vals) != 1 {
		return nil, core.ErrBatchQueryFailed.WithCause(fmt.Errorf("failed to decode balances: %w", err))
	}
	balances := *abi.ConvertType(vals[0], new([]*big.Int)).(*[]*big.Int)
	if len(balances) != len(tokenIDs) {
		return nil, core.ErrBatchQueryFailed.WithCause(fmt.Errorf("expected %d balances, got %d", len(tokenIDs), len(balances)))
	}

	results := make([]core.OwnershipResult, len(tokenIDs))
	for i, id := range tokenIDs {
		results[i] = core.NewOwnershipResult(wallet, contract, id, balances[i])
	}
	return results, nil
}

// VerifyTicket is VerifyOwnership phrased for event tickets
func (o *ERC1155Oracle) VerifyTicket(ctx context.Context, wallet, eventContract string, ticketTokenID *big.Int) (*core.TicketResult, error) {
	res, err := o.VerifyOwnership(ctx, wallet, eventContract, ticketTokenID)
	if err != nil {
		e := core.AsError(err)
		return nil, core.ErrTicketQueryFailed.
			WithCategory(e.Category).
			WithMessage(e.Message).
			WithCause(e.Err)
	}
	return &core.TicketResult{
		WalletAddress: res.WalletAddress,
		EventContract: res.ContractAddress,
		TicketTokenID: res.TokenID,
		IsValidTicket: res.Owned,
		TicketBalance: res.Balance,
	}, nil
}

// call packs and executes a read-only call bounded by the oracle timeout
func (o *ERC1155Oracle) call(ctx context.Context, contract common.Address, method string, args ...interface{}) ([]byte, error) {
	data, err := o.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	out, err := o.caller.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	o.metrics.LedgerCall(method, start, err)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	if len(out) == 0 {
		// An address without code answers with empty data
		return nil, fmt.Errorf("%s returned no data; is %s a contract?", method, contract.Hex())
	}
	return out, nil
}

func parseAddresses(wallet, contract string) (common.Address, common.Address, error) {
	if !core.IsValidAddress(wallet) {
		return common.Address{}, common.Address{}, fmt.Errorf("invalid wallet address %q", wallet)
	}
	if !core.IsValidAddress(contract) {
		return common.Address{}, common.Address{}, fmt.Errorf("invalid contract address %q", contract)
	}
	return common.HexToAddress(wallet), common.HexToAddress(contract), nil
}
