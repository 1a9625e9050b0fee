package ports

import (
	"context"
	"math/big"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
)

// OwnershipOracle answers balance-based ownership questions against a ledger
type OwnershipOracle interface {
	VerifyOwnership(ctx context.Context, wallet, contract string, tokenID *big.Int) (*core.OwnershipResult, error)
	VerifyBatch(ctx context.Context, wallet, contract string, tokenIDs []*big.Int) ([]core.OwnershipResult, error)
	VerifyTicket(ctx context.Context, wallet, eventContract string, ticketTokenID *big.Int) (*core.TicketResult, error)
}
