package ports

import (
	"context"
	"errors"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
)

// ErrNotFound is returned by stores when a requested record does not exist
var ErrNotFound = errors.New("not found")

// NonceStore keeps at most one live login challenge per canonical address
type NonceStore interface {
	// Issue creates a fresh challenge, replacing any previous one for the address
	Issue(ctx context.Context, address string) (*core.NonceChallenge, error)

	// Peek returns the live nonce, purging it when expired
	Peek(ctx context.Context, address string) (string, bool, error)

	// Consume removes the challenge unconditionally
	Consume(ctx context.Context, address string) error

	// Take atomically consumes the challenge only if its live value equals nonce
	Take(ctx context.Context, address, nonce string) (bool, error)
}

// IdentityStore persists identities keyed by canonical wallet address
type IdentityStore interface {
	// FindOrCreate returns the stored identity for candidate.WalletAddress,
	// inserting candidate when none exists. created reports whether the
	// returned record is candidate itself.
	FindOrCreate(ctx context.Context, candidate *core.Identity) (identity *core.Identity, created bool, err error)

	FindByID(ctx context.Context, id string) (*core.Identity, error)
	FindByAddress(ctx context.Context, address string) (*core.Identity, error)
}
