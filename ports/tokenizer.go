package ports

import (
	"time"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
)

// Tokenizer mints and verifies stateless session credentials
type Tokenizer interface {
	Mint(claims *core.SessionClaims, ttl time.Duration) (string, error)
	Verify(token string) (*core.SessionClaims, error)

	// Decode reads claims without checking the signature. Never use the
	// result for an authorization decision.
	Decode(token string) (*core.SessionClaims, bool)
}

// SignatureVerifier recovers the signer of a personal message
type SignatureVerifier interface {
	// Verify returns the canonical recovered address when it equals claimedAddress
	Verify(message []byte, signature string, claimedAddress string) (string, error)
}
