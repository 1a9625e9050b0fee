package core

import (
	"fmt"
	"math/big"
	"time"
)

// CredentialTypeWallet tags session credentials minted after a wallet login
const CredentialTypeWallet = "wallet"

// NonceChallenge represents a single-use login challenge for one address
type NonceChallenge struct {
	Address   string    // Canonical address the challenge was issued to
	Nonce     string    // Random value embedded in the signed message
	IssuedAt  time.Time // When the challenge was created
	ExpiresAt time.Time // When the challenge stops being accepted
}

// Expired reports whether the challenge is no longer usable at now
func (c *NonceChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// SessionClaims is the payload carried by a session credential
type SessionClaims struct {
	IdentityID    string    // Internal id of the resolved identity
	WalletAddress string    // Canonical wallet address
	Type          string    // Credential type tag
	IssuedAt      time.Time // When the credential was minted
	ExpiresAt     time.Time // When the credential stops being accepted
}

// Identity is the durable record a wallet address resolves to
type Identity struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"walletAddress"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NewWalletIdentity builds the placeholder identity for a first-time wallet login.
// Contact fields are derived from the full canonical address so they stay unique.
func NewWalletIdentity(id, address string, now time.Time) *Identity {
	address = CanonicalAddress(address)
	short := address
	if len(short) > 8 {
		short = short[:8]
	}
	return &Identity{
		ID:            id,
		WalletAddress: address,
		Name:          "User_" + short,
		Email:         address + "@wallet.local",
		CreatedAt:     now,
	}
}

// OwnershipResult is the outcome of one balance query
type OwnershipResult struct {
	WalletAddress   string
	ContractAddress string
	TokenID         *big.Int
	Balance         *big.Int
	Owned           bool
}

// NewOwnershipResult derives the owned flag from the raw balance
func NewOwnershipResult(wallet, contract string, tokenID, balance *big.Int) OwnershipResult {
	if balance == nil {
		balance = new(big.Int)
	}
	return OwnershipResult{
		WalletAddress:   CanonicalAddress(wallet),
		ContractAddress: CanonicalAddress(contract),
		TokenID:         tokenID,
		Balance:         balance,
		Owned:           balance.Sign() > 0,
	}
}

// TicketResult is the ticket-flavoured view of an ownership query
type TicketResult struct {
	WalletAddress string
	EventContract string
	TicketTokenID *big.Int
	IsValidTicket bool
	TicketBalance *big.Int
}

// ConnectionEvent describes a long-lived connection being admitted or closed
type ConnectionEvent struct {
	IdentityID    string    `json:"identityId"`
	WalletAddress string    `json:"walletAddress"`
	ConnectionID  string    `json:"connectionId"`
	State         string    `json:"state"`
	Reason        string    `json:"reason,omitempty"`
	At            time.Time `json:"at"`
}

const (
	ConnectionOpened = "opened"
	ConnectionClosed = "closed"
)

// SignMessage is the exact text a wallet signs to answer a challenge
func SignMessage(nonce string) string {
	return fmt.Sprintf("Sign this message to authenticate with NFT Ticketing.\n\nNonce: %s", nonce)
}
