package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims combines standard claims with wallet-session ones
type SessionClaims struct {
	jwt.RegisteredClaims
	IdentityID    string `json:"identityId"`
	WalletAddress string `json:"walletAddress"`
	Type          string `json:"type"`
}
