package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/ports"
)

// DefaultIssuer is used when no issuer is configured
const DefaultIssuer = "nft-ticketing"

// JWTTokenizer implements the Tokenizer interface using HS256 JWTs.
// It holds no mutable state and is safe for concurrent use.
type JWTTokenizer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Option configures a JWTTokenizer
type Option func(*JWTTokenizer)

// WithClock overrides the time source used for issuing and validating
func WithClock(now func() time.Time) Option {
	return func(j *JWTTokenizer) { j.now = now }
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(secret []byte, issuer string, opts ...Option) ports.Tokenizer {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	j := &JWTTokenizer{
		secret: append([]byte(nil), secret...),
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Mint signs claims into a credential that expires ttl from now
func (j *JWTTokenizer) Mint(claims *core.SessionClaims, ttl time.Duration) (string, error) {
	now := j.now()
	typ := claims.Type
	if typ == "" {
		typ = core.CredentialTypeWallet
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.IdentityID,
			Issuer:    j.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		IdentityID:    claims.IdentityID,
		WalletAddress: core.CanonicalAddress(claims.WalletAddress),
		Type:          typ,
	})

	signedToken, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// Verify checks signature, algorithm, issuer and expiry
func (j *JWTTokenizer) Verify(tokenStr string) (*core.SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	if !token.Valid {
		return nil, core.ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || claims.WalletAddress == "" {
		return nil, core.ErrInvalidToken
	}

	return toCore(claims), nil
}

// Decode reads the claims without verifying the signature
func (j *JWTTokenizer) Decode(tokenStr string) (*core.SessionClaims, bool) {
	claims := &SessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, false
	}
	return toCore(claims), true
}

// classify maps jwt parse errors onto credential error kinds
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return core.ErrTokenExpired.WithCause(err)
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return core.ErrTokenVerificationFailed.WithCause(err)
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return core.ErrInvalidToken.WithCause(err)
	default:
		return core.ErrTokenVerificationFailed.WithCause(err)
	}
}

func toCore(claims *SessionClaims) *core.SessionClaims {
	out := &core.SessionClaims{
		IdentityID:    claims.IdentityID,
		WalletAddress: claims.WalletAddress,
		Type:          claims.Type,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out
}
