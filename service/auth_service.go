package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/adapters/metrics"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/ports"
)

// DefaultSessionTTL matches the 7 day credential lifetime of the mobile clients
const DefaultSessionTTL = 7 * 24 * time.Hour

// LoginResult is what a successful signature verification yields
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Identity  *core.Identity
}

// AuthService handles the wallet challenge/login flow
type AuthService struct {
	nonces     ports.NonceStore
	verifier   ports.SignatureVerifier
	tokenizer  ports.Tokenizer
	resolver   *IdentityResolver
	identities ports.IdentityStore
	eventPub   ports.EventPublisher

	sessionTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures an AuthService
type Option func(*AuthService)

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *AuthService) { s.sessionTTL = ttl }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *AuthService) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *AuthService) { s.metrics = m }
}

// WithEventPublisher sets where login events go; nil disables publishing
func WithEventPublisher(p ports.EventPublisher) Option {
	return func(s *AuthService) { s.eventPub = p }
}

// NewAuthService creates a new authentication service
func NewAuthService(
	nonces ports.NonceStore,
	verifier ports.SignatureVerifier,
	tokenizer ports.Tokenizer,
	resolver *IdentityResolver,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		nonces:     nonces,
		verifier:   verifier,
		tokenizer:  tokenizer,
		resolver:   resolver,
		identities: resolver.Store(),
		sessionTTL: DefaultSessionTTL,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "auth_service")
	return s
}

// RequestNonce issues a fresh challenge for wallet and returns it with the text to sign
func (s *AuthService) RequestNonce(ctx context.Context, wallet string) (*core.NonceChallenge, string, error) {
	if wallet == "" {
		return nil, "", core.ErrWalletAddressRequired
	}
	if !core.IsValidAddress(wallet) {
		return nil, "", core.ErrInvalidWalletAddress
	}

	challenge, err := s.nonces.Issue(ctx, wallet)
	if err != nil {
		s.logger.Error("failed to issue nonce", "address", core.CanonicalAddress(wallet), "error", err)
		return nil, "", core.ErrNonceGenerationFailed.WithCause(err)
	}

	s.metrics.NonceIssued()
	return challenge, core.SignMessage(challenge.Nonce), nil
}

// Login verifies a signed challenge and mints a session credential.
//
// The challenge is consumed as soon as the presented nonce matches the live
// one, before the signature is checked, so a failed attempt forces the client
// to request a new challenge. A nonce that does not match is left in place.
func (s *AuthService) Login(ctx context.Context, wallet, signature, nonce string) (*LoginResult, error) {
	result, err := s.login(ctx, wallet, signature, nonce)
	if err != nil {
		s.metrics.LoginAttempt(string(core.KindOf(err)))
		return nil, err
	}
	s.metrics.LoginAttempt("success")
	return result, nil
}

func (s *AuthService) login(ctx context.Context, wallet, signature, nonce string) (*LoginResult, error) {
	if wallet == "" || signature == "" || nonce == "" {
		return nil, core.ErrMissingParameters
	}
	address := core.CanonicalAddress(wallet)

	taken, err := s.nonces.Take(ctx, address, nonce)
	if err != nil {
		s.logger.Error("failed to read nonce", "address", address, "error", err)
		return nil, core.ErrInternal.WithCause(err)
	}
	if !taken {
		return nil, core.ErrInvalidOrExpiredNonce
	}

	recovered, err := s.verifier.Verify([]byte(core.SignMessage(nonce)), signature, address)
	if err != nil {
		s.logger.Info("signature verification failed", "address", address, "kind", core.KindOf(err))
		return nil, err
	}

	identity, err := s.resolver.Resolve(ctx, recovered)
	if err != nil {
		return nil, err
	}

	now := s.now()
	token, err := s.tokenizer.Mint(&core.SessionClaims{
		IdentityID:    identity.ID,
		WalletAddress: identity.WalletAddress,
		Type:          core.CredentialTypeWallet,
	}, s.sessionTTL)
	if err != nil {
		s.logger.Error("failed to mint session", "address", address, "error", err)
		return nil, core.ErrInternal.WithCause(err)
	}

	if s.eventPub != nil {
		if err := s.eventPub.PublishLogin(ctx, identity); err != nil {
			// The credential is already minted; publishing is best effort
			s.logger.Warn("failed to publish login event", "address", address, "error", err)
		}
	}

	s.logger.Info("wallet login", "address", address, "identity_id", identity.ID)
	return &LoginResult{
		Token:     token,
		ExpiresAt: now.Add(s.sessionTTL),
		Identity:  identity,
	}, nil
}

// CurrentIdentity loads the identity a verified credential refers to
func (s *AuthService) CurrentIdentity(ctx context.Context, claims *core.SessionClaims) (*core.Identity, error) {
	var (
		identity *core.Identity
		err      error
	)
	if claims.IdentityID != "" {
		identity, err = s.identities.FindByID(ctx, claims.IdentityID)
	} else {
		identity, err = s.identities.FindByAddress(ctx, claims.WalletAddress)
	}
	if errors.Is(err, ports.ErrNotFound) {
		return nil, core.ErrUserNotFound
	}
	if err != nil {
		s.logger.Error("failed to load identity", "identity_id", claims.IdentityID, "error", err)
		return nil, core.ErrInternal.WithCause(err)
	}
	return identity, nil
}
