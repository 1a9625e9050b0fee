package service

import (
	"strings"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/ports"
)

const bearerPrefix = "Bearer "

// Gateway turns inbound credentials into verified session claims. It is
// shared by the HTTP middleware and the connection handshake so both
// surfaces verify the same way without a session store.
type Gateway struct {
	tokenizer ports.Tokenizer
}

// NewGateway creates a new gateway
func NewGateway(tokenizer ports.Tokenizer) *Gateway {
	return &Gateway{tokenizer: tokenizer}
}

// BearerToken extracts the credential from an Authorization header value
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", core.ErrNoAuthorizationHeader
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", core.ErrInvalidTokenFormat
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", core.ErrNoTokenProvided
	}
	return token, nil
}

// AuthenticateHeader verifies the bearer credential in an Authorization header
func (g *Gateway) AuthenticateHeader(header string) (*core.SessionClaims, error) {
	token, err := BearerToken(header)
	if err != nil {
		return nil, err
	}
	return g.tokenizer.Verify(token)
}

// AuthenticateHandshake verifies the credential offered when a long-lived
// connection is opened. The handshake token field wins over the header.
func (g *Gateway) AuthenticateHandshake(token, header string) (*core.SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" && strings.HasPrefix(header, bearerPrefix) {
		token = strings.TrimSpace(header[len(bearerPrefix):])
	}
	if token == "" {
		return nil, core.ErrNoTokenProvided
	}
	return g.tokenizer.Verify(token)
}
