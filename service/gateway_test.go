package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/adapters/tokenizer"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
)

func newTestGateway(t *testing.T) (*Gateway, string) {
	t.Helper()
	tokens := tokenizer.NewJWTTokenizer([]byte("test-secret"), "test-issuer")
	token, err := tokens.Mint(&core.SessionClaims{
		IdentityID:    "identity-1",
		WalletAddress: "0x52908400098527886e0f7030069857d2e4169ee7",
	}, time.Hour)
	require.NoError(t, err)
	return NewGateway(tokens), token
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		token  string
		err    error
	}{
		{"missing", "", "", core.ErrNoAuthorizationHeader},
		{"basic scheme", "Basic dXNlcjpwYXNz", "", core.ErrInvalidTokenFormat},
		{"no space", "Bearerabc", "", core.ErrInvalidTokenFormat},
		{"empty token", "Bearer ", "", core.ErrNoTokenProvided},
		{"blank token", "Bearer    ", "", core.ErrNoTokenProvided},
		{"ok", "Bearer abc.def.ghi", "abc.def.ghi", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := BearerToken(tt.header)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.token, token)
		})
	}
}

func TestAuthenticateHeader(t *testing.T) {
	g, token := newTestGateway(t)

	claims, err := g.AuthenticateHeader("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "identity-1", claims.IdentityID)

	_, err = g.AuthenticateHeader("Bearer " + token + "x")
	require.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestAuthenticateHandshake(t *testing.T) {
	g, token := newTestGateway(t)

	claims, err := g.AuthenticateHandshake(token, "")
	require.NoError(t, err)
	assert.Equal(t, "identity-1", claims.IdentityID)

	claims, err = g.AuthenticateHandshake("", "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, "identity-1", claims.IdentityID)

	// The handshake field wins over the header
	_, err = g.AuthenticateHandshake("garbage", "Bearer "+token)
	require.ErrorIs(t, err, core.ErrInvalidToken)

	_, err = g.AuthenticateHandshake("", "")
	require.ErrorIs(t, err, core.ErrNoTokenProvided)

	_, err = g.AuthenticateHandshake("", "Basic abc")
	require.ErrorIs(t, err, core.ErrNoTokenProvided)
}
