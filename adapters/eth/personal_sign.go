package eth

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/ports"
)

// PersonalSignVerifier verifies EIP-191 personal_sign signatures
type PersonalSignVerifier struct{}

// NewPersonalSignVerifier creates a new personal message verifier
func NewPersonalSignVerifier() ports.SignatureVerifier {
	return PersonalSignVerifier{}
}

// Recover derives the canonical signer address of message
func (PersonalSignVerifier) Recover(message []byte, signatureStr string) (string, error) {
	decodedSig, err := hexutil.Decode(signatureStr)
	if err != nil {
		return "", core.ErrVerificationFailed.WithCause(fmt.Errorf("failed to decode signature: %w", err))
	}
	if len(decodedSig) != crypto.SignatureLength {
		return "", core.ErrVerificationFailed.WithCause(fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(decodedSig)))
	}

	// Wallets emit V as 27/28; recovery expects 0/1
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, decodedSig)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return "", core.ErrVerificationFailed.WithCause(fmt.Errorf("invalid recovery id %d", decodedSig[crypto.RecoveryIDOffset]))
	}

	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return "", core.ErrVerificationFailed.WithCause(fmt.Errorf("failed to recover public key: %w", err))
	}

	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// Verify recovers the signer and compares it to claimedAddress in canonical form
func (v PersonalSignVerifier) Verify(message []byte, signatureStr string, claimedAddress string) (string, error) {
	recovered, err := v.Recover(message, signatureStr)
	if err != nil {
		return "", err
	}
	if recovered != core.CanonicalAddress(claimedAddress) {
		return "", core.ErrSignatureMismatch
	}
	return recovered, nil
}
