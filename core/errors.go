package core

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable error code surfaced to clients
type Kind string

const (
	// Validation
	KindWalletAddressRequired Kind = "WALLET_ADDRESS_REQUIRED"
	KindInvalidWalletAddress  Kind = "INVALID_WALLET_ADDRESS"
	KindMissingParameters     Kind = "MISSING_PARAMETERS"
	KindMissingRequiredFields Kind = "MISSING_REQUIRED_FIELDS"
	KindInvalidRequest        Kind = "INVALID_REQUEST"

	// Authentication
	KindInvalidOrExpiredNonce   Kind = "INVALID_OR_EXPIRED_NONCE"
	KindSignatureMismatch       Kind = "SIGNATURE_MISMATCH"
	KindVerificationFailed      Kind = "VERIFICATION_FAILED"
	KindNoAuthorizationHeader   Kind = "NO_AUTHORIZATION_HEADER"
	KindInvalidTokenFormat      Kind = "INVALID_TOKEN_FORMAT"
	KindNoTokenProvided         Kind = "NO_TOKEN_PROVIDED"
	KindTokenExpired            Kind = "TOKEN_EXPIRED"
	KindInvalidToken            Kind = "INVALID_TOKEN"
	KindTokenVerificationFailed Kind = "TOKEN_VERIFICATION_FAILED"

	// Authorization
	KindTokenNotFound Kind = "TOKEN_NOT_FOUND"

	// Upstream
	KindBatchVerificationFailed  Kind = "BATCH_VERIFICATION_FAILED"
	KindTicketVerificationFailed Kind = "TICKET_VERIFICATION_FAILED"

	// NotFound
	KindUserNotFound Kind = "USER_NOT_FOUND"

	// Internal
	KindNonceGenerationFailed Kind = "NONCE_GENERATION_FAILED"
	KindInternal              Kind = "INTERNAL_ERROR"
)

// Category groups kinds by who is at fault
type Category int

const (
	CategoryInternal Category = iota
	CategoryValidation
	CategoryAuthentication
	CategoryAuthorization
	CategoryUpstream
	CategoryNotFound
)

func (c Category) String() string {
	switch c {
	case CategoryValidation:
		return "validation"
	case CategoryAuthentication:
		return "authentication"
	case CategoryAuthorization:
		return "authorization"
	case CategoryUpstream:
		return "upstream"
	case CategoryNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a tagged failure result. Two errors match under errors.Is when
// their kinds are equal, so sentinels below can be compared against wrapped
// or re-messaged instances.
type Error struct {
	Kind     Kind
	Category Category
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// WithCause returns a copy of e carrying err as its cause
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// WithMessage returns a copy of e with a different human message
func (e *Error) WithMessage(msg string) *Error {
	c := *e
	c.Message = msg
	return &c
}

// WithCategory returns a copy of e in a different category
func (e *Error) WithCategory(c Category) *Error {
	cp := *e
	cp.Category = c
	return &cp
}

func newError(kind Kind, category Category, msg string) *Error {
	return &Error{Kind: kind, Category: category, Message: msg}
}

var (
	ErrWalletAddressRequired = newError(KindWalletAddressRequired, CategoryValidation, "wallet address is required")
	ErrInvalidWalletAddress  = newError(KindInvalidWalletAddress, CategoryValidation, "wallet address must be a 0x-prefixed 20-byte hex string")
	ErrMissingParameters     = newError(KindMissingParameters, CategoryValidation, "walletAddress, signature and nonce are required")
	ErrMissingRequiredFields = newError(KindMissingRequiredFields, CategoryValidation, "required fields are missing")
	ErrInvalidRequest        = newError(KindInvalidRequest, CategoryValidation, "request body is not valid JSON")

	ErrInvalidOrExpiredNonce   = newError(KindInvalidOrExpiredNonce, CategoryAuthentication, "nonce is invalid or expired")
	ErrSignatureMismatch       = newError(KindSignatureMismatch, CategoryAuthentication, "signature does not match wallet address")
	ErrVerificationFailed      = newError(KindVerificationFailed, CategoryAuthentication, "signature could not be verified")
	ErrNoAuthorizationHeader   = newError(KindNoAuthorizationHeader, CategoryAuthentication, "authorization header is required")
	ErrInvalidTokenFormat      = newError(KindInvalidTokenFormat, CategoryAuthentication, "authorization header must use the Bearer scheme")
	ErrNoTokenProvided         = newError(KindNoTokenProvided, CategoryAuthentication, "no token provided")
	ErrTokenExpired            = newError(KindTokenExpired, CategoryAuthentication, "token has expired")
	ErrInvalidToken            = newError(KindInvalidToken, CategoryAuthentication, "invalid token")
	ErrTokenVerificationFailed = newError(KindTokenVerificationFailed, CategoryAuthentication, "token could not be verified")

	ErrTokenNotFound = newError(KindTokenNotFound, CategoryAuthorization, "wallet does not own the required token")

	ErrOwnershipQueryFailed = newError(KindTokenVerificationFailed, CategoryUpstream, "token ownership query failed")
	ErrBatchQueryFailed     = newError(KindBatchVerificationFailed, CategoryUpstream, "batch ownership query failed")
	ErrTicketQueryFailed    = newError(KindTicketVerificationFailed, CategoryUpstream, "ticket ownership query failed")

	ErrUserNotFound = newError(KindUserNotFound, CategoryNotFound, "user not found")

	ErrNonceGenerationFailed = newError(KindNonceGenerationFailed, CategoryInternal, "failed to generate nonce")
	ErrInternal              = newError(KindInternal, CategoryInternal, "an unexpected error occurred")
)

// AsError extracts the tagged error from err, treating anything untagged as internal
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal.WithCause(err)
}

// KindOf returns the kind of err, INTERNAL_ERROR when untagged
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return AsError(err).Kind
}
