package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/adapters/metrics"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/ports"
)

// IdentityResolver maps recovered wallet addresses to durable identities.
//
// Concurrent calls for one address inside this process share a single store
// round trip. That is only an optimisation: the store's FindOrCreate is the
// authority, so replicas racing on the same address still end up with one
// record.
type IdentityResolver struct {
	store   ports.IdentityStore
	group   singleflight.Group
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewIdentityResolver creates a resolver over store
func NewIdentityResolver(store ports.IdentityStore, logger *slog.Logger, m *metrics.Metrics) *IdentityResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityResolver{
		store:   store,
		now:     time.Now,
		logger:  logger.With("component", "identity_resolver"),
		metrics: m,
	}
}

// Store returns the underlying identity store
func (r *IdentityResolver) Store() ports.IdentityStore {
	return r.store
}

// Resolve finds or creates the identity for a cryptographically recovered address
func (r *IdentityResolver) Resolve(ctx context.Context, recovered string) (*core.Identity, error) {
	address := core.CanonicalAddress(recovered)
	if !core.IsValidAddress(address) {
		return nil, core.ErrInvalidWalletAddress
	}

	// Callers sharing the flight must not be failed by the first caller's cancellation
	flightCtx := context.WithoutCancel(ctx)

	v, err, _ := r.group.Do(address, func() (interface{}, error) {
		candidate := core.NewWalletIdentity(uuid.NewString(), address, r.now().UTC())
		identity, created, err := r.store.FindOrCreate(flightCtx, candidate)
		if err != nil {
			return nil, fmt.Errorf("resolving identity for %s: %w", address, err)
		}
		if created {
			r.metrics.IdentityCreated()
			r.logger.Info("created identity", "address", address, "identity_id", identity.ID)
		}
		return identity, nil
	})
	if err != nil {
		r.logger.Error("identity resolution failed", "address", address, "error", err)
		return nil, core.ErrInternal.WithCause(err)
	}

	identity := *v.(*core.Identity)
	return &identity, nil
}
