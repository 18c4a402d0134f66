package server

import (
	"context"

	"github.com/sahaana/coopvault/backend/internal/ledger"
)

// HealthService defines behaviour for readiness probes.
type HealthService interface {
	Probe(ctx context.Context) error
}

// StoreHealthService verifies ledger store connectivity as part of health checks.
type StoreHealthService struct {
	Store ledger.Store
}

// Probe implements the HealthService interface.
func (s StoreHealthService) Probe(ctx context.Context) error {
	if s.Store == nil {
		return nil
	}
	return s.Store.Ping(ctx)
}
