package adapter

import "context"

// Adapter is the uniform contract of every external integration.
//
// Initialize validates the configuration and performs exactly one health
// probe; an unhealthy probe is returned as an error. HealthCheck and
// CollectEvidence never return errors: failures are encoded in the returned
// values. MapToControls is pure and never fails on malformed input.
type Adapter interface {
	ID() string
	Kind() Kind
	Config() Config

	Initialize(ctx context.Context) error
	IsInitialized() bool

	HealthCheck(ctx context.Context) HealthStatus
	LastHealth() *HealthStatus

	CollectEvidence(ctx context.Context, opts CollectionOptions) CollectionResult
	MapToControls(records []Record) []string
}
