// Package models contains domain types for assetlink-engine.
package models

import "context"

// ProvenanceSource represents how a correlation mutation was performed.
type ProvenanceSource string

const (
	// SourceImport marks mutations made by the batch matcher.
	SourceImport ProvenanceSource = "import"
	// SourceOperator marks mutations made by a human through the API.
	SourceOperator ProvenanceSource = "operator"
	// SourceSystem marks engine-internal mutations (score recomputation, merges
	// triggered by maintenance jobs).
	SourceSystem ProvenanceSource = "system"
)

// String returns the string representation of a ProvenanceSource.
func (s ProvenanceSource) String() string {
	return string(s)
}

// ProvenanceContext carries actor and source information through operations.
// It records WHO performed an action and HOW it was performed, and feeds the
// audit log and the updated_by column.
type ProvenanceContext struct {
	Source ProvenanceSource

	// Actor is the operator identity (JWT subject or email) or a fixed label
	// such as "batch-import" for engine-driven work.
	Actor string
}

// provenanceKey is the context key for storing provenance information.
type provenanceKey struct{}

// WithProvenance returns a new context with provenance information attached.
func WithProvenance(ctx context.Context, p ProvenanceContext) context.Context {
	return context.WithValue(ctx, provenanceKey{}, p)
}

// GetProvenance retrieves provenance information from the context.
// Returns the provenance and true if present, otherwise a zero value and false.
func GetProvenance(ctx context.Context) (ProvenanceContext, bool) {
	p, ok := ctx.Value(provenanceKey{}).(ProvenanceContext)
	return p, ok
}

// WithOperatorProvenance returns a context with operator provenance set.
// Use this for HTTP handlers acting on behalf of an authenticated user.
func WithOperatorProvenance(ctx context.Context, actor string) context.Context {
	return WithProvenance(ctx, ProvenanceContext{Source: SourceOperator, Actor: actor})
}

// WithImportProvenance returns a context with batch-import provenance set.
func WithImportProvenance(ctx context.Context, batchID string) context.Context {
	return WithProvenance(ctx, ProvenanceContext{Source: SourceImport, Actor: "batch:" + batchID})
}
