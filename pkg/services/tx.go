package services

import "context"

// TxRunner executes a unit of work inside one database transaction.
// *database.DB satisfies it; tests substitute a pass-through.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
