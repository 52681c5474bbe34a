package contracts

import "context"

// TxManager runs fn so that every repository call made with the ctx it
// receives shares one transaction.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
