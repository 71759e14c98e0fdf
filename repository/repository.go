package repository

import (
	"context"

	"github.com/ricardovhz/rinha-ledger/model"
)

// Repository records transactions and reads account statements. Every
// error it returns is an *Error; compare with errors.Is against
// ErrConnection, ErrInternal, ErrClientNotFound and
// ErrBalanceConstraintViolation.
type Repository interface {
	CreateTransaction(ctx context.Context, clientID int32, t *model.TransactionRequest) (*model.TransactionResult, error)
	GetBalance(ctx context.Context, clientID int32) (*model.Resume, error)
	ShutDown()
}
