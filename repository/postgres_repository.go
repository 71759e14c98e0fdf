package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ricardovhz/rinha-ledger/model"
)

type postgresRepository struct {
	pool *ConnPool
	now  func() time.Time
}

// CreateTransaction runs the debit or credit routine. The overdraft limit
// is enforced by the routine alone.
func (r *postgresRepository) CreateTransaction(ctx context.Context, clientID int32, t *model.TransactionRequest) (*model.TransactionResult, error) {
	var stmt Statement
	switch t.Type {
	case model.Credit:
		stmt = CreateCredit
	case model.Debit:
		stmt = CreateDebit
	default:
		return nil, Internal(fmt.Sprintf("invalid transaction type %q", t.Type))
	}

	pc, err := r.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	defer r.pool.Put(pc)

	return decodeTransactionResult(pc.QueryRow(ctx, stmt, clientID, t.Value, t.Description))
}

func (r *postgresRepository) GetBalance(ctx context.Context, clientID int32) (*model.Resume, error) {
	pc, err := r.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	defer r.pool.Put(pc)

	rows, err := pc.Query(ctx, GetBalance, clientID)
	if err != nil {
		return nil, translateQueryError(err)
	}
	return decodeResume(rows, r.now())
}

func (r *postgresRepository) ShutDown() {
	r.pool.Close()
}

// NewPostgresRepository serves both operations from pool. ShutDown closes
// the pool.
func NewPostgresRepository(pool *ConnPool) Repository {
	return &postgresRepository{
		pool: pool,
		now:  time.Now,
	}
}
