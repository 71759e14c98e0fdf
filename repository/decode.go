package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ricardovhz/rinha-ledger/model"
)

// result codes returned by the debit and credit routines
const (
	resultOK             int16 = 0
	resultClientNotFound int16 = 1
	resultLimitExceeded  int16 = 2
)

func decodeTransactionResult(row pgx.Row) (*model.TransactionResult, error) {
	var (
		code    int16
		balance int32
		limit   int32
	)
	if err := row.Scan(&code, &balance, &limit); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Internal("routine returned no row")
		}
		return nil, translateQueryError(err)
	}

	switch code {
	case resultOK:
		return &model.TransactionResult{Limit: limit, Balance: balance}, nil
	case resultClientNotFound:
		return nil, ErrClientNotFound
	case resultLimitExceeded:
		return nil, ErrBalanceConstraintViolation
	default:
		return nil, Internal(fmt.Sprintf("unknown result code %d", code))
	}
}

// decodeResume reads the balance rows in query order. The first row carries
// the account; its has_transaction flag tells an account without
// transactions apart from one with.
func decodeResume(rows pgx.Rows, now time.Time) (*model.Resume, error) {
	defer rows.Close()

	var (
		res   *model.Resume
		found bool
	)
	for rows.Next() {
		var (
			balance, limit int32
			has            bool
			value          int32
			kind, desc     string
			date           time.Time
		)
		if err := rows.Scan(&balance, &limit, &has, &value, &kind, &desc, &date); err != nil {
			return nil, translateQueryError(err)
		}
		if !found {
			found = true
			res = &model.Resume{
				Balance: model.Balance{
					Total: balance,
					Limit: limit,
					Date:  now,
				},
				Transactions: make([]*model.Transaction, 0, model.MaxLastTransactions),
			}
		}
		if !has || len(res.Transactions) == model.MaxLastTransactions {
			continue
		}
		res.Transactions = append(res.Transactions, &model.Transaction{
			Value:       value,
			Type:        model.Kind(kind),
			Description: desc,
			Date:        date,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, translateQueryError(err)
	}
	if !found {
		return nil, ErrClientNotFound
	}
	return res, nil
}
