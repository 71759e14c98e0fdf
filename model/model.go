package model

import (
	"fmt"
	"time"
)

// Kind is the closed set of transaction kinds, serialized as "c" or "d".
type Kind string

const (
	Credit Kind = "c"
	Debit  Kind = "d"
)

func (k Kind) Valid() bool {
	return k == Credit || k == Debit
}

// MaxLastTransactions is how many transactions a Resume carries at most.
const MaxLastTransactions = 10

type TransactionRequest struct {
	Value       int16  `json:"valor" binding:"required"`
	Type        Kind   `json:"tipo" binding:"required"`
	Description string `json:"descricao" binding:"required"`
}

func (t *TransactionRequest) Validate() error {
	if !t.Type.Valid() {
		return fmt.Errorf("invalid type %s", t.Type)
	}
	if t.Value <= 0 {
		return fmt.Errorf("invalid value %d", t.Value)
	}
	if len(t.Description) < 1 || len(t.Description) > 10 {
		return fmt.Errorf("invalid description %s", t.Description)
	}
	return nil
}

type TransactionResult struct {
	Limit   int32 `json:"limite"`
	Balance int32 `json:"saldo"`
}

type Transaction struct {
	Value       int32     `json:"valor"`
	Type        Kind      `json:"tipo"`
	Description string    `json:"descricao"`
	Date        time.Time `json:"realizada_em"`
}

type Balance struct {
	Total int32     `json:"total"`
	Date  time.Time `json:"data_extrato"`
	Limit int32     `json:"limite"`
}

// Resume is an account statement: the balance as of Balance.Date and the
// newest-first list of its last transactions.
type Resume struct {
	Balance      Balance        `json:"saldo"`
	Transactions []*Transaction `json:"ultimas_transacoes"`
}
