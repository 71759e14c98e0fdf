//go:build integration

package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ricardovhz/rinha-ledger/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// createTestPool starts a seeded Postgres container and opens a pool on it.
func createTestPool(ctx context.Context, t *testing.T, cfg PoolConfig) *ConnPool {
	t.Helper()
	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("rinha"),
		postgres.WithUsername("admin"),
		postgres.WithPassword("123"),
		postgres.WithInitScripts(filepath.Join("testdata", "init.sql")),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pgContainer.Terminate(terminateCtx); err != nil {
			t.Logf("Warning: failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	connCfg, err := pgx.ParseConfig(connStr)
	require.NoError(t, err)

	pool, err := NewConnPool(ctx, cfg, PgxDialer(connCfg))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresRepository(t *testing.T) {
	ctx := context.Background()
	pool := createTestPool(ctx, t, PoolConfig{
		MaxSize:           4,
		MinIdle:           2,
		ConnectionTimeout: 5 * time.Second,
	})
	repo := NewPostgresRepository(pool)

	t.Run("Should return an empty statement for a fresh account", func(t *testing.T) {
		res, err := repo.GetBalance(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, int32(0), res.Balance.Total)
		assert.Equal(t, int32(80000), res.Balance.Limit)
		assert.Empty(t, res.Transactions)
	})

	t.Run("Should apply transactions and list them newest first", func(t *testing.T) {
		res, err := repo.CreateTransaction(ctx, 1, &model.TransactionRequest{Value: 100, Type: model.Credit, Description: "deposito"})
		require.NoError(t, err)
		assert.Equal(t, &model.TransactionResult{Limit: 1000, Balance: 100}, res)

		res, err = repo.CreateTransaction(ctx, 1, &model.TransactionRequest{Value: 50, Type: model.Debit, Description: "mercado"})
		require.NoError(t, err)
		assert.Equal(t, &model.TransactionResult{Limit: 1000, Balance: 50}, res)

		_, err = repo.CreateTransaction(ctx, 1, &model.TransactionRequest{Value: 2000, Type: model.Debit, Description: "carro"})
		require.ErrorIs(t, err, ErrBalanceConstraintViolation)

		resume, err := repo.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int32(50), resume.Balance.Total)
		require.Len(t, resume.Transactions, 2)
		assert.Equal(t, "mercado", resume.Transactions[0].Description)
		assert.Equal(t, model.Debit, resume.Transactions[0].Type)
		assert.Equal(t, int32(50), resume.Transactions[0].Value)
		assert.Equal(t, "deposito", resume.Transactions[1].Description)
	})

	t.Run("Should report unknown accounts", func(t *testing.T) {
		_, err := repo.CreateTransaction(ctx, 6, &model.TransactionRequest{Value: 1, Type: model.Credit, Description: "x"})
		require.ErrorIs(t, err, ErrClientNotFound)

		_, err = repo.GetBalance(ctx, 6)
		require.ErrorIs(t, err, ErrClientNotFound)
	})

	t.Run("Should keep only the last transactions", func(t *testing.T) {
		for i := 0; i < 12; i++ {
			_, err := repo.CreateTransaction(ctx, 3, &model.TransactionRequest{Value: 1, Type: model.Credit, Description: fmt.Sprintf("t%d", i)})
			require.NoError(t, err)
		}
		resume, err := repo.GetBalance(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, int32(12), resume.Balance.Total)
		require.Len(t, resume.Transactions, model.MaxLastTransactions)
		assert.Equal(t, "t11", resume.Transactions[0].Description)
	})

	t.Run("Should never pass the overdraft limit under concurrency", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = repo.CreateTransaction(ctx, 5, &model.TransactionRequest{Value: 30000, Type: model.Debit, Description: "saque"})
			}()
		}
		wg.Wait()

		resume, err := repo.GetBalance(ctx, 5)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, resume.Balance.Total, -resume.Balance.Limit)
		assert.LessOrEqual(t, pool.Stat().Total, int32(4))
	})

	t.Run("Should answer pings", func(t *testing.T) {
		require.NoError(t, pool.Ping(ctx))
	})
}
