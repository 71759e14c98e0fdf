package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

// patterns matching either the prepared statement name or its SQL
const (
	debitQuery   = `\bdebit\b`
	creditQuery  = `\bcredit\b`
	balanceQuery = `get_balance|FROM accounts`
)

var (
	resultColumns  = []string{"result_code", "balance", "limit"}
	balanceColumns = []string{"balance", "credit_limit", "has_transaction", "amount", "kind", "description", "performed_at"}
)

func expectPrepares(mock pgxmock.PgxConnIface) {
	mock.ExpectPrepare("debit", `FROM debit\(`)
	mock.ExpectPrepare("credit", `FROM credit\(`)
	mock.ExpectPrepare("get_balance", `FROM accounts`)
}

// mockDialer hands out a fresh pgxmock connection per dial.
type mockDialer struct {
	mu      sync.Mutex
	conns   []pgxmock.PgxConnIface
	dialErr error
	failed  int
	prepare func(pgxmock.PgxConnIface)
	setup   func(pgxmock.PgxConnIface)
}

func (d *mockDialer) dial(ctx context.Context) (DriverConn, error) {
	d.mu.Lock()
	if d.dialErr != nil {
		d.failed++
		d.mu.Unlock()
		return nil, d.dialErr
	}
	d.mu.Unlock()
	mock, err := pgxmock.NewConn()
	if err != nil {
		return nil, err
	}
	if d.prepare != nil {
		d.prepare(mock)
	} else {
		expectPrepares(mock)
	}
	if d.setup != nil {
		d.setup(mock)
	}
	d.mu.Lock()
	d.conns = append(d.conns, mock)
	d.mu.Unlock()
	return mock, nil
}

// setDialErr makes later dials fail with err, or succeed again when nil.
func (d *mockDialer) setDialErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialErr = err
}

func (d *mockDialer) failedDials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failed
}

func (d *mockDialer) dialed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *mockDialer) conn(i int) pgxmock.PgxConnIface {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

var fixedNow = time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC)

// newTestRepository builds a repository over a single pre-warmed mock
// connection whose expectations are set by setup.
func newTestRepository(t *testing.T, setup func(pgxmock.PgxConnIface)) (*postgresRepository, *mockDialer) {
	t.Helper()
	d := &mockDialer{setup: setup}
	pool, err := NewConnPool(context.Background(), PoolConfig{
		MaxSize:           1,
		MinIdle:           1,
		ConnectionTimeout: 100 * time.Millisecond,
	}, d.dial)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := NewPostgresRepository(pool).(*postgresRepository)
	repo.now = func() time.Time { return fixedNow }
	return repo, d
}
