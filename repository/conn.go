package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Statement identifies one of the statements prepared on every connection.
type Statement uint8

const (
	CreateDebit Statement = iota
	CreateCredit
	GetBalance

	statementCount
)

func (s Statement) String() string {
	if s < statementCount {
		return statementNames[s]
	}
	return fmt.Sprintf("statement(%d)", uint8(s))
}

// statementNames doubles as the server-side prepared statement name.
var statementNames = [statementCount]string{
	CreateDebit:  "debit",
	CreateCredit: "credit",
	GetBalance:   "get_balance",
}

var statementSQL = [statementCount]string{
	CreateDebit: `SELECT result_code, COALESCE(resulting_balance, 0), COALESCE(resulting_limit, 0)
		FROM debit($1, $2, $3)`,
	CreateCredit: `SELECT result_code, COALESCE(resulting_balance, 0), COALESCE(resulting_limit, 0)
		FROM credit($1, $2, $3)`,
	GetBalance: `SELECT
			a.balance,
			a.credit_limit,
			t.id IS NOT NULL AS has_transaction,
			COALESCE(t.amount, 0),
			COALESCE(t.kind, ''),
			COALESCE(t.description, ''),
			COALESCE(t.performed_at, 'epoch'::timestamptz)
		FROM accounts a
		LEFT JOIN (
			SELECT id, account_id, amount, kind, description, performed_at
			FROM transactions
			WHERE account_id = $1
			ORDER BY id DESC
			LIMIT 10
		) AS t ON t.account_id = a.id
		WHERE a.id = $1
		ORDER BY t.id DESC`,
}

// DriverConn is the part of *pgx.Conn used by this package.
type DriverConn interface {
	Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// DialFunc opens one physical connection.
type DialFunc func(ctx context.Context) (DriverConn, error)

// PgxDialer dials with a copy of cfg for every new connection.
func PgxDialer(cfg *pgx.ConnConfig) DialFunc {
	return func(ctx context.Context) (DriverConn, error) {
		return pgx.ConnectConfig(ctx, cfg.Copy())
	}
}

// Conn is a physical connection together with its statement cache. It is
// only handed out by ConnPool once every statement is prepared.
type Conn struct {
	dc         DriverConn
	statements [statementCount]*pgconn.StatementDescription
	closed     bool
}

// newConn prepares every statement on dc. On failure dc is closed.
func newConn(ctx context.Context, dc DriverConn) (*Conn, error) {
	c := &Conn{dc: dc}
	for s := Statement(0); s < statementCount; s++ {
		sd, err := dc.Prepare(ctx, statementNames[s], statementSQL[s])
		if err != nil {
			c.Close(ctx)
			return nil, &PrepareError{Statement: s, Err: err}
		}
		c.statements[s] = sd
	}
	return c, nil
}

// statement returns the prepared statement name for s. A missing entry
// means a connection escaped initialization, which is a programming error.
func (c *Conn) statement(s Statement) string {
	if s >= statementCount || c.statements[s] == nil {
		panic(fmt.Sprintf("repository: statement %s not prepared on connection", s))
	}
	return c.statements[s].Name
}

func (c *Conn) QueryRow(ctx context.Context, s Statement, args ...any) pgx.Row {
	return c.dc.QueryRow(ctx, c.statement(s), args...)
}

func (c *Conn) Query(ctx context.Context, s Statement, args ...any) (pgx.Rows, error) {
	return c.dc.Query(ctx, c.statement(s), args...)
}

// HasBroken reports whether the connection is known to be unusable,
// without a round trip.
func (c *Conn) HasBroken() bool {
	if c.closed {
		return true
	}
	if ic, ok := c.dc.(interface{ IsClosed() bool }); ok {
		return ic.IsClosed()
	}
	return false
}

// IsValid checks the connection with a round trip.
func (c *Conn) IsValid(ctx context.Context) error {
	return c.dc.Ping(ctx)
}

func (c *Conn) Close(ctx context.Context) {
	if c.closed {
		return
	}
	c.closed = true
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.dc.Close(ctx); err != nil {
		slog.Debug("Error closing connection", "error", err)
	}
}
