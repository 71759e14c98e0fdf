package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

const (
	replenishTimeout     = 10 * time.Second
	replenishBackoffBase = 25 * time.Millisecond
	replenishBackoffMax  = time.Second
)

type PoolConfig struct {
	// MaxSize bounds the number of physical connections.
	MaxSize int32
	// MinIdle connections are opened up front and restored after evictions.
	MinIdle int32
	// ConnectionTimeout bounds how long Get waits for a connection.
	ConnectionTimeout time.Duration
	// ValidateIdleAfter pings connections idle for longer than this on
	// checkout. Zero disables the ping.
	ValidateIdleAfter time.Duration
}

// ConnPool is a bounded pool of prepared connections.
type ConnPool struct {
	p       *puddle.Pool[*Conn]
	cfg     PoolConfig
	dial    DialFunc
	filling atomic.Bool
	// done is canceled by Close and stops replenish retries.
	done   context.Context
	cancel context.CancelFunc
	// counters for tests and metrics
	connects  atomic.Int64
	evictions atomic.Int64
}

// PooledConn is a connection lent by the pool. It must be given back with
// Put exactly once.
type PooledConn struct {
	*Conn
	res *puddle.Resource[*Conn]
}

// NewConnPool builds the pool and opens MinIdle connections before
// returning.
func NewConnPool(ctx context.Context, cfg PoolConfig, dial DialFunc) (*ConnPool, error) {
	if cfg.MaxSize <= 0 {
		return nil, fmt.Errorf("invalid pool max size %d", cfg.MaxSize)
	}
	if cfg.MinIdle > cfg.MaxSize {
		cfg.MinIdle = cfg.MaxSize
	}
	if cfg.MinIdle < 0 {
		cfg.MinIdle = 0
	}

	cp := &ConnPool{cfg: cfg, dial: dial}
	cp.done, cp.cancel = context.WithCancel(context.Background())
	p, err := puddle.NewPool(&puddle.Config[*Conn]{
		Constructor: cp.connect,
		Destructor: func(c *Conn) {
			c.Close(context.Background())
		},
		MaxSize: cfg.MaxSize,
	})
	if err != nil {
		return nil, err
	}
	cp.p = p

	g, gctx := errgroup.WithContext(ctx)
	for i := int32(0); i < cfg.MinIdle; i++ {
		g.Go(func() error {
			return p.CreateResource(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		cp.Close()
		return nil, fmt.Errorf("warming connection pool: %w", err)
	}
	slog.Debug("Connection pool ready", "max_size", cfg.MaxSize, "min_idle", cfg.MinIdle)
	return cp, nil
}

// connect opens a physical connection and prepares its statements.
func (cp *ConnPool) connect(ctx context.Context) (*Conn, error) {
	dc, err := cp.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	c, err := newConn(ctx, dc)
	if err != nil {
		return nil, err
	}
	cp.connects.Add(1)
	return c, nil
}

// Get borrows a connection, waiting at most ConnectionTimeout. Broken
// connections found on checkout are destroyed and another one is tried.
func (cp *ConnPool) Get(ctx context.Context) (*PooledConn, error) {
	if cp.cfg.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cp.cfg.ConnectionTimeout)
		defer cancel()
	}

	for {
		res, err := cp.p.Acquire(ctx)
		if err != nil {
			return nil, translateAcquireError(err)
		}

		c := res.Value()
		if c.HasBroken() {
			slog.Warn("Evicting broken connection")
			cp.evict(res)
			continue
		}
		if cp.cfg.ValidateIdleAfter > 0 && res.IdleDuration() > cp.cfg.ValidateIdleAfter {
			if err := c.IsValid(ctx); err != nil {
				slog.Warn("Evicting invalid connection", "error", err)
				cp.evict(res)
				if ctx.Err() != nil {
					return nil, translateAcquireError(ctx.Err())
				}
				continue
			}
		}
		return &PooledConn{Conn: c, res: res}, nil
	}
}

// Put gives a connection back. Connections that broke while in use are
// destroyed instead of returning to the idle set.
func (cp *ConnPool) Put(pc *PooledConn) {
	if pc.HasBroken() {
		cp.evict(pc.res)
		return
	}
	pc.res.Release()
}

// evict takes res out of the pool before closing it, so the replenish below
// already sees the lower total.
func (cp *ConnPool) evict(res *puddle.Resource[*Conn]) {
	c := res.Value()
	res.Hijack()
	cp.evictions.Add(1)
	go c.Close(context.Background())
	go cp.fillMinIdle()
}

// fillMinIdle restores the pool to MinIdle connections, backing off while
// the store is unreachable, until the deficit is gone or the pool is closed.
// Only one runs at a time; a deficit that appears while the running fill is
// finishing is picked up by the recheck after filling is cleared.
func (cp *ConnPool) fillMinIdle() {
	for cp.filling.CompareAndSwap(false, true) {
		backoff := retry.WithCappedDuration(replenishBackoffMax, retry.NewExponential(replenishBackoffBase))
		err := retry.Do(cp.done, backoff, cp.createMissing)
		cp.filling.Store(false)
		if err != nil {
			if cp.done.Err() == nil && !errors.Is(err, puddle.ErrClosedPool) {
				slog.Error("Error replenishing connection pool", "error", err)
			}
			return
		}
		if cp.deficit() == 0 {
			return
		}
	}
}

func (cp *ConnPool) createMissing(ctx context.Context) error {
	for cp.deficit() > 0 {
		cctx, cancel := context.WithTimeout(ctx, replenishTimeout)
		err := cp.p.CreateResource(cctx)
		cancel()
		switch {
		case err == nil:
		case errors.Is(err, puddle.ErrNotAvailable):
			// full: borrowed connections cover MinIdle
			return nil
		case errors.Is(err, puddle.ErrClosedPool):
			return err
		default:
			slog.Warn("Error replenishing connection pool, retrying", "error", err)
			return retry.RetryableError(err)
		}
	}
	return nil
}

func (cp *ConnPool) deficit() int32 {
	if n := cp.cfg.MinIdle - cp.p.Stat().TotalResources(); n > 0 {
		return n
	}
	return 0
}

// Ping borrows a connection and checks it with a round trip.
func (cp *ConnPool) Ping(ctx context.Context) error {
	pc, err := cp.Get(ctx)
	if err != nil {
		return err
	}
	defer cp.Put(pc)
	if err := pc.IsValid(ctx); err != nil {
		return translateQueryError(err)
	}
	return nil
}

type PoolStat struct {
	Total        int32
	Idle         int32
	Acquired     int32
	Constructing int32
	Max          int32
	Connects     int64
	Evictions    int64
	Acquires     int64
	EmptyWaits   int64
	Canceled     int64
}

func (cp *ConnPool) Stat() PoolStat {
	s := cp.p.Stat()
	return PoolStat{
		Total:        s.TotalResources(),
		Idle:         s.IdleResources(),
		Acquired:     s.AcquiredResources(),
		Constructing: s.ConstructingResources(),
		Max:          s.MaxResources(),
		Connects:     cp.connects.Load(),
		Evictions:    cp.evictions.Load(),
		Acquires:     s.AcquireCount(),
		EmptyWaits:   s.EmptyAcquireCount(),
		Canceled:     s.CanceledAcquireCount(),
	}
}

// Close closes idle connections and waits for borrowed ones to be
// returned.
func (cp *ConnPool) Close() {
	cp.cancel()
	cp.p.Close()
}
