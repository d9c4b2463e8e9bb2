package sqltest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mattn/go-sqlite3"
)

// singleStreamDriver is registered once; lib/pq reads results lazily from
// one socket, so a statement started while an earlier result set is still
// open on the same connection corrupts the protocol. This driver counts
// such overlaps on top of sqlite, which would otherwise allow them.
const singleStreamDriver = "sqlite3-single-stream"

var (
	registerOnce sync.Once
	// overlaps is keyed by dsn so parallel tests read only their own count
	overlaps sync.Map
)

// Overlaps reports how many statements were started on a connection while
// another result set on it was still open
type Overlaps struct {
	n *int64
}

// Count returns the current overlap count
func (o Overlaps) Count() int64 {
	return atomic.LoadInt64(o.n)
}

// NewSingleStream is New with a driver that records interleaved
// statements on a connection, as lib/pq would reject them
func NewSingleStream(t testing.TB) (*sql.DB, Overlaps) {
	t.Helper()
	registerOnce.Do(func() {
		sql.Register(singleStreamDriver, &streamDriver{inner: &sqlite3.SQLiteDriver{}})
	})
	dsn := nextDSN()
	n := new(int64)
	overlaps.Store(dsn, n)
	t.Cleanup(func() { overlaps.Delete(dsn) })
	return open(t, singleStreamDriver, dsn), Overlaps{n: n}
}

type streamDriver struct {
	inner driver.Driver
}

func (d *streamDriver) Open(name string) (driver.Conn, error) {
	c, err := d.inner.Open(name)
	if err != nil {
		return nil, err
	}
	counter, ok := overlaps.Load(name)
	if !ok {
		counter = new(int64)
	}
	return &streamConn{inner: c, overlaps: counter.(*int64)}, nil
}

// streamConn forwards to a sqlite connection. The go-sqlite3 conn
// implements every context interface used below.
type streamConn struct {
	inner    driver.Conn
	open     int32
	overlaps *int64
}

func (c *streamConn) start() {
	if atomic.LoadInt32(&c.open) > 0 {
		atomic.AddInt64(c.overlaps, 1)
	}
}

func (c *streamConn) Prepare(query string) (driver.Stmt, error) {
	c.start()
	return c.inner.Prepare(query)
}

func (c *streamConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	c.start()
	return c.inner.(driver.ConnPrepareContext).PrepareContext(ctx, query)
}

func (c *streamConn) Close() error {
	return c.inner.Close()
}

func (c *streamConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *streamConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	c.start()
	return c.inner.(driver.ConnBeginTx).BeginTx(ctx, opts)
}

func (c *streamConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.start()
	return c.inner.(driver.ExecerContext).ExecContext(ctx, query, args)
}

func (c *streamConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.start()
	rows, err := c.inner.(driver.QueryerContext).QueryContext(ctx, query, args)
	if err != nil {
		return nil, err
	}
	atomic.AddInt32(&c.open, 1)
	return &streamRows{Rows: rows, conn: c}, nil
}

type streamRows struct {
	driver.Rows
	conn   *streamConn
	closed bool
}

func (r *streamRows) Close() error {
	if !r.closed {
		r.closed = true
		atomic.AddInt32(&r.conn.open, -1)
	}
	return r.Rows.Close()
}
