package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/sfm-market/storefront/config"
)

const (
	defaultDBDriver     = "postgres"
	defaultPingTimeout  = 5 * time.Second
	defaultConnMaxIdle  = 2 * time.Minute
	defaultConnMaxLife  = 30 * time.Minute
	defaultMaxIdleConns = 5
	defaultMaxOpenConns = 25
)

// ErrClientClosed is returned by DB once Close has been called.
var ErrClientClosed = errors.New("db: client closed")

// Client owns the process-wide connection pool. The pool is opened on first
// use and exactly once; concurrent callers of DB block until it is ready and
// all observe the same handle or the same error.
type Client struct {
	cfg  config.DatabaseConfig
	open func(ctx context.Context, dsn string) (*sql.DB, error)

	once sync.Once

	// mu guards the fields below. It is not held while the pool is opening.
	mu     sync.Mutex
	db     *sql.DB
	err    error
	closed bool
}

// NewClient returns a Client for cfg. No connection is made until DB is called.
func NewClient(cfg config.DatabaseConfig) *Client {
	return &Client{cfg: cfg, open: openPool}
}

// DB returns the shared pool, opening it on the first call. A failed open is
// not retried.
func (c *Client) DB(ctx context.Context) (*sql.DB, error) {
	c.once.Do(func() {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		db, err := c.open(ctx, DSN(c.cfg))

		c.mu.Lock()
		defer c.mu.Unlock()
		if err == nil && c.closed {
			// Close ran while the pool was opening.
			_ = db.Close()
			return
		}
		c.db, c.err = db, err
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	return c.db, c.err
}

// Close closes the pool if it was opened. Later calls to DB fail with
// ErrClientClosed. It is safe to call concurrently with DB and more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// DSN builds a postgres connection URL from cfg.
func DSN(cfg config.DatabaseConfig) string {
	sslmode := "disable"
	if cfg.UseSSL {
		sslmode = "require"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		User:   url.UserPassword(cfg.User, cfg.Password),
		Path:   cfg.DBName,
	}

	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()

	return u.String()
}

func openPool(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(defaultDBDriver, dsn)
	if err != nil {
		return nil, err
	}

	db.SetConnMaxIdleTime(defaultConnMaxIdle)
	db.SetConnMaxLifetime(defaultConnMaxLife)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetMaxOpenConns(defaultMaxOpenConns)

	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}
