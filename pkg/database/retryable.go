package database

import (
	"context"
	"time"

	"github.com/gocql/gocql"

	"github.com/taskmesh/taskmesh-backend/pkg/retry"
)

// isRetryableError determines if the error is retryable
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	switch err.(type) {
	case gocql.RequestErrWriteTimeout:
		return true
	case gocql.RequestErrReadTimeout:
		return true
	case gocql.RequestErrUnavailable:
		return true
	}

	switch err.Error() {
	case "no connections available":
		return true
	case "connection refused":
		return true
	case "connection reset by peer":
		return true
	case "i/o timeout":
		return true
	}

	return false
}

func (c *Connection) retryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:      c.config.Retries,
		InitialDelay:    time.Second,
		MaxDelay:        10 * time.Second,
		BackoffFactor:   2.0,
		JitterFactor:    0.1,
		LogRetryAttempt: true,
		ShouldRetry: func(err error, _ int) bool {
			return isRetryableError(err)
		},
	}
}

// RetryableExec executes a statement with retry on transient errors.
func (c *Connection) RetryableExec(ctx context.Context, query string, values ...interface{}) error {
	return retry.RetryFunc(ctx, func() error {
		return c.session.Query(query, values...).WithContext(ctx).Exec()
	}, c.retryConfig(), c.logger)
}

// RetryableScan executes a query with retry and scans the single result row.
func (c *Connection) RetryableScan(ctx context.Context, query string, values []interface{}, dest ...interface{}) error {
	return retry.RetryFunc(ctx, func() error {
		err := c.session.Query(query, values...).WithContext(ctx).Scan(dest...)
		if err == gocql.ErrNotFound {
			// Not transient, surface immediately.
			return err
		}
		return err
	}, &retry.Config{
		MaxRetries:      c.config.Retries,
		InitialDelay:    time.Second,
		MaxDelay:        10 * time.Second,
		BackoffFactor:   2.0,
		JitterFactor:    0.1,
		LogRetryAttempt: true,
		ShouldRetry: func(err error, _ int) bool {
			return err != gocql.ErrNotFound && isRetryableError(err)
		},
	}, c.logger)
}

// RetryableScanCAS executes a lightweight transaction and reports whether it
// was applied. CAS misses are not errors and are never retried.
func (c *Connection) RetryableScanCAS(ctx context.Context, query string, values []interface{}, dest ...interface{}) (bool, error) {
	return retry.Retry(ctx, func() (bool, error) {
		return c.session.Query(query, values...).WithContext(ctx).ScanCAS(dest...)
	}, c.retryConfig(), c.logger)
}

// RetryableMapScanCAS executes an INSERT ... IF NOT EXISTS with retry and
// reports whether it was applied. On a conflict Scylla returns the whole
// existing row, which MapScanCAS captures into dest without the positional
// column matching ScanCAS would require.
func (c *Connection) RetryableMapScanCAS(ctx context.Context, query string, values []interface{}, dest map[string]interface{}) (bool, error) {
	return retry.Retry(ctx, func() (bool, error) {
		return c.session.Query(query, values...).WithContext(ctx).MapScanCAS(dest)
	}, c.retryConfig(), c.logger)
}

// RetryableIter returns an iterator for the query. Iteration errors surface
// on Close in gocql fashion.
func (c *Connection) RetryableIter(ctx context.Context, query string, values ...interface{}) *gocql.Iter {
	return c.session.Query(query, values...).WithContext(ctx).Iter()
}
