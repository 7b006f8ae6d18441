package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBusyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"database is locked", errors.New("database is locked"), true},
		{"SQLITE_BUSY", errors.New("SQLITE_BUSY"), true},
		{"error code 6", errors.New("error (6): database locked"), true},
		{"unrelated error", errors.New("connection refused"), false},
		{"constraint violation", errors.New("UNIQUE constraint failed: authors.name"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isBusyError(tt.err))
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	first := backoffDelay(0)
	assert.GreaterOrEqual(t, first, retryBaseDelay)
	assert.Less(t, first, retryBaseDelay+retryBaseDelay/4+time.Nanosecond)
	assert.Equal(t, retryMaxDelay, backoffDelay(10))
}

func TestRetryWithBackoff(t *testing.T) {
	t.Parallel()

	t.Run("succeeds on first attempt", func(t *testing.T) {
		attempts := 0
		err := retryWithBackoff(context.Background(), 5, func() error {
			attempts++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("retries on busy error and succeeds", func(t *testing.T) {
		attempts := 0
		err := retryWithBackoff(context.Background(), 5, func() error {
			attempts++
			if attempts < 3 {
				return errors.New("database is locked")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("fails immediately on non-busy error", func(t *testing.T) {
		attempts := 0
		err := retryWithBackoff(context.Background(), 5, func() error {
			attempts++
			return errors.New("UNIQUE constraint failed: authors.name")
		})
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("exhausts all retries on persistent busy error", func(t *testing.T) {
		attempts := 0
		err := retryWithBackoff(context.Background(), 2, func() error {
			attempts++
			return errors.New("database is locked")
		})
		require.Error(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		attempts := 0
		err := retryWithBackoff(ctx, 10, func() error {
			attempts++
			return errors.New("database is locked")
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	})
}

// openOnlyDriver implements driver.Driver but not driver.DriverContext.
type openOnlyDriver struct {
	dsn string
}

func (d *openOnlyDriver) Open(dsn string) (driver.Conn, error) {
	d.dsn = dsn
	return nil, errors.New("open called")
}

func TestOpenConnector_FallsBackToDriverOpen(t *testing.T) {
	t.Parallel()

	drv := &openOnlyDriver{}
	connector, err := openConnector(drv, "library.db")
	require.NoError(t, err)
	assert.IsType(t, &driverConnector{}, connector)
	assert.Same(t, drv, connector.Driver())

	_, err = newRetryConnector(connector, 2).Connect(context.Background())
	require.EqualError(t, err, "open called")
	assert.Equal(t, "library.db", drv.dsn)
}
