package database

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pulpfiction/pulpfiction/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewForTest()
	cfg.DatabaseFilePath = filepath.Join(t.TempDir(), "test.db")
	return cfg
}

func TestNew_EnablesForeignKeys(t *testing.T) {
	t.Parallel()

	db, err := New(newTestConfig(t))
	require.NoError(t, err)
	defer db.Close()

	var enabled int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&enabled))
	assert.Equal(t, 1, enabled)
}

func TestNew_ConcurrentWrites(t *testing.T) {
	t.Parallel()

	db, err := New(newTestConfig(t))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE concurrency_test (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		value TEXT NOT NULL
	)`)
	require.NoError(t, err)

	const workers = 10
	const writes = 20

	var wg sync.WaitGroup
	errs := make(chan error, workers*writes)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				_, err := db.Exec("INSERT INTO concurrency_test (value) VALUES (?)", fmt.Sprintf("%d-%d", worker, i))
				if err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM concurrency_test").Scan(&count))
	assert.Equal(t, workers*writes, count)
}
