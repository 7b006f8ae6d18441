package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"time"

	"github.com/pkg/errors"
	"github.com/pulpfiction/pulpfiction/pkg/config"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type key int

const ctxKey key = 0

// WithLogging marks ctx so that queries issued with it are logged when the
// debug query hook is installed.
func WithLogging(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey, true)
}

type logQueryHook struct {
	log logger.Logger
}

func (*logQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (qh *logQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	enabled, ok := ctx.Value(ctxKey).(bool)
	if !ok || !enabled {
		return
	}

	data := logger.Data{"duration_ms": time.Since(event.StartTime).Milliseconds()}
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		data["error"] = event.Err.Error()
	}
	qh.log.Debug(event.Query, data)
}

func New(cfg *config.Config) (*bun.DB, error) {
	connector, err := openConnector(sqliteshim.Driver(), cfg.DatabaseFilePath)
	if err != nil {
		return nil, err
	}

	sqldb := sql.OpenDB(newRetryConnector(connector, cfg.DatabaseMaxRetries))
	// A single connection serializes writers, keeps PRAGMAs applied and lets
	// ":memory:" databases behave like one database.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if cfg.DatabaseDebug {
		db.AddQueryHook(&logQueryHook{logger.NewWithLevel("debug")})
	}

	for i := 0; i < cfg.DatabaseConnectRetryCount; i++ {
		_, err = db.Exec("SELECT 1")
		if err == nil {
			break
		}
		time.Sleep(cfg.DatabaseConnectRetryDelay)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := Configure(db, cfg.DatabaseBusyTimeout); err != nil {
		return nil, err
	}

	return db, nil
}

func openConnector(drv driver.Driver, dsn string) (driver.Connector, error) {
	drvCtx, ok := drv.(driver.DriverContext)
	if !ok {
		return newDriverConnector(drv, dsn), nil
	}
	connector, err := drvCtx.OpenConnector(dsn)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return connector, nil
}

// Configure applies the connection PRAGMAs every database handle needs.
// Foreign keys must be on for ON DELETE CASCADE from authors to books.
func Configure(db *bun.DB, busyTimeout time.Duration) error {
	_, err := db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return errors.Wrap(err, "failed to enable foreign keys")
	}

	// WAL is not available for in-memory databases; sqlite silently keeps
	// the "memory" journal mode there.
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return errors.Wrap(err, "failed to enable WAL mode")
	}

	_, err = db.Exec("PRAGMA busy_timeout=?", busyTimeout.Milliseconds())
	if err != nil {
		return errors.Wrap(err, "failed to set busy_timeout")
	}

	return nil
}
