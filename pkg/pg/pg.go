package pg

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

type txContextKey string

const txKey txContextKey = "trx"

// DB routes queries to a read or a write pool. A storage transaction opened with
// WithinTransaction travels in the context and takes precedence over both pools.
type DB struct {
	read   *gorm.DB
	write  *gorm.DB
	txOpts *sql.TxOptions
}

// New wraps already opened handles using the driver's default isolation.
// Tests pass the same sqlite handle twice.
func New(read, write *gorm.DB) *DB {
	return &DB{read: read, write: write}
}

func Create(config Config, withDebug bool) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(config.DSN()),
		&gorm.Config{
			NamingStrategy: schema.NamingStrategy{
				SingularTable: true,
			},
			TranslateError: true,
		})
	if err != nil {
		return nil, err
	}

	if withDebug {
		db = db.Debug()
	}
	return db, nil
}

func CreateReadWrite(readConfig Config, writeConfig Config, withDebug bool) (*DB, error) {
	read, err := Create(readConfig, withDebug)
	if err != nil {
		return nil, err
	}
	write, err := Create(writeConfig, withDebug)
	if err != nil {
		return nil, err
	}
	return &DB{read: read, write: write, txOpts: &sql.TxOptions{Isolation: sql.LevelReadCommitted}}, nil
}

// WithinTransaction runs fn inside a storage transaction (read committed on postgres).
// Nested calls reuse the outer transaction through a savepoint.
func (r *DB) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx.Transaction(func(inner *gorm.DB) error {
			return fn(context.WithValue(ctx, txKey, inner))
		})
	}
	return r.write.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey, tx))
	}, r.opts()...)
}

func (r *DB) opts() []*sql.TxOptions {
	if r.txOpts == nil {
		return nil
	}
	return []*sql.TxOptions{r.txOpts}
}

func (r *DB) Write(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx
	}
	return r.write.WithContext(ctx)
}

func (r *DB) Read(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx
	}
	return r.read.WithContext(ctx)
}

// Ping checks both pools.
func (r *DB) Ping(ctx context.Context) error {
	for name, g := range map[string]*gorm.DB{"read": r.read, "write": r.write} {
		sqlDB, err := g.DB()
		if err != nil {
			return fmt.Errorf("%s pool: %w", name, err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("%s pool: %w", name, err)
		}
	}
	return nil
}
