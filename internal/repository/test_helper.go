package repository

import (
	"testing"

	"github.com/nimasrn/rental-gateway/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Entities lists every table this package owns, for AutoMigrate in tests and local runs.
func Entities() []any {
	return []any{
		&TransactionEntity{},
		&LineItemEntity{},
		&RentalLifecycleEntity{},
		&ReturnEventEntity{},
		&StatusLogEntity{},
	}
}

type testDB struct {
	*pg.DB
	rawDB *gorm.DB
}

// NewTestDB opens a migrated in-memory sqlite database behind a pg.DB.
// One connection only: every ":memory:" connection would otherwise be a separate database.
func NewTestDB(t testing.TB) *pg.DB {
	return setupTestDB(t).DB
}

func setupTestDB(t testing.TB) *testDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(Entities()...)
	require.NoError(t, err)

	return &testDB{
		DB:    pg.New(db, db),
		rawDB: db,
	}
}
