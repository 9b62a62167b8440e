package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/crosslist/backend/internal/domain/marketplace"
	"github.com/crosslist/backend/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	require.NoError(t, err)
	return &Database{DB: gormDB}, mock, mockDB
}

func TestDatabase_Ping(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	mock.ExpectPing()
	assert.NoError(t, db.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.ErrorIs(t, db.Ping(context.Background()), sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_Close(t *testing.T) {
	db, mock, _ := newMockDatabase(t)

	mock.ExpectClose()
	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormListingRepository_UpsertSQL(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	repo := NewGormListingRepository(db.DB)
	listing, err := marketplace.NewMarketplaceListing(uuid.New(), marketplace.CodeEbay)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO "marketplace_listings" .* ON CONFLICT \("item_id","marketplace"\) DO UPDATE SET "remote_id"="excluded"."remote_id"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpsertListing(context.Background(), listing))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewDatabase_SQLite(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "crosslist.db"),
		MaxOpenConns: 25,
	}

	db, err := NewDatabase(context.Background(), cfg, WithConnectTimeout(time.Second))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.AutoMigrate())
	assert.True(t, db.DB.Migrator().HasTable("marketplace_listings"))
	assert.True(t, db.DB.Migrator().HasIndex("marketplace_listings", "uq_marketplace_listings_pair"))

	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
	assert.NoError(t, db.Ping(context.Background()))
}

func TestNewDatabase_UnsupportedDriver(t *testing.T) {
	_, err := NewDatabase(context.Background(), &config.DatabaseConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestDriverName(t *testing.T) {
	assert.Equal(t, "postgres", driverName(&config.DatabaseConfig{}))
	assert.Equal(t, "sqlite", driverName(&config.DatabaseConfig{Driver: "sqlite"}))
}
