package server

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophsync/internal/logging"
	"github.com/dmitrijs2005/gophsync/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubOpen(t *testing.T, db *sql.DB, err error) {
	t.Helper()
	old := sqlOpen
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		assert.Equal(t, "pgx", driver)
		return db, err
	}
	t.Cleanup(func() { sqlOpen = old })
}

func TestOpenDB_PingsPool(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing()
	stubOpen(t, db, nil)

	got, err := OpenDB(context.Background(), "postgres://x")
	require.NoError(t, err)
	assert.Same(t, db, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenDB_PingError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing().WillReturnError(errors.New("refused"))
	mock.ExpectClose()
	stubOpen(t, db, nil)

	_, err = OpenDB(context.Background(), "postgres://x")
	require.ErrorContains(t, err, "db ping error")
}

func TestOpenDB_OpenError(t *testing.T) {
	stubOpen(t, nil, errors.New("bad dsn"))

	_, err := OpenDB(context.Background(), "::")
	require.ErrorContains(t, err, "db open error")
}

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	return c
}

func TestNewServices_RequiresPassphraseForCodec(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewServices(context.Background(), testConfig(), db, logging.Nop(), true)
	assert.ErrorIs(t, err, config.ErrNoPassphrase)
}

func TestNewServices_Wires(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := testConfig()
	c.EncryptionPassphrase = "pass"

	s, err := NewServices(context.Background(), c, db, logging.Nop(), true)
	require.NoError(t, err)
	assert.NotNil(t, s.Sync)
	assert.NotNil(t, s.Hub)
	assert.NotNil(t, s.Users)
	assert.Nil(t, s.Archive, "archive is off without a bucket")

	// tooling may skip the codec
	_, err = NewServices(context.Background(), testConfig(), db, logging.Nop(), false)
	require.NoError(t, err)
}

func TestNewLogger(t *testing.T) {
	c := testConfig()
	c.LogLevel = "loud"
	_, _, err := NewLogger(c)
	require.Error(t, err)

	c.LogLevel = "debug"
	c.LogFile = filepath.Join(t.TempDir(), "server.log")
	l, closer, err := NewLogger(c)
	require.NoError(t, err)
	l.Info(context.Background(), "hello", "k", "v")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(c.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
