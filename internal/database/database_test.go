package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"roomrelay/backend/internal/models"
)

func TestDialector(t *testing.T) {
	for _, driver := range []string{"", "postgres", "mysql", "sqlite"} {
		d, err := Dialector(driver, "dsn")
		require.NoError(t, err, driver)
		require.NotNil(t, d)
	}

	_, err := Dialector("oracle", "dsn")
	require.ErrorContains(t, err, "unsupported database driver")
}

func TestConnect_Migrates(t *testing.T) {
	req := require.New(t)

	db, err := Connect("sqlite", "file:database_test?mode=memory&cache=shared&_pragma=foreign_keys(1)")
	req.NoError(err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	req.True(db.Migrator().HasTable(&models.Room{}))
	req.True(db.Migrator().HasTable(&models.Message{}))
	req.True(db.Migrator().HasIndex(&models.Message{}, "ClientOffset"))
	req.True(db.Migrator().HasIndex(&models.Message{}, "CreatedAt"))
	req.True(db.Migrator().HasIndex(&models.Room{}, "Name"))
}
