package storage

import (
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/yurykabanov/restorer/pkg/util"
)

// OpenSqlite opens the database and brings its schema up to date. A single
// connection is kept open so that sqlite transactions never interleave.
func OpenSqlite(dsn, databaseName, migrationsPath string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to connect to DB")
	}

	db.SetMaxOpenConns(1)
	db.MapperFunc(util.CamelToSnakeCase)

	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "Unable to create instance of migrate")
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsPath, databaseName, driver)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "Unable to load migrations")
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		_ = db.Close()
		return nil, errors.Wrap(err, "Unable to migrate DB")
	}

	return db, nil
}
