// Package database opens the relational store backing the registry and the
// metadata index.
package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var ErrUnsupportedDSN = errors.New("unsupported database DSN")

type Options struct {
	// Verbose logs every SQL statement.
	Verbose bool
}

// Open connects to the database named by dsn. postgres:// and postgresql://
// DSNs use the Postgres driver, sqlite:// DSNs and :memory: use SQLite.
// Duplicate-key violations are translated to gorm.ErrDuplicatedKey.
func Open(dsn string, opts Options) (*gorm.DB, error) {
	dialector, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}

	logLevel := gormlogger.Warn
	if opts.Verbose {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

func dialectorFor(dsn string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://")), nil
	case dsn == ":memory:":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDSN, dsn)
	}
}
