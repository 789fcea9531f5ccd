// Package db opens the database and keeps the schema up to date
package db

import (
	"errors"
	"fmt"
	"os"
	"time"

	"bitwise74/accounts-api/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DefaultSQLitePath = "database.db"

type Options struct {
	Driver string // sqlite or postgres
	DSN    string
	Debug  bool
}

func New(o Options) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch o.Driver {
	case "", "sqlite":
		path := o.DSN
		if path == "" {
			path = DefaultSQLitePath
		}

		// If running in a docker container don't allow the sqlite file to be created.
		// The host should instead mount it using volumes
		if inDocker() && path == DefaultSQLitePath {
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				return nil, errors.New("SQLite database file not mounted, please use docker volumes to mount it to /app/database.db")
			}
		}

		dialector = sqlite.Open(path + "?_busy_timeout=5000&_foreign_keys=on")
	case "postgres":
		if o.DSN == "" {
			return nil, errors.New("no postgres dsn provided")
		}

		dialector = postgres.Open(o.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", o.Driver)
	}

	level := logger.Silent
	if o.Debug {
		level = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(level),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database, %w", o.Driver, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.User{},
		&model.EmailAddress{},
		&model.EmailConfirmation{},
		&model.AuthToken{},
		&model.SocialAccount{},
	)
	if err != nil {
		return fmt.Errorf("failed to automigrate tables, %w", err)
	}

	return nil
}
