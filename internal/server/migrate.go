package server

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrate applies database migrations from the given directory.
// dir example: file://migrations
func Migrate(dir string, dsn string, direction string, steps int) error {
	if dir == "" {
		dir = "file://migrations"
	}
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
		if dsn == "" {
			host := getEnvDefault("POSTGRES_HOST", "localhost")
			port := getEnvDefault("POSTGRES_PORT", "5432")
			user := os.Getenv("POSTGRES_USER")
			pass := os.Getenv("POSTGRES_PASSWORD")
			db := os.Getenv("POSTGRES_DB")
			ssl := getEnvDefault("POSTGRES_SSLMODE", "disable")
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
		}
	}

	if direction != "up" && direction != "down" {
		return fmt.Errorf("unknown direction: %s", direction)
	}
	m, err := migrate.New(dir, dsn)
	if err != nil {
		return err
	}
	var mErr error
	switch direction {
	case "up":
		if steps > 0 {
			mErr = m.Steps(steps)
		} else {
			mErr = m.Up()
		}
	case "down":
		if steps > 0 {
			mErr = m.Steps(-steps)
		} else {
			mErr = m.Down()
		}
	}
	if errors.Is(mErr, migrate.ErrNoChange) {
		return nil
	}
	return mErr
}

func getEnvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
