// Command gig-migrate applies or rolls back the gig schema by hand.
//
//	gig-migrate up
//	gig-migrate down
//	gig-migrate to 2
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"ms-gigs/internal/app"
	"ms-gigs/internal/config"
	"ms-gigs/internal/database/migrations"
	"ms-gigs/internal/logger"
)

const usage = "usage: gig-migrate up | down | to <version>"

type migrator interface {
	MigrateUp() error
	MigrateDown() error
	MigrateTo(version uint) error
	Close() error
}

func main() {
	if !migrate() {
		os.Exit(1)
	}
}

func migrate() bool {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logger.NewLogger(cfg.Log.Dir, "gig-migrate")
	defer log.Close()

	db, err := app.OpenDB(context.Background(), cfg.Database, log)
	if err != nil {
		log.Error("DATABASE", fmt.Sprintf("Failed to connect: %v", err))
		return false
	}

	runner := migrations.NewRunner(db, migrations.MigrateOptions{
		MigrationsDir: cfg.Migrations.Dir,
	}, log)
	if err := run(os.Args[1:], runner, log); err != nil {
		log.Error("MIGRATE", err.Error())
		return false
	}
	return true
}

// run executes one migration command and closes m, which also releases
// the database handle the runner was built on.
func run(args []string, m migrator, log *logger.Logger) (err error) {
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if len(args) == 0 {
		return errors.New(usage)
	}
	switch args[0] {
	case "up":
		if len(args) != 1 {
			return errors.New(usage)
		}
		err = m.MigrateUp()
	case "down":
		if len(args) != 1 {
			return errors.New(usage)
		}
		err = m.MigrateDown()
	case "to":
		if len(args) != 2 {
			return errors.New(usage)
		}
		version, parseErr := strconv.ParseUint(args[1], 10, 32)
		if parseErr != nil {
			return fmt.Errorf("version %q is not a number", args[1])
		}
		err = m.MigrateTo(uint(version))
	default:
		return fmt.Errorf("unknown command %q; %s", args[0], usage)
	}
	if err != nil {
		return err
	}
	log.Info("MIGRATE", fmt.Sprintf("%v done", args))
	return nil
}
