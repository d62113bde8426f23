// Package database opens the SQLite database and keeps its schema up to date.
package database

import (
	"embed"
	"fmt"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open opens the database at path and runs all pending migrations. Use ":memory:" for a throwaway database.
func Open(l log.Logger, path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	// Every connection to ":memory:" gets its own database
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "pinging database")
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(&gooseLogger{l: level.Info(log.With(l, "component", "migrations"))})
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "setting migration dialect")
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "running migrations")
	}
	return db, nil
}

type gooseLogger struct {
	l log.Logger
}

func (g *gooseLogger) Fatal(v ...interface{}) {
	g.l.Log("msg", strings.TrimSpace(fmt.Sprint(v...)))
}

func (g *gooseLogger) Fatalf(format string, v ...interface{}) {
	g.l.Log("msg", strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g *gooseLogger) Print(v ...interface{}) {
	g.l.Log("msg", strings.TrimSpace(fmt.Sprint(v...)))
}

func (g *gooseLogger) Println(v ...interface{}) {
	g.l.Log("msg", strings.TrimSpace(fmt.Sprint(v...)))
}

func (g *gooseLogger) Printf(format string, v ...interface{}) {
	g.l.Log("msg", strings.TrimSpace(fmt.Sprintf(format, v...)))
}
