package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"strings"

	"github.com/dewey/feed-aggregator/cache"
	"github.com/dewey/feed-aggregator/database"
	"github.com/dewey/feed-aggregator/entity"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/peterbourgon/ff/v3"
)

// Imports feed configurations from a plain text file. Every line holds an entity key followed by its feed URLs:
//
//	post:12 https://example.com/feed https://example.org/rss.xml
//
// Existing configurations keep their options, only the URLs are replaced. The cache of every imported entity is
// invalidated.
func main() {
	fs := flag.NewFlagSet("importer", flag.ExitOnError)
	var (
		databasePath = fs.String("database-path", "feed-aggregator.db", "the path to the sqlite database")
		importPath   = fs.String("file", "feeds.txt", "the file to import feed configurations from")
	)
	ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("FA"))

	l := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	l = level.NewFilter(l, level.AllowInfo())
	l = log.With(l, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	db, err := database.Open(l, *databasePath)
	if err != nil {
		level.Error(l).Log("msg", "error opening database", "err", err)
		return
	}
	defer db.Close()

	f, err := os.Open(*importPath)
	if err != nil {
		level.Error(l).Log("err", err)
		return
	}
	defer f.Close()

	ctx := context.Background()
	er := entity.NewRepository(l, db)
	cs := cache.NewStore(l, cache.NewRepository(l, db))

	var imported int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		ref, err := entity.ParseRef(fields[0])
		if err != nil {
			level.Error(l).Log("msg", "skipping line", "line", line, "err", err)
			continue
		}
		cfg, err := er.Config(ctx, ref)
		if err != nil {
			level.Error(l).Log("msg", "error reading existing config", "entity", ref, "err", err)
			continue
		}
		cfg.URLs = fields[1:]
		if err := er.Save(ctx, ref, cfg); err != nil {
			level.Error(l).Log("msg", "error saving config", "entity", ref, "err", err)
			continue
		}
		if err := cs.Invalidate(ctx, ref.Key()); err != nil {
			continue
		}
		imported++
	}
	if err := scanner.Err(); err != nil {
		level.Error(l).Log("err", err)
		return
	}
	level.Info(l).Log("msg", "import finished", "entities", imported)
}
