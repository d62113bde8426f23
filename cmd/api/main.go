package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dewey/feed-aggregator/cache"
	"github.com/dewey/feed-aggregator/database"
	"github.com/dewey/feed-aggregator/entity"
	"github.com/dewey/feed-aggregator/feed"
	"github.com/dewey/feed-aggregator/service/aggregator"
	"github.com/go-chi/chi/v5"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/peterbourgon/ff/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type maxBytesHandler struct {
	h http.Handler
	n int64
}

func (h *maxBytesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.n)
	h.h.ServeHTTP(w, r)
}

func main() {
	fs := flag.NewFlagSet("feed-aggregator", flag.ExitOnError)
	var (
		environment  = fs.String("environment", "develop", "the environment we are running in")
		port         = fs.String("port", "8080", "the port feed-aggregator is running on")
		databasePath = fs.String("database-path", "feed-aggregator.db", "the path to the sqlite database holding entity configs and the cache")
		cacheBackend = fs.String("cache-backend", "sqlite", "where aggregated items are cached: sqlite or memory")
		hookToken    = fs.String("hook-token", "changeme", "the secret token for the hooks, to prevent other people from changing configs")
		fetchTimeout = fs.Duration("fetch-timeout", feed.DefaultTimeout, "the timeout for fetching a single feed")
		userAgent    = fs.String("user-agent", "feed-aggregator/1.0", "the user agent sent to feed servers")
		singleFlight = fs.Bool("single-flight", true, "share one aggregation between concurrent cache misses of the same entity")
	)

	ff.Parse(fs, os.Args[1:],
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("FA"),
	)

	// Heroku doesn't support EnvVarPrefixes so we have to overwrite this
	if os.Getenv("PORT") != "" {
		*port = os.Getenv("PORT")
	}

	l := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	switch strings.ToLower(*environment) {
	case "development":
		l = level.NewFilter(l, level.AllowInfo())
	case "prod":
		l = level.NewFilter(l, level.AllowError())
	}
	l = log.With(l, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	db, err := database.Open(l, *databasePath)
	if err != nil {
		level.Error(l).Log("msg", "error opening database", "err", err)
		return
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := aggregator.NewMetrics(reg)

	var cr cache.Repository
	switch *cacheBackend {
	case "memory":
		cr = cache.NewMemoryRepository()
	case "sqlite":
		cr = cache.NewRepository(log.With(l, "component", "cache"), db)
	default:
		level.Error(l).Log("err", "unknown cache backend, use sqlite or memory", "cache_backend", *cacheBackend)
		return
	}
	opts := []cache.Option{cache.WithObserver(metrics.CacheLookup)}
	if *singleFlight {
		opts = append(opts, cache.WithSingleFlight())
	}
	cs := cache.NewStore(log.With(l, "component", "cache"), cr, opts...)

	// Entries that expired while we were down are never read again
	if n, err := cs.Purge(context.Background()); err != nil {
		level.Error(l).Log("msg", "error purging expired cache entries", "err", err)
	} else {
		level.Info(l).Log("msg", "purged expired cache entries", "count", n)
	}

	fr := feed.NewRepository(log.With(l, "component", "feed"), &http.Client{Timeout: *fetchTimeout}, *userAgent)
	er := entity.NewRepository(log.With(l, "component", "entity"), db)
	agg := aggregator.NewAggregator(log.With(l, "component", "aggregator"), fr, metrics)
	svc := aggregator.NewService(l, agg, cs, er, *hookToken)

	// Set up HTTP API
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("feed-aggregator"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Mount("/api", aggregator.NewHandler(svc))

	level.Info(l).Log("msg", fmt.Sprintf("feed-aggregator is running on :%s", *port), "environment", *environment, "cache_backend", *cacheBackend)

	// Set up webserver and set max body size to 1MB, configs are tiny
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", *port),
		Handler:           &maxBytesHandler{h: r, n: 1 << 20},
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		level.Error(l).Log("err", err)
		return
	}
}
