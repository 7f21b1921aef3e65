// Command vtagger-server hosts the HTTP control-plane surface: sync
// start/cancel, progress poll and SSE stream, import-status poll, and
// dimension CRUD, plus a Prometheus /metrics endpoint.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/catherinevee/vtagger/internal/api"
	"github.com/catherinevee/vtagger/internal/cache"
	"github.com/catherinevee/vtagger/internal/config"
	"github.com/catherinevee/vtagger/internal/credentials"
	"github.com/catherinevee/vtagger/internal/dimension"
	"github.com/catherinevee/vtagger/internal/importstatus"
	"github.com/catherinevee/vtagger/internal/logging"
	"github.com/catherinevee/vtagger/internal/progress"
	"github.com/catherinevee/vtagger/internal/store"
	"github.com/catherinevee/vtagger/internal/sync"
	"github.com/catherinevee/vtagger/internal/umbrella"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log := logging.Component("server")

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	creds, err := credentials.NewResolver(cfg.MasterKey, cfg.DatabasePath+".credentials").Resolve()
	if err != nil {
		return fmt.Errorf("resolving credentials: %w", err)
	}

	client := umbrella.New(cfg.UmbrellaAPIBase, cfg.UmbrellaAPIBase+"/tokenizer", umbrella.Credentials{
		Username: creds.Username,
		Password: creds.Password,
	})

	dims := dimension.New(st)
	if err := dims.Reload(); err != nil {
		return fmt.Errorf("loading dimensions: %w", err)
	}

	bcast := progress.New()
	coord := sync.New(client, dims, st, bcast, cfg.OutputDir)

	var terminalCache cache.TerminalCache
	if cfg.RedisAddr != "" {
		terminalCache = cache.NewRedis(cfg.RedisAddr)
	} else {
		terminalCache = cache.NewMemory()
	}
	imports := importstatus.New(client, terminalCache)

	apiServer := api.New(coord, dims, st, bcast, imports, cfg.CORSOrigins)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", apiServer)

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	log.Info().Str("addr", addr).Msg("starting server")
	return http.ListenAndServe(addr, mux)
}
