// Command vtagger is the CLI entrypoint: it wires config, storage, the
// upstream client, the dimension manager, and the sync coordinator, then
// dispatches to a cobra subcommand. Exit codes follow the control-plane
// contract: 0 on success, 1 on any validation, import, auth, or runtime
// error.
package main

import (
	"fmt"
	"os"

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
	"github.com/spf13/cobra"
)

// app bundles every collaborator a subcommand might need; each
// subcommand's RunE builds one with newApp rather than using package
// globals.
type app struct {
	cfg         *config.Config
	store       *store.Store
	client      *umbrella.Client
	dimensions  *dimension.Manager
	broadcaster *progress.Broadcaster
	coordinator *sync.Coordinator
	imports     *importstatus.Monitor
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	creds, err := credentials.NewResolver(cfg.MasterKey, cfg.DatabasePath+".credentials").Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolving credentials: %w", err)
	}

	client := umbrella.New(cfg.UmbrellaAPIBase, cfg.UmbrellaAPIBase+"/tokenizer", umbrella.Credentials{
		Username: creds.Username,
		Password: creds.Password,
	})

	dims := dimension.New(st)
	if err := dims.Reload(); err != nil {
		return nil, fmt.Errorf("loading dimensions: %w", err)
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

	return &app{
		cfg:         cfg,
		store:       st,
		client:      client,
		dimensions:  dims,
		broadcaster: bcast,
		coordinator: coord,
		imports:     imports,
	}, nil
}

func main() {
	root := &cobra.Command{
		Use:   "vtagger",
		Short: "Virtual tag resolution and synchronization engine",
		Long: `vtagger resolves cost-allocation virtual tags from a chained rule set
and synchronizes the results to the upstream governance-tags import API.`,
	}

	root.AddCommand(newSyncCmd())
	root.AddCommand(newCancelCmd())
	root.AddCommand(newDimensionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
