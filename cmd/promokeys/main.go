// Command promokeys acquires promo codes for one game with a pool of workers.
//
// Usage:
//
//	promokeys -game "Riding Extreme 3D" -workers 4 -keys 1
//	promokeys -config promokeys.yaml
//	promokeys -catalog games.json -list
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"promokeys/internal/collector"
	"promokeys/internal/config"
	"promokeys/internal/coordinator"
	"promokeys/internal/core"
	"promokeys/internal/keystore"
	"promokeys/internal/metrics"
	"promokeys/internal/progress"
	"promokeys/internal/promo"
	"promokeys/internal/ratelimit"
	"promokeys/internal/worker"
)

const (
	ExitSuccess    = 0
	ExitIncomplete = 1
	ExitError      = 2
)

type options struct {
	configPath string
	list       bool
	output     string
	quiet      bool
	verbose    bool
	color      bool
	deadline   time.Duration

	catalog     string
	game        string
	workers     int
	keys        int
	minDelay    time.Duration
	stagger     bool
	baseURL     string
	rps         int
	storeDriver string
	storeDSN    string
	metricsAddr string
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to YAML config file")
	flag.BoolVar(&opts.list, "list", false, "list the games in the catalog and exit")
	flag.StringVar(&opts.output, "output", "text", "summary format: text, json")
	flag.BoolVar(&opts.quiet, "quiet", false, "suppress progress output")
	flag.BoolVar(&opts.verbose, "verbose", false, "log requests and responses, print every attempt")
	flag.BoolVar(&opts.color, "color", false, "colorize severity tags")
	flag.DurationVar(&opts.deadline, "deadline", 0, "stop the batch after this long (0 = no limit)")
	flag.StringVar(&opts.catalog, "catalog", config.DefaultCatalogPath, "path to the game catalog (JSON)")
	flag.StringVar(&opts.game, "game", "", "game name from the catalog")
	flag.IntVar(&opts.workers, "workers", 1, "number of concurrent workers")
	flag.IntVar(&opts.keys, "keys", 1, "keys to acquire per worker")
	flag.DurationVar(&opts.minDelay, "min-delay", 0, "minimum wait before each registration attempt")
	flag.BoolVar(&opts.stagger, "stagger", false, "delay each worker start by up to 5s")
	flag.StringVar(&opts.baseURL, "base-url", config.DefaultBaseURL, "promo API base URL")
	flag.IntVar(&opts.rps, "rps", 0, "request cap shared by all workers (0 = unlimited)")
	flag.StringVar(&opts.storeDriver, "store", "memory", "key store driver: memory, sqlite3, postgres, mysql")
	flag.StringVar(&opts.storeDSN, "dsn", "", "key store data source name")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flag.Parse()

	if opts.output != "text" && opts.output != "json" {
		fmt.Fprintf(os.Stderr, "error: --output must be 'text' or 'json', got %q\n", opts.output)
		return ExitError
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitError
	}

	catalog, err := config.LoadCatalog(cfg.Catalog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	if opts.list {
		listGames(os.Stdout, catalog)
		return ExitSuccess
	}

	if cfg.Game == "" {
		fmt.Fprintln(os.Stderr, "error: --game is required (use --list to see the catalog)")
		return ExitError
	}
	game, ok := catalog.Lookup(cfg.Game)
	if !ok {
		fmt.Fprintf(os.Stderr, "error: game %q is not in %s (known: %s)\n", cfg.Game, cfg.Catalog, strings.Join(catalog.Names(), ", "))
		return ExitError
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if opts.deadline > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.deadline)
		defer cancel()
	}

	store, err := keystore.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitError
	}
	defer store.Close()

	client := promo.NewClient(cfg.API.BaseURL, cfg.API.Timeout)
	client.Limiter = ratelimit.NewRateLimiter(cfg.API.RPS)
	if opts.verbose {
		client.Debug = promo.NewDebugLogger(os.Stderr)
	}

	coll := collector.NewCollector()
	target := cfg.Run.Workers * cfg.Run.KeysPerWorker
	prog := progress.NewProgress(coll, target, opts.quiet)
	prog.SetVerbose(opts.verbose)
	prog.SetColor(opts.color)
	sink := core.MultiSink{coll, prog, metrics.NewRecorder()}

	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr)
		srv.Start()
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
		}()
		prog.Printf("Serving metrics on %s/metrics", cfg.Metrics.Addr)
	}

	coord := coordinator.NewCoordinator(sink)
	coord.StaggerMax = cfg.Run.StaggerMax

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			if !opts.quiet {
				fmt.Fprintf(os.Stderr, "\nReceived interrupt signal, stopping %d worker(s)...\n", coord.ActiveWorkers())
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	workflow := &worker.Workflow{
		Game:          game,
		API:           client,
		Store:         store,
		Policy:        core.NewDelayPolicy(cfg.Run.MinDelay),
		Clock:         core.RealClock{},
		LoginCooldown: cfg.Run.LoginCooldown,
	}

	prog.Printf("promokeys starting: %d worker(s) x %d key(s) for %q", cfg.Run.Workers, cfg.Run.KeysPerWorker, game.Name)
	if limit := client.Limiter.Limit(); limit > 0 {
		prog.Printf("Request cap: %.0f req/s shared by all workers", limit)
	}
	prog.Start()
	res := coord.Run(ctx, workflow, cfg.Run.Workers, cfg.Run.KeysPerWorker, cfg.Run.Stagger)
	prog.Stop()
	coll.Close()

	summary := coll.Compute()
	if opts.output == "json" {
		collector.FormatJSON(os.Stdout, summary)
	} else {
		collector.FormatText(os.Stdout, summary)
	}

	if res.Cancelled || res.Failed > 0 {
		return ExitIncomplete
	}
	return ExitSuccess
}

// loadConfig reads the config file when given, then lets explicitly set
// flags override it.
func loadConfig(opts options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(opts.configPath); err != nil {
			return nil, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "catalog":
			cfg.Catalog = opts.catalog
		case "game":
			cfg.Game = opts.game
		case "workers":
			cfg.Run.Workers = opts.workers
		case "keys":
			cfg.Run.KeysPerWorker = opts.keys
		case "min-delay":
			cfg.Run.MinDelay = opts.minDelay
		case "stagger":
			cfg.Run.Stagger = opts.stagger
		case "base-url":
			cfg.API.BaseURL = opts.baseURL
		case "rps":
			cfg.API.RPS = opts.rps
		case "store":
			cfg.Store.Driver = opts.storeDriver
		case "dsn":
			cfg.Store.DSN = opts.storeDSN
		case "metrics-addr":
			cfg.Metrics.Addr = opts.metricsAddr
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// listGames prints one line per catalog game, in file order.
func listGames(w io.Writer, catalog *config.Catalog) {
	for _, g := range catalog.Games() {
		fmt.Fprintf(w, "%-30s %-10s %v\n", g.Name, g.Platform, g.EventsDelay())
	}
}
