package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/basekick-labs/welllog/internal/api"
	"github.com/basekick-labs/welllog/internal/archive"
	"github.com/basekick-labs/welllog/internal/catalog"
	"github.com/basekick-labs/welllog/internal/config"
	"github.com/basekick-labs/welllog/internal/database"
	"github.com/basekick-labs/welllog/internal/las"
	"github.com/basekick-labs/welllog/internal/logger"
	"github.com/basekick-labs/welllog/internal/metrics"
	"github.com/basekick-labs/welllog/internal/retention"
	"github.com/basekick-labs/welllog/internal/shutdown"
	"github.com/basekick-labs/welllog/internal/storage"
	"github.com/rs/zerolog/log"
)

// Version is set at build time
var Version = "dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "project":
			os.Exit(runProject(os.Args[2:], os.Stdout, os.Stderr))
		case "version":
			fmt.Println(Version)
			return
		case "serve":
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\nusage: welllog [serve | project [flags] file.las | version]\n", os.Args[1])
			os.Exit(2)
		}
	}
	serve()
}

// runProject parses one LAS file from disk and prints its JSON projection.
func runProject(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("project", flag.ContinueOnError)
	fs.SetOutput(stderr)
	maxCurves := fs.Int("max-curves", 40, "number of leading curves to include")
	thin := fs.Int("thin", 12, "keep every n-th sample")
	strict := fs.Bool("strict", false, "fail on malformed header lines and empty segments")
	noNull := fs.Bool("no-null", false, "ignore the ~W NULL value and fill bad samples with 0")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: welllog project [-max-curves 40] [-thin 12] [-strict] file.las")
		return 2
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	opts := las.DefaultOptions()
	opts.Strict = *strict
	opts.UseNullValue = !*noNull

	doc, err := las.NewParser(opts).ParseBytes(data)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	for _, w := range doc.Warnings() {
		fmt.Fprintf(stderr, "warning: %s\n", w)
	}

	out, err := las.AppendProjectionJSON(nil, doc, *maxCurves, *thin)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	out = append(out, '\n')
	if _, err := stdout.Write(out); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func serve() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Server.ValidateTLS(); err != nil {
		fmt.Fprintf(os.Stderr, "TLS configuration error: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", Version).Msg("Starting welllog...")

	metrics.Init(logger.Get("metrics"))

	shutdownCoordinator := shutdown.New(30*time.Second, logger.Get("shutdown"))

	storageBackend, err := storage.New(cfg.Storage, logger.Get("storage"))
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("Failed to initialize storage backend")
	}
	shutdownCoordinator.Register("storage", storageBackend, shutdown.PriorityStorage)

	readiness := map[string]api.ReadinessCheck{}

	var wellCatalog *catalog.Catalog
	if cfg.Catalog.Enabled {
		wellCatalog, err = catalog.New(cfg.Catalog.DBPath, logger.Get("catalog"))
		if err != nil {
			log.Fatal().Err(err).Str("db_path", cfg.Catalog.DBPath).Msg("Failed to open well catalog")
		}
		shutdownCoordinator.Register("catalog", wellCatalog, shutdown.PriorityCatalog)
		readiness["catalog"] = wellCatalog.Ping
	} else {
		log.Warn().Msg("Well catalog disabled - uploads are stored but cannot be listed or re-projected")
	}

	var archiver *archive.Writer
	if cfg.Archive.Enabled {
		archiver = archive.NewWriter(cfg.Archive, logger.Get("archive"))
	}

	var statsService *database.StatsService
	if cfg.Archive.Enabled && wellCatalog != nil {
		db, err := database.New(cfg.Database, logger.Get("database"))
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize DuckDB - curve statistics disabled")
		} else {
			shutdownCoordinator.Register("database", db, shutdown.PriorityDatabase)
			readiness["database"] = db.Ping
			statsService = database.NewStatsService(db, storageBackend, cfg.Database.TempDir,
				database.NewStatsCache(0, 0), logger.Get("stats"))
		}
	}

	var onPurge func(string)
	if statsService != nil {
		onPurge = statsService.Invalidate
	}
	scheduler, err := newRetention(cfg.Retention, wellCatalog, storageBackend, onPurge)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize retention scheduler")
	}
	if scheduler != nil {
		if err := scheduler.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start retention scheduler")
		}
		shutdownCoordinator.Register("retention", scheduler, shutdown.PriorityRetention)
	} else if cfg.Retention.Enabled {
		log.Warn().Msg("Retention needs the well catalog - purge scheduler disabled")
	}

	parser := las.NewParser(las.Options{
		Strict:           cfg.Parser.Strict,
		UseNullValue:     cfg.Parser.UseNullValue,
		DefaultNullValue: cfg.Parser.DefaultNullValue,
		ValidateDepth:    cfg.Parser.ValidateDepth,
	})

	server := api.NewServer(&api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:    time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MaxPayloadSize:  cfg.Server.MaxPayloadSize,
		TLSEnabled:      cfg.Server.TLSEnabled,
		TLSCertFile:     cfg.Server.TLSCertFile,
		TLSKeyFile:      cfg.Server.TLSKeyFile,
	}, logger.Get("server"))
	server.RegisterRoutes()
	for name, check := range readiness {
		server.AddReadinessCheck(name, check)
	}

	wellsHandler := api.NewWellsHandler(&api.WellsConfig{
		Parser:   parser,
		Storage:  storageBackend,
		Catalog:  wellCatalog,
		Archiver: archiver,
		Stats:    statsService,
		Upload:   cfg.Upload,
		Logger:   logger.Get("wells"),
	})
	wellsHandler.RegisterRoutes(server.GetApp())

	// first step: stop accepting new requests
	shutdownCoordinator.RegisterHook("http-server", func(ctx context.Context) error {
		return server.Close()
	}, shutdown.PriorityHTTPServer)

	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start HTTP server")
	}

	protocol := "HTTP"
	if cfg.Server.TLSEnabled {
		protocol = "HTTPS"
	}
	log.Info().
		Int("port", cfg.Server.Port).
		Str("protocol", protocol).
		Str("storage", storageBackend.Type()).
		Bool("catalog", wellCatalog != nil).
		Bool("archive", archiver != nil).
		Bool("stats", statsService != nil).
		Bool("retention", scheduler != nil).
		Str("version", Version).
		Msg("welllog is ready!")

	sig := shutdownCoordinator.WaitForSignal()
	log.Info().Str("signal", sig.String()).Msg("Initiating graceful shutdown...")

	if err := shutdownCoordinator.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Shutdown completed with errors")
		os.Exit(1)
	}

	log.Info().Msg("welllog shutdown complete")
}

// newRetention builds the purge scheduler. It returns nil when retention is
// disabled or there is no catalog to find expired wells in.
func newRetention(cfg config.RetentionConfig, wells *catalog.Catalog, store storage.Backend, onPurge func(string)) (*retention.Scheduler, error) {
	if !cfg.Enabled || wells == nil {
		return nil, nil
	}
	return retention.New(&retention.Config{
		Catalog:       wells,
		Storage:       store,
		Schedule:      cfg.Schedule,
		MaxAge:        time.Duration(cfg.MaxAgeHours) * time.Hour,
		MaxConcurrent: cfg.MaxConcurrent,
		OnPurge:       onPurge,
		Logger:        logger.Get("retention"),
	})
}
