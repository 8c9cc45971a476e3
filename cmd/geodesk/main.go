// Command geodesk runs the GeoJSON editing backend: the REST API over
// the file store, the save_all database, and the debug surfaces.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mirrorlake/geodesk/internal/config"
	"github.com/mirrorlake/geodesk/internal/db"
	"github.com/mirrorlake/geodesk/internal/fsutil"
	"github.com/mirrorlake/geodesk/internal/httputil"
	"github.com/mirrorlake/geodesk/internal/server"
	"github.com/mirrorlake/geodesk/internal/store"
	"github.com/mirrorlake/geodesk/internal/timeutil"
	"github.com/mirrorlake/geodesk/internal/version"
)

var (
	configPath    = flag.String("config", "", "Path to JSON config file (optional)")
	listen        = flag.String("listen", "", "Listen address (overrides config)")
	dataDir       = flag.String("data", "", "GeoJSON data directory (overrides config)")
	dbPath        = flag.String("db", "", "sqlite database path (overrides config)")
	migrationsDir = flag.String("migrations", "", "Migrations directory; when set, migrations run before serving")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		log.Printf("geodesk %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg := config.Empty()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	addr := cfg.GetListenAddr()
	if *listen != "" {
		addr = *listen
	}
	dir := cfg.GetDataDir()
	if *dataDir != "" {
		dir = *dataDir
	}
	databasePath := cfg.GetDBPath()
	if *dbPath != "" {
		databasePath = *dbPath
	}

	// "geodesk migrate up|down|status" manages the schema and exits
	// instead of serving.
	if flag.NArg() > 0 && flag.Arg(0) == "migrate" {
		migDir := *migrationsDir
		if migDir == "" {
			migDir = "migrations"
		}
		db.RunMigrateCommand(flag.Args()[1:], databasePath, migDir)
		return
	}

	database, err := db.New(databasePath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if *migrationsDir != "" {
		if err := database.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
	}

	st := store.New(dir, fsutil.OSFileSystem{}, timeutil.RealClock{})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()

	// mount the admin debugging routes
	database.AttachAdminRoutes(mux)

	apiMux := server.NewServer(st, database, timeutil.RealClock{}).ServeMux()
	mux.Handle("/", apiMux)

	srv := &http.Server{
		Addr:    addr,
		Handler: httputil.LoggingMiddleware(mux),
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("geodesk %s listening on %s (data=%s db=%s)", version.Version, addr, dir, databasePath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server terminated: %v", err)
		}
	}()

	<-ctx.Done()
	log.Print("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	wg.Wait()
}
