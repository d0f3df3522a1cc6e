// wxserver is the weather daemon. It keeps forecast cycles and station
// reports warm and answers simulator queries over the local UDP channel.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/skysim/noawx/internal/api"
	"github.com/skysim/noawx/internal/channel"
	"github.com/skysim/noawx/internal/config"
	"github.com/skysim/noawx/internal/daemon"
	"github.com/skysim/noawx/internal/scheduler"
	"github.com/skysim/noawx/internal/sources/grib"
	"github.com/skysim/noawx/internal/sources/metar"
	"github.com/skysim/noawx/internal/websocket"
	"github.com/skysim/noawx/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	flag.Parse()
	rootPath := flag.Arg(0)
	if rootPath == "" {
		rootPath = "."
	}

	cfg, err := config.LoadOrCreate(rootPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   config.LogFile(rootPath),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting weather server",
		logger.String("version", Version),
		logger.String("root", rootPath))

	// Station index persists across restarts so station queries work before
	// the first refresh completes.
	index, err := metar.NewStationIndex(filepath.Join(config.Dir(rootPath), "stations.db"), log)
	if err != nil {
		log.Error("Failed to open station index", logger.Error(err))
		os.Exit(1)
	}
	defer index.Close()

	metarSvc := metar.NewService(cfg.Metar, index, log)

	gribCfg := cfg.Grib
	gribCfg.CacheDir = cfg.CacheDir(rootPath)
	gribRepo := grib.NewRepository(gribCfg, log)
	if err := gribRepo.Rescan(); err != nil {
		log.Warn("Initial cycle scan failed", logger.Error(err))
	}

	wsServer := websocket.NewServer(log)
	go wsServer.Run()

	wxDaemon := daemon.New(rootPath, gribRepo, metarSvc, wsServer, log)

	jobs := scheduler.New(cfg, metarSvc, gribRepo, wsServer, log)
	if err := jobs.Start(); err != nil {
		log.Error("Failed to start background jobs", logger.Error(err))
		os.Exit(1)
	}

	// A !shutdown on the channel stops the daemon the same way a signal does.
	shutdownCh := make(chan struct{})
	udpServer := channel.NewServer(cfg.Server, wxDaemon, func() {
		close(shutdownCh)
	}, log)
	if err := udpServer.Start(); err != nil {
		log.Error("Failed to start weather channel", logger.Error(err))
		os.Exit(1)
	}

	var statusServer *http.Server
	if cfg.Status.Enabled {
		handler := api.NewHandler(cfg, gribRepo, metarSvc, wxDaemon, wsServer, log)
		statusServer = &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Status.Host, cfg.Status.Port),
			Handler:      api.NewRouter(handler).Routes(),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
		go func() {
			log.Info("Starting status server", logger.String("addr", statusServer.Addr))
			if err := statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Status server error", logger.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("Shutting down on signal")
	case <-shutdownCh:
		log.Info("Shutting down on channel command")
	}

	jobs.Stop()

	if err := udpServer.Stop(); err != nil {
		log.Error("Weather channel shutdown error", logger.Error(err))
	}

	if statusServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Status server shutdown error", logger.Error(err))
		}
		cancel()
	}

	log.Info("Server fully stopped")
}
