package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"

	"popcorntracker/api"
	"popcorntracker/config"
	"popcorntracker/handlers"
	"popcorntracker/models"
	"popcorntracker/services/metadata"
	"popcorntracker/services/remote"
	"popcorntracker/services/store"
	"popcorntracker/services/syncer"
)

var errRemoteNotConfigured = errors.New("remote collection not configured")

// remoteGateway is the full remote surface: the worker's write path plus the
// shared view's record lookup.
type remoteGateway interface {
	syncer.Gateway
	FetchRecord(ctx context.Context, recordID string) (models.RemoteRecord, error)
}

// unconfiguredGateway stands in when no remote collection is configured.
// Sync stays disabled, so only an explicit login ever reaches it.
type unconfiguredGateway struct{}

func (unconfiguredGateway) FetchByUser(ctx context.Context, userID string) ([]models.RemoteRecord, error) {
	return nil, errRemoteNotConfigured
}

func (unconfiguredGateway) FetchRecord(ctx context.Context, recordID string) (models.RemoteRecord, error) {
	return models.RemoteRecord{}, errRemoteNotConfigured
}

func (unconfiguredGateway) Create(ctx context.Context, doc models.Document, userID, userEmail string) (models.RemoteRecord, error) {
	return models.RemoteRecord{}, errRemoteNotConfigured
}

func (unconfiguredGateway) Patch(ctx context.Context, recordID string, doc models.Document, userID, userEmail string) (models.RemoteRecord, error) {
	return models.RemoteRecord{}, errRemoteNotConfigured
}

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	configPath := os.Getenv("POPCORNTRACKER_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("data", "settings.json")
	}

	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			multiWriter := io.MultiWriter(os.Stdout, fileWriter)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	storeSvc, err := store.NewService(afero.NewOsFs(), settings.Storage.Directory)
	if err != nil {
		log.Fatalf("failed to init local store: %v", err)
	}

	syncEnabled := settings.Sync.Enabled
	var gateway remoteGateway
	if settings.Remote.URL != "" && settings.Remote.APIKey != "" {
		client, err := remote.NewClient(settings.Remote.URL, settings.Remote.APIKey, nil)
		if err != nil {
			log.Fatalf("failed to init remote client: %v", err)
		}
		gateway = client
	} else {
		log.Println("[main] remote collection not configured, running local-only")
		syncEnabled = false
		gateway = unconfiguredGateway{}
	}

	worker := syncer.NewWorker(gateway)
	if err := worker.Start(context.Background()); err != nil {
		log.Fatalf("failed to start sync worker: %v", err)
	}
	manager := syncer.NewManager(storeSvc, worker, syncEnabled)

	metaSvc := metadata.NewService(settings.Metadata.TMDBAPIKey, settings.Metadata.Language, nil)

	router := mux.NewRouter()
	api.Register(
		router,
		handlers.NewDocumentHandler(storeSvc, manager),
		handlers.NewItemsHandler(storeSvc, manager, metaSvc),
		handlers.NewConfigHandler(storeSvc, manager),
		handlers.NewAuthHandler(storeSvc, manager),
		handlers.NewSyncHandler(manager, storeSvc),
		handlers.NewSharedHandler(gateway),
	)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("[main] listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)
	<-shutdownChan
	log.Println("[main] shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] server shutdown: %v", err)
	}
	if err := worker.Stop(shutdownCtx); err != nil {
		log.Printf("[main] worker shutdown: %v", err)
	}
	log.Println("[main] shutdown complete")
}
