package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"kilroy/internal/api"
	"kilroy/internal/api/handlers"
	"kilroy/internal/config"
	"kilroy/internal/events"
	"kilroy/internal/photos"
	"kilroy/internal/repository"
	"kilroy/internal/repository/file"
	"kilroy/internal/repository/firestore"
	"kilroy/internal/repository/memory"
	"kilroy/internal/repository/postgres"
	"kilroy/internal/services"
	"kilroy/internal/sources"
	"kilroy/pkg/utils"
)

func main() {
	// A missing .env file is normal outside development.
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.Device.ID == "" {
		cfg.Device.ID = utils.GenerateID()
		log.Printf("KILROY_DEVICE_ID not set, using generated id %s", cfg.Device.ID)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize repositories
	pinRepo, closePins, err := openPinRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open pin store: %v", err)
	}
	defer closePins()

	kilroyStore, closeStore, err := openKilroyStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open kilroy store: %v", err)
	}
	defer closeStore()

	lockManager := memory.NewLockManager(cfg.Sync.LockSweepInterval)
	defer lockManager.Stop()

	// Initialize memory sources
	var library *sources.LibrarySource
	if cfg.Sources.LibraryDir != "" {
		library = sources.NewLibrarySource(photos.NewDirectoryLibrary(cfg.Sources.LibraryDir), cfg.Geo.GridResolution)
	}
	var cloud *sources.CloudPhotoSource
	if cfg.Sources.GooglePhotosToken != "" {
		client := photos.NewGooglePhotosClientWithToken(ctx, cfg.Sources.GooglePhotosToken, cfg.Sources.GooglePhotosBaseURL)
		client.SetRequestInterval(cfg.Sources.RequestInterval)
		cloud = sources.NewCloudPhotoSource(client, cfg.Geo.GridResolution, cfg.Sources.MaxCloudItems)
	}
	pinSource := sources.NewPinSource(pinRepo, cfg.Geo.GridResolution)

	// Go Learning Note — typed nil in interfaces:
	// A nil *LibrarySource stored in a Source interface is NOT a nil interface,
	// so optional sources are only appended when they exist.
	var srcs []sources.Source
	if library != nil {
		srcs = append(srcs, library)
	}
	if cloud != nil {
		srcs = append(srcs, cloud)
	}
	srcs = append(srcs, pinSource)
	registry := sources.NewRegistry(srcs...)

	// Initialize notifications
	notificationService := services.NewNotificationService()
	notifier := services.MultiNotifier{notificationService}
	publisher := services.MultiPinPublisher{notificationService}
	if cfg.NATS.URL != "" {
		nc, err := events.Connect(cfg.NATS)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer nc.Drain()
		natsPublisher := events.NewPublisher(nc, cfg.NATS.SubjectPrefix)
		notifier = append(notifier, natsPublisher)
		publisher = append(publisher, natsPublisher)
	}

	// Initialize services
	aggregator := services.NewProximityAggregator(registry.All(), notifier, services.ProximityConfig{
		MinMovementMeters: cfg.Proximity.MinMovementMeters,
		ZoneRadiusMeters:  cfg.Proximity.ZoneRadiusMeters,
	})
	pinService := services.NewPinService(pinRepo, pinSource, kilroyStore, lockManager, publisher, services.PinServiceConfig{
		DeviceID:         cfg.Device.ID,
		AdminDeviceIDs:   cfg.Admin.DeviceIDs,
		GeohashPrecision: cfg.Geo.GeohashPrecision,
		SyncMaxAttempts:  cfg.Sync.MaxAttempts,
		SyncBackoff:      cfg.Sync.Backoff,
		SyncLockTTL:      cfg.Sync.LockTTL,
	})
	defer pinService.Close()
	planner := services.NewRemoteQueryPlanner(kilroyStore, cfg.Geo.GeohashPrecision)
	kilroyService := services.NewKilroyService(planner, kilroyStore)

	// Build indexes in the background; queries answer from empty indexes
	// until each source finishes.
	go func() {
		if err := registry.RebuildAll(ctx); err != nil {
			log.Printf("[SOURCE] Initial index build incomplete: %v", err)
		}
		if _, err := pinService.Resync(ctx); err != nil {
			log.Printf("[SYNC] Resync failed: %v", err)
		}
	}()
	if cfg.Sources.RebuildInterval > 0 {
		go rebuildPeriodically(ctx, registry, cfg.Sources.RebuildInterval)
	}

	// Initialize handlers
	proximityHandler := handlers.NewProximityHandler(aggregator, registry, library, cfg.Proximity.NearbyRadiusMeters, cfg.Proximity.MaxQueryRadiusMeters)
	pinHandler := handlers.NewPinHandler(pinService)
	kilroyHandler := handlers.NewKilroyHandler(kilroyService, cfg.Proximity.NearbyRadiusMeters, cfg.Proximity.MaxQueryRadiusMeters)

	// Setup router
	router := api.NewRouter(proximityHandler, pinHandler, kilroyHandler, pinService.IsAdmin)
	engine := gin.Default()
	router.Setup(engine)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CorsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsHandler.Handler(engine),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Printf("Starting Kilroy server on %s (device %s)", cfg.Server.Port, cfg.Device.ID)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
}

func openPinRepository(ctx context.Context, cfg *config.Config) (repository.PinRepository, func(), error) {
	switch cfg.Storage.PinStore {
	case config.PinStoreFile:
		repo, err := file.NewPinRepository(filepath.Clean(cfg.Storage.DataDir))
		return repo, func() {}, err
	case config.PinStorePostgres:
		pool, err := postgres.Connect(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		repo := postgres.NewPinRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repo, pool.Close, nil
	default:
		return memory.NewPinRepository(), func() {}, nil
	}
}

func openKilroyStore(ctx context.Context, cfg *config.Config) (repository.KilroyStore, func(), error) {
	if cfg.Firestore.ProjectID == "" {
		log.Printf("[STORE] FIRESTORE_PROJECT_ID not set, keeping kilroys in memory")
		return memory.NewKilroyStore(), func() {}, nil
	}
	client, err := firestore.NewClient(ctx, cfg.Firestore.ProjectID, cfg.Firestore.CredentialsFile)
	if err != nil {
		return nil, nil, err
	}
	return firestore.NewKilroyStore(client), func() { client.Close() }, nil
}

// rebuildPeriodically refreshes every index on a fixed interval so photos
// added to the library or cloud account become findable without a restart.
func rebuildPeriodically(ctx context.Context, registry *sources.Registry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := registry.RebuildAll(ctx); err != nil {
				log.Printf("[SOURCE] Periodic rebuild incomplete: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
