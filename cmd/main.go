package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"vision-scan/config"
	telegram "vision-scan/internal/api"
	"vision-scan/internal/api/rest"
	app "vision-scan/internal/application"
	"vision-scan/internal/container"
	"vision-scan/internal/domain/port"
	"vision-scan/internal/infrastructure/identifier"
	"vision-scan/internal/infrastructure/storage"
	"vision-scan/internal/infrastructure/telemetry"
	"vision-scan/internal/infrastructure/vision"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.TelegramToken == "" && cfg.HTTPAddr == "" {
		log.Fatal("TELEGRAM_TOKEN or HTTP_ADDR is required")
	}
	if cfg.IdentifyURL == "" {
		log.Fatal("IDENTIFY_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	// Хранилище результатов
	store, closeStore, err := newStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("Failed to open result store: %v", err)
	}
	defer closeStore()

	// Получатель метрик
	sink, closeSink := newSink(ctx, cfg.Telemetry)
	defer closeSink()

	// Собираем сервисы приложения
	appContainer := container.New(app.ControllerConfig{
		SplashDuration: cfg.SplashDuration,
		Facing:         port.Facing(cfg.Camera.Facing),
		Resolution:     port.Resolution{Width: cfg.Camera.Width, Height: cfg.Camera.Height},
		PersistTimeout: cfg.PersistTimeout,
		Live: app.LiveConfig{
			Interval:        cfg.Live.Interval,
			MotionThreshold: cfg.Live.MotionThreshold,
			StableDwell:     cfg.Live.StableDwell,
			StatusDebounce:  cfg.Live.StatusDebounce,
		},
	}, container.Adapters{
		Camera:       newCamera(cfg.Camera),
		Preprocessor: vision.NewPreprocessor(cfg.Preprocess.MaxEdge, cfg.Preprocess.Quality, cfg.Preprocess.BudgetKB),
		Identifier:   identifier.NewClient(cfg.IdentifyURL, cfg.IdentifyAPIKey, cfg.IdentifyTimeout),
		Motion:       newMotion(cfg.MotionBackend),
		Store:        store,
		Sink:         sink,
	})

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := appContainer.Controller.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Camera is not ready: %v", err)
		}
	}()

	var httpServer *http.Server
	if cfg.HTTPAddr != "" {
		httpServer = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           rest.NewRouter(appContainer),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to serve HTTP: %v", err)
			}
		}()
	}

	if cfg.TelegramToken != "" {
		// Создаём бота
		bot, err := telegram.NewBot(cfg.TelegramToken, appContainer)
		if err != nil {
			log.Fatalf("Failed to create bot: %v", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Println("Bot is running...")
			if err := bot.Run(ctx); err != nil {
				log.Printf("Bot error: %v", err)
			}
		}()
	}

	// Ждём сигнала
	<-done
	log.Println("Shutting down...")
	cancel()

	if httpServer != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP shutdown: %v", err)
		}
		stop()
	}

	if err := appContainer.Close(); err != nil {
		log.Printf("Controller close: %v", err)
	}
	wg.Wait()
	log.Println("Stopped")
}

func newCamera(cfg config.CameraConfig) port.Camera {
	switch cfg.Backend {
	case "gocv":
		return vision.NewGoCVCamera(cfg.Device, cfg.FrontDevice)
	case "dir":
		return vision.NewDirCamera(cfg.Dir, cfg.FramesPerImg)
	default:
		log.Println("No camera configured, only uploaded images will be identified")
		return vision.NullCamera{}
	}
}

func newMotion(backend string) port.MotionDetector {
	if backend == "gocv" {
		d, err := vision.NewGoCVMotionDetector()
		if err == nil {
			return d
		}
		log.Printf("GoCV motion detector unavailable, using frame diff: %v", err)
	}
	return vision.NewFrameDiffDetector()
}

func newStore(ctx context.Context, cfg config.StoreConfig) (port.ResultStore, func(), error) {
	if cfg.Driver == "memory" {
		return storage.NewMemoryResultStore(), func() {}, nil
	}

	store, err := storage.OpenSQLResultStore(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			log.Printf("[STORE] close: %v", err)
		}
	}, nil
}

func newSink(ctx context.Context, cfg config.TelemetryConfig) (port.MetricsSink, func()) {
	if cfg.Sink != "mqtt" {
		return telemetry.NewLogSink(nil), func() {}
	}

	sink := telemetry.NewMQTTSink(telemetry.MQTTConfig{
		Broker:   cfg.Broker,
		ClientID: cfg.ClientID,
		Topic:    cfg.Topic,
	})
	if err := sink.Connect(ctx); err != nil {
		log.Printf("[MQTT] %v, metrics go to log", err)
		return telemetry.NewLogSink(nil), func() {}
	}
	return sink, sink.Disconnect
}
