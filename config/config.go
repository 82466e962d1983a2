package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config настройки приложения
type Config struct {
	TelegramToken string
	HTTPAddr      string

	IdentifyURL     string
	IdentifyAPIKey  string
	IdentifyTimeout time.Duration

	Camera         CameraConfig
	SplashDuration time.Duration
	PersistTimeout time.Duration
	Preprocess     PreprocessConfig
	Live           LiveConfig
	MotionBackend  string // gocv | diff

	Store     StoreConfig
	Telemetry TelemetryConfig

	TuningFile string
}

// CameraConfig источник кадров
type CameraConfig struct {
	Backend      string // gocv | dir | none
	Device       int
	FrontDevice  int
	Dir          string
	Facing       string // environment | user
	Width        int
	Height       int
	FramesPerImg int
}

// PreprocessConfig лимиты препроцессора
type PreprocessConfig struct {
	MaxEdge  int `yaml:"max_edge"`
	Quality  int `yaml:"quality"`
	BudgetKB int `yaml:"budget_kb"`
}

// LiveConfig параметры живого сканирования
type LiveConfig struct {
	Interval        time.Duration `yaml:"interval"`
	MotionThreshold float64       `yaml:"motion_threshold"`
	StableDwell     time.Duration `yaml:"stable_dwell"`
	StatusDebounce  time.Duration `yaml:"status_debounce"`
}

// StoreConfig хранилище результатов
type StoreConfig struct {
	Driver string // memory | sqlite3 | pgx
	DSN    string
}

// TelemetryConfig получатель метрик
type TelemetryConfig struct {
	Sink     string // log | mqtt
	Broker   string
	Topic    string
	ClientID string
}

// tuning файл TUNING_FILE, переопределяет параметры обработки
type tuning struct {
	Preprocess *PreprocessConfig `yaml:"preprocess"`
	Live       *LiveConfig       `yaml:"live"`
}

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		HTTPAddr:      getEnv("HTTP_ADDR", ""),

		IdentifyURL:     getEnv("IDENTIFY_URL", ""),
		IdentifyAPIKey:  getEnv("IDENTIFY_API_KEY", ""),
		IdentifyTimeout: getEnvDuration("IDENTIFY_TIMEOUT", 30*time.Second),

		Camera: CameraConfig{
			Backend:      getEnv("CAMERA_BACKEND", "none"),
			Device:       getEnvInt("CAMERA_DEVICE", 0),
			FrontDevice:  getEnvInt("FRONT_CAMERA_DEVICE", 1),
			Dir:          getEnv("CAMERA_DIR", ""),
			Facing:       getEnv("CAMERA_FACING", "environment"),
			Width:        getEnvInt("CAMERA_WIDTH", 1920),
			Height:       getEnvInt("CAMERA_HEIGHT", 1080),
			FramesPerImg: getEnvInt("CAMERA_DIR_FRAMES_PER_IMAGE", 10),
		},
		SplashDuration: getEnvDuration("SPLASH_DURATION", 1500*time.Millisecond),
		PersistTimeout: getEnvDuration("PERSIST_TIMEOUT", 10*time.Second),
		Preprocess: PreprocessConfig{
			MaxEdge:  getEnvInt("PREPROCESS_MAX_EDGE", 1024),
			Quality:  getEnvInt("PREPROCESS_QUALITY", 80),
			BudgetKB: getEnvInt("PREPROCESS_BUDGET_KB", 500),
		},
		Live: LiveConfig{
			Interval:        getEnvDuration("LIVE_INTERVAL", 200*time.Millisecond),
			MotionThreshold: getEnvFloat("LIVE_MOTION_THRESHOLD", 0.04),
			StableDwell:     getEnvDuration("LIVE_STABLE_DWELL", 600*time.Millisecond),
			StatusDebounce:  getEnvDuration("LIVE_STATUS_DEBOUNCE", 400*time.Millisecond),
		},
		MotionBackend: getEnv("MOTION_BACKEND", "diff"),

		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", "memory"),
			DSN:    getEnv("STORE_DSN", "scans.db"),
		},
		Telemetry: TelemetryConfig{
			Sink:     getEnv("METRICS_SINK", "log"),
			Broker:   getEnv("MQTT_BROKER", "localhost:1883"),
			Topic:    getEnv("MQTT_TOPIC", "vision-scan/metrics"),
			ClientID: getEnv("MQTT_CLIENT_ID", "vision-scan"),
		},

		TuningFile: getEnv("TUNING_FILE", ""),
	}

	if cfg.TuningFile != "" {
		if err := cfg.applyTuning(cfg.TuningFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyTuning накладывает значения из YAML файла поверх окружения
func (c *Config) applyTuning(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tuning file: %w", err)
	}

	t := tuning{Preprocess: &c.Preprocess, Live: &c.Live}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("parse tuning file %s: %w", path, err)
	}
	return nil
}

// Validate проверяет значения, при которых приложение не сможет работать
func (c *Config) Validate() error {
	var errs []error

	switch c.Camera.Backend {
	case "gocv", "none":
	case "dir":
		if c.Camera.Dir == "" {
			errs = append(errs, errors.New("CAMERA_DIR is required for dir camera backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CAMERA_BACKEND %q", c.Camera.Backend))
	}
	if c.Camera.Facing != "environment" && c.Camera.Facing != "user" {
		errs = append(errs, fmt.Errorf("unknown CAMERA_FACING %q", c.Camera.Facing))
	}

	if c.Preprocess.MaxEdge < 16 {
		errs = append(errs, fmt.Errorf("preprocess max edge %d is too small", c.Preprocess.MaxEdge))
	}
	if c.Preprocess.Quality < 1 || c.Preprocess.Quality > 100 {
		errs = append(errs, fmt.Errorf("preprocess quality %d out of range 1..100", c.Preprocess.Quality))
	}
	if c.Preprocess.BudgetKB <= 0 {
		errs = append(errs, errors.New("preprocess budget must be positive"))
	}

	if c.Live.Interval <= 0 {
		errs = append(errs, errors.New("live interval must be positive"))
	}
	if c.Live.MotionThreshold <= 0 || c.Live.MotionThreshold >= 1 {
		errs = append(errs, fmt.Errorf("live motion threshold %v out of range (0, 1)", c.Live.MotionThreshold))
	}
	if c.Live.StableDwell < 0 || c.Live.StatusDebounce < 0 {
		errs = append(errs, errors.New("live durations must not be negative"))
	}

	switch c.MotionBackend {
	case "gocv", "diff":
	default:
		errs = append(errs, fmt.Errorf("unknown MOTION_BACKEND %q", c.MotionBackend))
	}
	switch c.Store.Driver {
	case "memory", "sqlite3", "pgx":
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}
	switch c.Telemetry.Sink {
	case "log":
	case "mqtt":
		if c.Telemetry.Broker == "" {
			errs = append(errs, errors.New("MQTT_BROKER is required for mqtt metrics sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown METRICS_SINK %q", c.Telemetry.Sink))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}
