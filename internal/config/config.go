package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Политика проверки CAPTCHA.
const (
	ChallengeAnonymous = "anonymous"
	ChallengeAlways    = "always"
)

type Config struct {
	Addr        string
	DevMode     bool
	StorageType string // memory | postgres
	DatabaseURL string
	DBLogLevel  string // silent | error | warn | info

	RedisURL        string
	ChallengeTTL    time.Duration
	ChallengePolicy string

	JWTSecret string

	PageSize       int
	MaxUploadBytes int64

	// Хранилище файлов: каталог на диске или MinIO, если задан MinioEndpoint
	MediaDir       string
	MediaURL       string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	MeiliURL       string
	MeiliMasterKey string

	ImageMaxWidth   int
	ImageMaxHeight  int
	ImageMaxPixels  int64
	ImageMaxRetries int
	ImageRetryDelay time.Duration
	ImageWorkers    int
	ImageQueueSize  int
}

// Load читает конфигурацию из окружения. Файл .env, если он есть, подгружается первым.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:        getenv("API_ADDR", ":8080"),
		DevMode:     getenvBool("DEV_MODE", false),
		StorageType: getenv("STORAGE_TYPE", "memory"),
		DatabaseURL: getenv("DATABASE_URL", "host=localhost user=user password=password dbname=comments_db port=5432 sslmode=disable"),
		DBLogLevel:  getenv("DB_LOG_LEVEL", "warn"),

		RedisURL:        getenv("REDIS_URL", ""),
		ChallengeTTL:    time.Duration(getenvInt("CAPTCHA_TTL_SECONDS", 300)) * time.Second,
		ChallengePolicy: getenv("CAPTCHA_POLICY", ChallengeAnonymous),

		JWTSecret: getenv("JWT_SECRET", "comments-dev-secret"),

		PageSize:       getenvInt("PAGE_SIZE", 25),
		MaxUploadBytes: int64(getenvInt("MAX_UPLOAD_BYTES", 5<<20)),

		MediaDir:       getenv("MEDIA_DIR", "./data/media"),
		MediaURL:       getenv("MEDIA_URL", "/media/"),
		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "comments"),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),

		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),

		ImageMaxWidth:   getenvInt("IMAGE_MAX_WIDTH", 320),
		ImageMaxHeight:  getenvInt("IMAGE_MAX_HEIGHT", 240),
		ImageMaxPixels:  int64(getenvInt("IMAGE_MAX_PIXELS", 50_000_000)),
		ImageMaxRetries: getenvInt("IMAGE_MAX_RETRIES", 3),
		ImageRetryDelay: time.Duration(getenvInt("IMAGE_RETRY_DELAY_SECONDS", 5)) * time.Second,
		ImageWorkers:    getenvInt("IMAGE_WORKERS", 2),
		ImageQueueSize:  getenvInt("IMAGE_QUEUE_SIZE", 128),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
