package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort  string
	CORSOrigins []string

	// StoreBackend is "memory", "postgres" or "firestore".
	StoreBackend string
	StoreTimeout time.Duration

	DBDriver       string
	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	DBSslMode      string
	DBMaxOpenConns int
	DBMigrate      bool

	FirebaseCredentialsFile string
	FirebaseProjectID       string

	// AuthProvider is "local" (bcrypt + JWT) or "firebase".
	AuthProvider       string
	AdminEmails        []string
	JWTSecret          string
	JWTExpirationHours time.Duration

	HourlyRate float64

	AWSRegion        string
	SQSEventQueueURL string
	PlateBucket      string
	PlateURLExpiry   time.Duration
	MaxImageBytes    int64

	RedisURL  string
	RateLimit RateLimitConfig
}

func Load() *Config {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	jwtExpHours, _ := strconv.Atoi(getEnv("JWT_EXPIRATION_HOURS", "24"))

	return &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),

		StoreBackend: getEnv("STORE_BACKEND", "memory"),
		StoreTimeout: envDur("STORE_TIMEOUT", 10*time.Second),

		DBDriver:       getEnv("DB_DRIVER", "pgx"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         dbPort,
		DBUser:         getEnv("DB_USER", "parking"),
		DBPassword:     getEnv("DB_PASSWORD", "parking"),
		DBName:         getEnv("DB_NAME", "parking_db"),
		DBSslMode:      getEnv("DB_SSLMODE", "disable"),
		DBMaxOpenConns: envInt("DB_MAX_OPEN_CONNS", 20),
		DBMigrate:      envBool("DB_MIGRATE", true),

		FirebaseCredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", "admin-sdk-credentials.json"),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),

		AuthProvider:       getEnv("AUTH_PROVIDER", "local"),
		AdminEmails:        splitList(getEnv("ADMIN_EMAILS", "")),
		JWTSecret:          getEnv("JWT_SECRET", "change-me-in-production"),
		JWTExpirationHours: time.Duration(jwtExpHours) * time.Hour,

		HourlyRate: envFloat("HOURLY_RATE", 5.0),

		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
		SQSEventQueueURL: getEnv("SQS_EVENT_QUEUE_URL", ""),
		PlateBucket:      getEnv("PLATE_IMAGE_BUCKET", ""),
		PlateURLExpiry:   envDur("PLATE_IMAGE_URL_EXPIRY", 15*time.Minute),
		MaxImageBytes:    int64(envInt("MAX_IMAGE_BYTES", 5<<20)),

		RedisURL:  getEnv("REDIS_URL", ""),
		RateLimit: LoadRateLimitConfig(),
	}
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable '%s' not set, using default: '%s'", key, fallback)
	return fallback
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return d
}

func envFloat(k string, d float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(k), 64); err == nil {
		return f
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return dur
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
