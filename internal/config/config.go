package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	Port        string
	UploadsDir  string
	SwaggerURL  string

	// Editing locks
	LockTTL time.Duration

	// Matching
	MatchThreshold   int // minimum score persisted as a match
	NotifyMatchScore int // new matches at or above this score notify the requirement owner

	// Scheduler / pipeline
	SchedulerInterval   time.Duration // 0 = only the init endpoint runs due tasks
	SchedulerBatch      int
	RabbitMQURL         string // empty = dispatch is logged only
	PipelineQueue       string
	PipelineResultQueue string
	OpsUserID           string // receives task, pipeline and sync failure notifications

	// Job portal
	PortalBaseURL    string
	PortalAPIKey     string
	PortalRatePerSec float64
	PortalCacheTTL   time.Duration
	RedisURL         string // empty = in-process cache only
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
		log.Println("Attempting to load from parent directory...")
		err = godotenv.Load("../../.env")
		if err != nil {
			log.Println("Warning: Could not load .env file, using environment variables")
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	uploadsDir := os.Getenv("UPLOADS_DIR")
	if uploadsDir == "" {
		uploadsDir = "./uploads"
	}

	swaggerURL := os.Getenv("SWAGGER_URL")
	if swaggerURL == "" {
		swaggerURL = "http://localhost:" + port + "/swagger/doc.json"
	}

	pipelineQueue := os.Getenv("PIPELINE_QUEUE")
	if pipelineQueue == "" {
		pipelineQueue = "post_pipeline"
	}
	resultQueue := os.Getenv("PIPELINE_RESULT_QUEUE")
	if resultQueue == "" {
		resultQueue = "post_pipeline_results"
	}

	opsUser := os.Getenv("OPS_USER_ID")
	if opsUser == "" {
		opsUser = "admin"
	}

	return &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Port:        port,
		UploadsDir:  uploadsDir,
		SwaggerURL:  swaggerURL,

		LockTTL: durationEnv("LOCK_TTL", 5*time.Minute),

		MatchThreshold:   intEnv("MATCH_THRESHOLD", 60),
		NotifyMatchScore: intEnv("NOTIFY_MATCH_SCORE", 80),

		SchedulerInterval:   durationEnv("SCHEDULER_INTERVAL", 0),
		SchedulerBatch:      intEnv("SCHEDULER_BATCH", 20),
		RabbitMQURL:         os.Getenv("RABBITMQ_URL"),
		PipelineQueue:       pipelineQueue,
		PipelineResultQueue: resultQueue,
		OpsUserID:           opsUser,

		PortalBaseURL:    os.Getenv("PORTAL_BASE_URL"),
		PortalAPIKey:     os.Getenv("PORTAL_API_KEY"),
		PortalRatePerSec: floatEnv("PORTAL_RATE_PER_SEC", 2),
		PortalCacheTTL:   durationEnv("PORTAL_CACHE_TTL", 15*time.Minute),
		RedisURL:         os.Getenv("REDIS_URL"),
	}
}

func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}

func floatEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using default %v", key, v, def)
		return def
	}
	return f
}

func durationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using default %v", key, v, def)
		return def
	}
	return d
}
