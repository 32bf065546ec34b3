package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig is the application configuration structure
type (
	AppConfig struct {
		Server   ServerConfig
		Database DatabaseConfig
		Logging  LoggingConfig
		Events   EventConfig
		Kafka    KafkaConfig
	}

	ServerConfig struct {
		Port string
	}

	// EventConfig tunes the outbox: how many of the most recent
	// revisions stay replayable, how often the reaper runs, and the
	// SSE delivery parameters.
	EventConfig struct {
		Retention      uint64
		ReaperInterval time.Duration
		SSEKeepAlive   time.Duration
		BatchLimit     int
	}

	KafkaConfig struct {
		Brokers []string
	}
)

var (
	Server   *ServerConfig
	Database *DatabaseConfig
	Logging  *LoggingConfig
	Events   *EventConfig
	Kafka    *KafkaConfig
)

func Setup() {

	if err := godotenv.Load(".env"); err != nil {
		fmt.Println("Error loading .env file:", err)
	}

	cfg := &AppConfig{
		Server: ServerConfig{
			Port: getEnv("WEB_PORT", "3636"),
		},
		Database: DatabaseConfig{
			DSN:   getEnv("DB_DSN", ":memory:"),
			Debug: os.Getenv("DB_DEBUG") == "true",
		},
		Logging: LoggingConfig{
			Level: os.Getenv("LOG_LEVEL"),
		},
		Events: EventConfig{
			Retention:      uint64(getEnvAsInt("EVENT_RETENTION", 100)),
			ReaperInterval: time.Duration(getEnvAsInt("REAPER_INTERVAL_SECONDS", 60)) * time.Second,
			SSEKeepAlive:   time.Duration(getEnvAsInt("SSE_KEEPALIVE_SECONDS", 30)) * time.Second,
			BatchLimit:     getEnvAsInt("EVENT_BATCH_LIMIT", 100),
		},
		Kafka: KafkaConfig{
			Brokers: splitBrokers(os.Getenv("KAFKA_BROKERS")),
		},
	}

	cfg.Logging.Setup()
	cfg.Database.Setup()

	Server = &cfg.Server
	Database = &cfg.Database
	Logging = &cfg.Logging
	Events = &cfg.Events
	Kafka = &cfg.Kafka
}

func Config(key string) string {
	return os.Getenv(key)
}

func getEnv(key string, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// Helper convert env -> int
func getEnvAsInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func splitBrokers(val string) []string {
	if val == "" {
		return nil
	}
	var brokers []string
	for _, b := range strings.Split(val, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
