package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string
	CORSOrigins string
	TablePrefix string

	// Databases: the id provider and the migration tracker live in
	// separate databases.
	IDPDatabaseURL       string
	MigrationDatabaseURL string

	// Queue
	ConcurrentProcessing bool
	QueueWorkers         int

	// Migration pull sources
	WebsiteURL     string
	ArticleMetaURL string
	XMLFolderPath  string
	Collection     string
	FetchTimeout   time.Duration

	// Logging
	LogFile string
	Debug   bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix: getTablePrefix(env),

		IDPDatabaseURL:       getEnv("IDP_DATABASE_URL", ""),
		MigrationDatabaseURL: getEnv("MIGRATION_DATABASE_URL", ""),

		ConcurrentProcessing: getEnv("CONCURRENT_PROCESSING", "false") == "true",
		QueueWorkers:         getIntEnv("QUEUE_WORKERS", 4),

		WebsiteURL:     getEnv("WEBSITE_URL", ""),
		ArticleMetaURL: getEnv("ARTICLEMETA_URL", ""),
		XMLFolderPath:  getEnv("XML_FOLDER_PATH", ""),
		Collection:     getEnv("COLLECTION", "scl"),
		FetchTimeout:   getDurationEnv("FETCH_TIMEOUT", 30*time.Second),

		LogFile: getEnv("IDP_LOGFILE", ""),
		Debug:   getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
