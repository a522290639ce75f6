//go:build !js && !wasm

package main

import (
	"flag"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/himanishpuri/HumDNA/pkg/humdna"
	"github.com/himanishpuri/HumDNA/pkg/humdna/audio"
	"github.com/himanishpuri/HumDNA/pkg/logger"
)

var (
	port           int
	dbPath         string
	backend        string
	tempDir        string
	sampleRate     int
	humming        bool
	allowedOrigins string
	logRequests    bool
)

func init() {
	_ = godotenv.Load()

	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("HUMDNA_DB_PATH", "humdna.sqlite3"), "Path to the catalogue")
	flag.StringVar(&backend, "backend", getEnvOrDefault("HUMDNA_BACKEND", humdna.BackendSQLite), "Catalogue backend: sqlite or badger")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("HUMDNA_TEMP_DIR", os.TempDir()), "Temporary directory")
	flag.IntVar(&sampleRate, "rate", audio.DefaultSampleRate, "Audio sample rate")
	flag.BoolVar(&humming, "humming", true, "Use the wider humming pitch range for queries")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
	flag.BoolVar(&logRequests, "log-requests", false, "Log every HTTP request")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseOrigins(raw string) []string {
	if raw == "*" {
		return []string{"*"}
	}
	origins := strings.Split(raw, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return origins
}

func main() {
	flag.Parse()
	log := logger.GetLogger()

	service, err := humdna.NewService(
		humdna.WithDBPath(dbPath),
		humdna.WithBackend(backend),
		humdna.WithTempDir(tempDir),
		humdna.WithSampleRate(sampleRate),
		humdna.WithHumming(humming),
	)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	config := &ServerConfig{
		Port:           port,
		DBPath:         dbPath,
		Backend:        backend,
		TempDir:        tempDir,
		SampleRate:     sampleRate,
		AllowedOrigins: parseOrigins(allowedOrigins),
		LogRequests:    logRequests,
	}

	server := NewServer(service, config)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
