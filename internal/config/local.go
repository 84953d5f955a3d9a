package config

import (
	"os"
	"path/filepath"
	"strings"
)

// localDefaults fills in the docker-compose services used for local runs.
// The archive is only enabled when a MinIO endpoint is given.
func localDefaults(cfg *Config) {
	cfg.TraceDir = filepath.Join("tmp", "run_logs")
	cfg.Archive = ArchiveConfig{
		Endpoint:  strings.TrimSpace(os.Getenv("ARCHIVE_MINIO_ENDPOINT")),
		Region:    "us-east-1",
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("MINIO_ROOT_USER")), "tripplanner"),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD")), "tripplanner123"),
		Bucket:    "trip-itineraries",
		UseSSL:    false,
	}
}
