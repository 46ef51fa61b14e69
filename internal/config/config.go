package config

import "os"

type Config struct {
	Port    string
	DBPath  string
	Workers int

	// Blob storage. When MinioEndpoint is empty the service falls back to a
	// local filesystem store rooted at BlobDir.
	RawBucket      string
	LakeBucket     string
	BlobDir        string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	// Job records expire this many days after creation.
	JobTTLDays int
}

func Load() Config {
	return Config{
		Port:           getEnv("PORT", "8080"),
		DBPath:         getEnv("DB_PATH", "databridge.db"),
		Workers:        getEnvInt("WORKERS", 5),
		RawBucket:      getEnv("RAW_BUCKET", "databridge-raw"),
		LakeBucket:     getEnv("LAKE_BUCKET", "databridge-lake"),
		BlobDir:        getEnv("BLOB_DIR", "blobs"),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioUseSSL:    getEnv("MINIO_USE_SSL", "") == "true",
		JobTTLDays:     getEnvInt("JOB_TTL_DAYS", 7),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	return n
}
