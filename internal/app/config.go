package app

import (
	"strings"
	"time"

	"github.com/novasocial/graph-backend/internal/platform/envutil"
	"github.com/novasocial/graph-backend/internal/services"
)

type Config struct {
	Port               string
	ServiceName        string
	Environment        string
	Version            string
	WriteMode          services.WriteMode
	ReplicaEnabled     bool
	InternalWriteToken string
	BackfillBatchSize  int
	VerifySampleSize   int
	CacheEnabled       bool
	CacheTTL           time.Duration
	CORSOrigins        []string
}

func LoadConfig() (Config, error) {
	mode, err := services.ParseWriteMode(envutil.Str("WRITE_MODE", "lenient"))
	if err != nil {
		return Config{}, err
	}
	return Config{
		Port:               envutil.Str("PORT", "8080"),
		ServiceName:        envutil.Str("SERVICE_NAME", "graph-backend"),
		Environment:        envutil.Str("APP_ENV", "development"),
		Version:            envutil.Str("APP_VERSION", "dev"),
		WriteMode:          mode,
		ReplicaEnabled:     envutil.Bool("GRAPH_REPLICA_ENABLED", true),
		InternalWriteToken: envutil.Str("INTERNAL_WRITE_TOKEN", ""),
		BackfillBatchSize:  envutil.Int("BACKFILL_BATCH_SIZE", 1000),
		VerifySampleSize:   envutil.Int("VERIFY_SAMPLE_SIZE", 10),
		CacheEnabled:       envutil.Bool("GRAPH_CACHE_ENABLED", false),
		CacheTTL:           envutil.Dur("GRAPH_CACHE_TTL", 60*time.Second),
		CORSOrigins:        splitOrigins(envutil.Str("CORS_ORIGINS", "")),
	}, nil
}

func splitOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
