package config

import (
	"fmt"
	"time"
)

// ServerConfig configures the public HTTP API (pkg/api).
type ServerConfig struct {
	HTTPPort    string
	GinMode     string
	MetricsPort string
}

// LoadServerConfigFromEnv reads HTTP_*/GIN_*/METRICS_* environment variables.
func LoadServerConfigFromEnv() *ServerConfig {
	return &ServerConfig{
		HTTPPort:    getEnvOrDefault("HTTP_PORT", "8080"),
		GinMode:     getEnvOrDefault("GIN_MODE", "release"),
		MetricsPort: getEnvOrDefault("METRICS_PORT", "9090"),
	}
}

// CacheConfig configures the read-through cache (pkg/cache).
type CacheConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// LoadCacheConfigFromEnv reads CACHE_* environment variables.
func LoadCacheConfigFromEnv() (*CacheConfig, error) {
	db, err := getEnvIntOrDefault("CACHE_DB", 0)
	if err != nil {
		return nil, err
	}
	ttl, err := getEnvDurationOrDefault("CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	addr := getEnvOrDefault("CACHE_ADDR", "")
	return &CacheConfig{
		Enabled:  addr != "",
		Addr:     addr,
		Password: getEnvOrDefault("CACHE_PASSWORD", ""),
		DB:       db,
		TTL:      ttl,
	}, nil
}

// EmbeddingConfig configures the HTTP embedding encoder (pkg/embedding)
// shared by the worker pool and the retrieval service's semantic search.
type EmbeddingConfig struct {
	Endpoint   string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// LoadEmbeddingConfigFromEnv reads EMBEDDING_* environment variables.
func LoadEmbeddingConfigFromEnv() (*EmbeddingConfig, error) {
	dims, err := getEnvIntOrDefault("EMBEDDING_DIMENSIONS", 384)
	if err != nil {
		return nil, err
	}
	timeout, err := getEnvDurationOrDefault("EMBEDDING_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	return &EmbeddingConfig{
		Endpoint:   getEnvOrDefault("EMBEDDING_ENDPOINT", "http://localhost:8081/embed"),
		APIKey:     getEnvOrDefault("EMBEDDING_API_KEY", ""),
		Model:      getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		Dimensions: dims,
		Timeout:    timeout,
	}, nil
}

// DecayConfig parameterizes the importance/decay model (pkg/decay).
type DecayConfig struct {
	HalfLifeDays      float64
	PruningThreshold  float64
	PruningMinAgeDays float64
}

// LoadDecayConfigFromEnv reads DECAY_* environment variables.
func LoadDecayConfigFromEnv() (*DecayConfig, error) {
	halfLife, err := getEnvFloatOrDefault("DECAY_HALF_LIFE_DAYS", 30.0)
	if err != nil {
		return nil, err
	}
	threshold, err := getEnvFloatOrDefault("DECAY_PRUNING_THRESHOLD", 0.15)
	if err != nil {
		return nil, err
	}
	minAge, err := getEnvFloatOrDefault("DECAY_PRUNING_MIN_AGE_DAYS", 90.0)
	if err != nil {
		return nil, err
	}
	cfg := &DecayConfig{HalfLifeDays: halfLife, PruningThreshold: threshold, PruningMinAgeDays: minAge}
	if cfg.HalfLifeDays <= 0 {
		return nil, &ValidationError{Field: "DECAY_HALF_LIFE_DAYS", Err: fmt.Errorf("must be > 0")}
	}
	return cfg, nil
}

// ConsolidationConfig parameterizes the nightly consolidation engine (pkg/consolidation).
type ConsolidationConfig struct {
	BreakthroughPercentile float64
	TraceLookback          time.Duration
	SimilarityThreshold    float64
	SharedTagThreshold     int
	TemporalProximity      time.Duration
	BoostWeight            float64
	BoostCap               float64
	TemporalDecayHours     float64
	ReplaySampleRatio      float64
	ReplayMinAgeDays       float64
	ReplayMaxAgeDays       float64
	ReplaySalienceMin      float64
	ScheduleEnabled        bool
	ScheduleInterval       time.Duration
}

// LoadConsolidationConfigFromEnv reads CONSOLIDATION_* environment variables.
func LoadConsolidationConfigFromEnv() (*ConsolidationConfig, error) {
	enabled := getEnvOrDefault("CONSOLIDATION_SCHEDULE_ENABLED", "false") == "true"
	interval, err := getEnvDurationOrDefault("CONSOLIDATION_SCHEDULE_INTERVAL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	return &ConsolidationConfig{
		BreakthroughPercentile: 80.0,
		TraceLookback:          12 * time.Hour,
		SimilarityThreshold:    0.65,
		SharedTagThreshold:     2,
		TemporalProximity:      time.Hour,
		BoostWeight:            0.25,
		BoostCap:               0.20,
		TemporalDecayHours:     6.0,
		ReplaySampleRatio:      0.3,
		ReplayMinAgeDays:       7.0,
		ReplayMaxAgeDays:       90.0,
		ReplaySalienceMin:      0.70,
		ScheduleEnabled:        enabled,
		ScheduleInterval:       interval,
	}, nil
}
