// Package config loads and validates nexusmem's runtime configuration from
// environment variables, following the same env-var-first convention the
// storage layer has always used.
package config

// Config bundles the storage, queue, cache, server, decay and consolidation
// configuration. The embedding client's EmbeddingConfig is loaded separately
// by LoadEmbeddingConfigFromEnv.
type Config struct {
	Storage       *StorageConfig
	Queue         *QueueConfig
	Cache         *CacheConfig
	Server        *ServerConfig
	Decay         *DecayConfig
	Consolidation *ConsolidationConfig
}

// Load reads and validates the full configuration from the environment.
func Load() (*Config, error) {
	storageCfg, err := LoadStorageConfigFromEnv()
	if err != nil {
		return nil, err
	}
	queueCfg, err := LoadQueueConfigFromEnv()
	if err != nil {
		return nil, err
	}
	cacheCfg, err := LoadCacheConfigFromEnv()
	if err != nil {
		return nil, err
	}
	decayCfg, err := LoadDecayConfigFromEnv()
	if err != nil {
		return nil, err
	}
	consolidationCfg, err := LoadConsolidationConfigFromEnv()
	if err != nil {
		return nil, err
	}

	return &Config{
		Storage:       storageCfg,
		Queue:         queueCfg,
		Cache:         cacheCfg,
		Server:        LoadServerConfigFromEnv(),
		Decay:         decayCfg,
		Consolidation: consolidationCfg,
	}, nil
}
