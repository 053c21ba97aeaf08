// =============================================================================
// 📦 EvalFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Engine:    DefaultEngineConfig(),
		Scoring:   DefaultScoringConfig(),
		RAG:       DefaultRAGConfig(),
		Store:     DefaultStoreConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Mongo:     DefaultMongoConfig(),
		LLM:       DefaultLLMConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultEngineConfig 返回默认引擎配置
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Scorers: nil,
		Persist: true,
	}
}

// DefaultScoringConfig 返回默认评分配置
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{}
}

// DefaultRAGConfig 返回默认 RAG 配置：整文档、词法检索、模板生成
func DefaultRAGConfig() RAGConfig {
	return RAGConfig{
		Chunking:            "document",
		ChunkSize:           128,
		ChunkOverlap:        32,
		Retrieval:           "lexical",
		TopK:                5,
		LexicalWeight:       0.5,
		VectorWeight:        0.5,
		BM25K1:              1.5,
		BM25B:               0.75,
		Rerank:              false,
		Generator:           "template",
		EmbeddingDimensions: 256,
		Model:               "gpt-4o-mini",
		Temperature:         0,
		MaxTokens:           1024,
	}
}

// DefaultStoreConfig 返回默认存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Backend:     "memory",
		Cache:       false,
		AutoMigrate: false,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "evalflow",
		Password:        "",
		Name:            "evalflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		TTL:          10 * time.Minute,
	}
}

// DefaultMongoConfig 返回默认 MongoDB 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:      "mongodb://localhost:27017",
		Database: "evalflow",
		Timeout:  10 * time.Second,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置；BaseURL 为空表示未启用
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:        "",
		APIKey:         "",
		Model:          "gpt-4o-mini",
		Timeout:        2 * time.Minute,
		RateLimitRPS:   0,
		RateLimitBurst: 1,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     false,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "evalflow",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Namespace: "evalflow",
	}
}
