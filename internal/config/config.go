package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type AIConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Timeout  int         `json:"timeout"`
	Data     interface{} `json:"data"`
}

type EmbeddingConfig struct {
	Provider  string      `json:"provider"`
	Model     string      `json:"model"`
	Dimension int         `json:"dimension"`
	Timeout   int         `json:"timeout"`
	Data      interface{} `json:"data"`
}

type KnowledgeConfig struct {
	ChunkSize      int    `json:"chunk_size"`
	Overlap        int    `json:"overlap"`
	TopK           int    `json:"top_k"`
	PoolSize       int    `json:"pool_size"`
	MaxUploadBytes int64  `json:"max_upload_bytes"`
	ReembedCron    string `json:"reembed_cron"`
}

type Config struct {
	Port          int              `json:"port"`
	AssistantName string           `json:"assistant_name"`
	CORSOrigins   []string         `json:"cors_origins"`
	Database      DatabaseConfig   `json:"database"`
	AI            AIConfig         `json:"ai"`
	Embedding     EmbeddingConfig  `json:"embedding"`
	Knowledge     KnowledgeConfig  `json:"knowledge"`
	LogConfig     logger.LogConfig `json:"log_config"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.AssistantName == "" {
		cfg.AssistantName = "AI Assistant"
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.AI.Provider == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.Model == "" {
		return nil, fmt.Errorf("ai.model is required")
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 60
	}
	if cfg.Embedding.Provider == "" {
		return nil, fmt.Errorf("embedding.provider is required")
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = 384
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30
	}
	if cfg.Knowledge.ChunkSize == 0 {
		cfg.Knowledge.ChunkSize = 500
	}
	if cfg.Knowledge.Overlap == 0 {
		cfg.Knowledge.Overlap = 50
	}
	if cfg.Knowledge.Overlap >= cfg.Knowledge.ChunkSize {
		return nil, fmt.Errorf("knowledge.overlap must be smaller than knowledge.chunk_size")
	}
	if cfg.Knowledge.TopK == 0 {
		cfg.Knowledge.TopK = 3
	}
	if cfg.Knowledge.PoolSize == 0 {
		cfg.Knowledge.PoolSize = 4
	}
	if cfg.Knowledge.MaxUploadBytes == 0 {
		cfg.Knowledge.MaxUploadBytes = 20 << 20
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	return &cfg, nil
}
