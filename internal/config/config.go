package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// VectorSize is the embedding dimension agreed with the embedding provider.
// It is a process-wide constant; changing it requires re-creating the index.
const VectorSize = 768

type LLMConfig struct {
	Provider string `yaml:"provider"` // "openai" (openai-compatible API) or "ollama"
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
}

type IndexConfig struct {
	Driver     string `yaml:"driver"` // "postgres" or "local"
	DSN        string `yaml:"dsn"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	Debug      bool   `yaml:"debug"`
}

type RAGConfig struct {
	ChunkSize     int    `yaml:"chunk_size"`
	ChunkOverlap  int    `yaml:"chunk_overlap"`
	TopK          int    `yaml:"top_k"`
	ContextChars  int    `yaml:"context_chars"`
	HistoryTurns  int    `yaml:"history_turns"`
	DedupeByFile  bool   `yaml:"dedupe_by_file"`
	BatchSize     int    `yaml:"batch_size"`
	MaxItemChars  int    `yaml:"max_item_chars"`
	MaxAttempts   int    `yaml:"max_attempts"`
	Workers       int    `yaml:"workers"`
	SourceBaseURL string `yaml:"source_base_url"`
}

type Config struct {
	EmbedLLM     LLMConfig   `yaml:"embed_llm"`
	InferenceLLM LLMConfig   `yaml:"inference_llm"`
	Index        IndexConfig `yaml:"index"`
	RAG          RAGConfig   `yaml:"rag"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// applyEnv lets secrets live in the environment instead of the yaml file.
func (c *Config) applyEnv() {
	if v := os.Getenv("EMBED_LLM_KEY"); v != "" {
		c.EmbedLLM.Key = v
	}
	if v := os.Getenv("INFERENCE_LLM_KEY"); v != "" {
		c.InferenceLLM.Key = v
	}
	if v := os.Getenv("INDEX_DSN"); v != "" {
		c.Index.DSN = v
	}
}

func (c *Config) applyDefaults() {
	if c.Index.Driver == "" {
		c.Index.Driver = "local"
	}
	if c.Index.Path == "" {
		c.Index.Path = "./docuchat-index"
	}
	if c.Index.Collection == "" {
		c.Index.Collection = "documents"
	}
	if c.RAG.ChunkSize <= 0 {
		c.RAG.ChunkSize = 1000
	}
	if c.RAG.ChunkOverlap <= 0 {
		c.RAG.ChunkOverlap = 200
	}
	if c.RAG.TopK <= 0 {
		c.RAG.TopK = 10
	}
	if c.RAG.ContextChars <= 0 {
		c.RAG.ContextChars = 12000
	}
	if c.RAG.HistoryTurns <= 0 {
		c.RAG.HistoryTurns = 10
	}
	if c.RAG.BatchSize <= 0 {
		c.RAG.BatchSize = 16
	}
	if c.RAG.MaxItemChars <= 0 {
		c.RAG.MaxItemChars = 30000
	}
	if c.RAG.MaxAttempts <= 0 {
		c.RAG.MaxAttempts = 4
	}
	if c.RAG.Workers <= 0 {
		c.RAG.Workers = 4
	}
}
