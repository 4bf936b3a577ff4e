package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string              `mapstructure:"port"`
	AIEndpoint          string              `mapstructure:"ai_endpoint"`
	Model               string              `mapstructure:"model"`
	MaxTokens           int                 `mapstructure:"max_tokens"`
	OpenAIAPIKey        string              `mapstructure:"OPENAI_API_KEY"`
	GeminiAPIKeys       []string            `mapstructure:"gemini_api_keys"`
	Provider            string              `mapstructure:"provider"` // "openai" or "gemini"
	SystemPrompt        string              `mapstructure:"system_prompt"`
	DocumentPath        string              `mapstructure:"document_path"`
	MaxDistance         float64             `mapstructure:"max_distance"` // 0 disables the relevance cutoff
	EmbeddingConfig     EmbeddingConfig     `mapstructure:"embedding"`
	ChunkingConfig      ChunkingConfig      `mapstructure:"chunking"`
	WeaviateStoreConfig WeaviateStoreConfig `mapstructure:"weaviate_store_config"`
}

type EmbeddingConfig struct {
	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension"`
}

type ChunkingConfig struct {
	MaxChunkSize int `mapstructure:"max_chunk_size"`
	OverlapSize  int `mapstructure:"overlap_size"`
}

type WeaviateStoreConfig struct {
	Host      string `mapstructure:"host"`
	APIKey    string `mapstructure:"WEAVIATE_APIKEY"` // Changed to match env var
	ClassName string `mapstructure:"class_name"`
}

func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set up Viper to read from config file
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Set up Viper to read from environment variables
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Bind environment variables
	v.BindEnv("OPENAI_API_KEY")
	v.BindEnv("gemini_api_keys", "GEMINI_API_KEY") // comma-separated
	v.BindEnv("weaviate_store_config.WEAVIATE_APIKEY", "WEAVIATE_APIKEY")

	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "3000")
	v.SetDefault("provider", "openai")
	v.SetDefault("max_tokens", 500)
	v.SetDefault("system_prompt", "Welcome! I'm here to assist you with any questions or issues you may have. How can I help you today?")
	v.SetDefault("embedding.model", "sentence-transformers/all-MiniLM-L6-v2")
	v.SetDefault("embedding.dimension", 384)
	v.SetDefault("chunking.max_chunk_size", 300)
	v.SetDefault("chunking.overlap_size", 30)
	v.SetDefault("weaviate_store_config.class_name", "DocumentChunk")
}
