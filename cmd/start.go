/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/tieubaoca/ragchat-be/config"
	"github.com/tieubaoca/ragchat-be/database"
	"github.com/tieubaoca/ragchat-be/handler"
	"github.com/tieubaoca/ragchat-be/service"
	"github.com/tieubaoca/ragchat-be/types"
	"github.com/tieubaoca/ragchat-be/web"
)

// startServerCmd represents the start command
var startServerCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the chat server",
	Long:  `Starts a server that handles retrieval-augmented chat requests`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}

		// Initialize services
		docService := service.NewDocumentService(types.DocumentServiceConfig{
			MaxChunkSize: cfg.ChunkingConfig.MaxChunkSize,
			OverlapSize:  cfg.ChunkingConfig.OverlapSize,
		})

		weaviateDb, err := database.NewWeaviateStore(cfg.WeaviateStoreConfig)
		if err != nil {
			log.Fatalf("Failed to connect to Weaviate database: %v", err)
		}

		embedder, aiService, err := buildProviders(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize %s provider: %v", cfg.Provider, err)
		}

		ragService := service.NewRAGService(
			service.RAGServiceConfig{
				DocumentPath: cfg.DocumentPath,
				SystemPrompt: cfg.SystemPrompt,
				MaxDistance:  float32(cfg.MaxDistance),
			},
			docService,
			embedder,
			weaviateDb,
			aiService,
		)
		wsService := service.NewWebSocketService(ragService)

		// Initialize handlers
		corsHandler := handler.NewCorsHandler()
		chatHandler := handler.NewChatHandler(ragService)

		// Setup routes
		mux := http.NewServeMux()
		mux.Handle("/", web.Handler())
		mux.Handle("/api/v1/chat", chatHandler.HandleChat())
		mux.HandleFunc("/ws/chat", wsService.HandleChat)
		mux.Handle("/health", wsService.Health())

		log.Printf("Starting server on port %s...\n", cfg.Port)
		if err := http.ListenAndServe(":"+cfg.Port, corsHandler.Middleware(mux)); err != nil {
			log.Fatal("Server error:", err)
		}
	},
}

// buildProviders wires the embedding and completion backends for the
// configured provider.
func buildProviders(cfg *config.Config) (service.Embedder, service.AIService, error) {
	switch cfg.Provider {
	case "gemini":
		if len(cfg.GeminiAPIKeys) == 0 {
			return nil, nil, errors.New("gemini provider requires gemini_api_keys")
		}
		aiService, err := service.NewGeminiService(cfg.GeminiAPIKeys, cfg.Model, cfg.MaxTokens)
		if err != nil {
			return nil, nil, err
		}
		embedder, err := service.NewGeminiEmbedding(
			context.Background(),
			cfg.GeminiAPIKeys[0],
			cfg.EmbeddingConfig.Model,
			cfg.EmbeddingConfig.Dimension,
		)
		if err != nil {
			return nil, nil, err
		}
		return embedder, aiService, nil
	default:
		embedder := service.NewOpenAIEmbedding(
			cfg.AIEndpoint,
			cfg.OpenAIAPIKey,
			cfg.EmbeddingConfig.Model,
			cfg.EmbeddingConfig.Dimension,
		)
		aiService := service.NewOpenAIService(cfg.AIEndpoint, cfg.OpenAIAPIKey, cfg.Model, cfg.MaxTokens)
		return embedder, aiService, nil
	}
}

func init() {
	rootCmd.AddCommand(startServerCmd)
}
