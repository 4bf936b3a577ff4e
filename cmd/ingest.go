/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"github.com/tieubaoca/ragchat-be/config"
	"github.com/tieubaoca/ragchat-be/database"
	"github.com/tieubaoca/ragchat-be/service"
	"github.com/tieubaoca/ragchat-be/types"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Chunk, embed and upsert the configured document",
	Long: `Reads the configured knowledge document, splits it into overlapping
chunks and upserts each chunk with its embedding into the Weaviate index.
The chat server also keeps the index in sync on its own; this command is for
populating the index up front or after changing the document.`,
	Run: func(cmd *cobra.Command, args []string) {
		reinit, _ := cmd.Flags().GetBool("reinit")

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}

		docService := service.NewDocumentService(types.DocumentServiceConfig{
			MaxChunkSize: cfg.ChunkingConfig.MaxChunkSize,
			OverlapSize:  cfg.ChunkingConfig.OverlapSize,
		})

		weaviateDb, err := database.NewWeaviateStore(cfg.WeaviateStoreConfig)
		if err != nil {
			log.Fatalf("Failed to connect to Weaviate database: %v", err)
		}

		embedder, _, err := buildProviders(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize %s provider: %v", cfg.Provider, err)
		}

		ctx := context.Background()
		if reinit {
			if err := weaviateDb.ReInit(ctx); err != nil {
				log.Fatalf("Failed to reinitialize the chunk collection: %v", err)
			}
		} else if err := weaviateDb.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to ensure the chunk collection: %v", err)
		}

		text, err := docService.LoadDocument(cfg.DocumentPath)
		if err != nil {
			log.Fatalf("Failed to read document: %v", err)
		}

		chunks := docService.SplitText(text)
		if len(chunks) == 0 {
			log.Println("No chunks were generated from the document text")
			return
		}

		for _, chunk := range chunks {
			vector, err := embedder.Embed(ctx, chunk.Content)
			if err != nil {
				log.Fatalf("Failed to embed chunk %s: %v", chunk.ID, err)
			}
			if err := weaviateDb.UpsertChunk(ctx, chunk, vector); err != nil {
				log.Fatalf("Failed to upsert chunk %s: %v", chunk.ID, err)
			}
			log.Println("Upserted chunk", chunk.ID)
		}
		log.Printf("Done ingesting %d chunks from %s", len(chunks), cfg.DocumentPath)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().BoolP("reinit", "r", false, "Drop and recreate the chunk collection first")
}
