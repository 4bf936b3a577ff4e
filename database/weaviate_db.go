package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tieubaoca/ragchat-be/config"
	"github.com/tieubaoca/ragchat-be/types"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// Namespace for deriving deterministic record UUIDs from chunk content.
var chunkIDNamespace = uuid.MustParse("8f2f9f3e-5b9c-4a56-9d33-2f14c9a7b0d1")

type WeaviateStore struct {
	client    *weaviate.Client
	className string
}

func NewWeaviateStore(config config.WeaviateStoreConfig) (*WeaviateStore, error) {
	var scheme string
	if strings.Contains(config.Host, "https") {
		scheme = "https"
	} else {
		scheme = "http"
	}
	host := strings.TrimPrefix(config.Host, scheme+"://")
	cfg := weaviate.Config{
		Host:   host,
		Scheme: scheme,
	}
	if config.APIKey != "" {
		cfg.AuthConfig = auth.ApiKey{
			Value: config.APIKey,
		}
		cfg.Headers = map[string]string{
			"X-Weaviate-Api-Key":     config.APIKey,
			"X-Weaviate-Cluster-Url": fmt.Sprintf("%s://%s", scheme, host),
		}
	}
	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %v", err)
	}

	className := config.ClassName
	if className == "" {
		className = "DocumentChunk"
	}
	return &WeaviateStore{
		client:    client,
		className: className,
	}, nil
}

func (s *WeaviateStore) chunkClass() *models.Class {
	return &models.Class{
		Class: s.className,
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "chunkId", DataType: []string{"text"}},
		},
		// Vectors are supplied by the caller
		Vectorizer:      "none",
		VectorIndexType: "hnsw",
		VectorIndexConfig: map[string]interface{}{
			"distance": "cosine",
		},
	}
}

// EnsureSchema creates the chunk class if it doesn't exist. Two concurrent
// callers can both observe the class as absent; the loser of the creation
// race gets an "already exists" error, which is not a failure.
func (s *WeaviateStore) EnsureSchema(ctx context.Context) error {
	schema, err := s.client.Schema().Getter().Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to get schema: %v", err)
	}

	for _, class := range schema.Classes {
		if class.Class == s.className {
			return nil
		}
	}

	err = s.client.Schema().ClassCreator().WithClass(s.chunkClass()).Do(ctx)
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("failed to create %s class: %v", s.className, err)
	}
	return nil
}

// ReInit drops and recreates the chunk class.
func (s *WeaviateStore) ReInit(ctx context.Context) error {
	err := s.client.Schema().ClassDeleter().WithClassName(s.className).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete %s class: %v", s.className, err)
	}

	err = s.client.Schema().ClassCreator().WithClass(s.chunkClass()).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to create %s class: %v", s.className, err)
	}
	return nil
}

// UpsertChunk writes one record with a caller-provided vector. The record
// UUID is derived from the chunk content, so writing the same text again
// overwrites the existing record instead of accumulating duplicates.
func (s *WeaviateStore) UpsertChunk(ctx context.Context, chunk types.DocumentChunk, vector []float32) error {
	obj := &models.Object{
		Class: s.className,
		ID:    strfmt.UUID(ChunkObjectID(chunk.Content).String()),
		Properties: map[string]interface{}{
			"content": chunk.Content,
			"chunkId": chunk.ID,
		},
		Vector: models.C11yVector(vector),
	}

	// A single-object batch write has put-or-overwrite semantics
	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
	if err != nil {
		return err
	}
	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			return fmt.Errorf("failed to upsert chunk %s: %s", chunk.ID, item.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// QueryNearest returns the limit nearest chunks by cosine distance.
func (s *WeaviateStore) QueryNearest(ctx context.Context, vector []float32, limit int) ([]ChunkMatch, error) {
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "chunkId"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}, {Name: "id"}}},
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	result, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if result.Errors != nil {
		return nil, fmt.Errorf("query failed: %v", result.Errors[0].Message)
	}

	var matches []ChunkMatch
	get, _ := result.Data["Get"].(map[string]interface{})
	if data, ok := get[s.className].([]interface{}); ok {
		for _, item := range data {
			obj, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			match := ChunkMatch{}
			if content, ok := obj["content"].(string); ok {
				match.Content = content
			}
			if chunkID, ok := obj["chunkId"].(string); ok {
				match.ID = chunkID
			}
			if additional, ok := obj["_additional"].(map[string]interface{}); ok {
				if distance, ok := additional["distance"].(float64); ok {
					match.Distance = float32(distance)
				}
			}
			matches = append(matches, match)
		}
	}
	return matches, nil
}

// ChunkObjectID derives a stable UUID from chunk text.
func ChunkObjectID(content string) uuid.UUID {
	return uuid.NewSHA1(chunkIDNamespace, []byte(content))
}

func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}
