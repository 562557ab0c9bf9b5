package service

import (
	"context"

	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/pkg/elasticsearch"
)

// ContactSearch indexes identities for display-name lookup
type ContactSearch interface {
	Index(ctx context.Context, user *domain.User) error
	Remove(ctx context.Context, userID string) error
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

type esContactSearch struct {
	client *elasticsearch.Client
	index  string
}

// NewContactSearch creates an Elasticsearch-backed ContactSearch and ensures its index
func NewContactSearch(ctx context.Context, client *elasticsearch.Client, index string) (ContactSearch, error) {
	if index == "" {
		index = "chat_users"
	}
	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"display_name": map[string]interface{}{"type": "text"},
				"photo_url":    map[string]interface{}{"type": "keyword", "index": false},
			},
		},
	}
	if err := client.CreateIndex(ctx, index, mapping); err != nil {
		return nil, err
	}
	return &esContactSearch{client: client, index: index}, nil
}

type contactDocument struct {
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

func (s *esContactSearch) Index(ctx context.Context, user *domain.User) error {
	if user.IsDeleted {
		return s.Remove(ctx, user.ID)
	}
	return s.client.IndexDocument(ctx, s.index, user.ID, &contactDocument{
		DisplayName: user.DisplayName,
		PhotoURL:    user.PhotoURL,
	})
}

func (s *esContactSearch) Remove(ctx context.Context, userID string) error {
	return s.client.DeleteDocument(ctx, s.index, userID)
}

// Search returns matching identity ids, best match first
func (s *esContactSearch) Search(ctx context.Context, query string, limit int) ([]string, error) {
	return s.client.SearchIDs(ctx, s.index, contactQuery(query), limit)
}

func contactQuery(q string) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"match_phrase_prefix": map[string]interface{}{
				"display_name": map[string]interface{}{
					"query": q,
				},
			},
		},
		"_source": false,
	}
}
