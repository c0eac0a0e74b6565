package services

import (
	"context"
	"testing"
	"time"

	"github.com/quilora/backend-go/internal/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	answer string
	tokens []string
}

func (g stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.answer, nil
}

func (g stubGenerator) Stream(ctx context.Context, prompt string, onToken func(token string) error) error {
	for _, token := range g.tokens {
		if err := onToken(token); err != nil {
			return err
		}
	}
	return nil
}

type searchableStore struct {
	stubStore
	results []rag.Document
}

func (s *searchableStore) Search(ctx context.Context, req rag.SearchRequest) ([]rag.Document, error) {
	return s.results, nil
}

func newTestQueryService(store rag.DocumentStore, generator rag.Generator) *QueryService {
	pipeline := rag.NewRetrievalPipeline(stubEmbedder{}, store, generator, rag.RetrievalOptions{
		TopK:              5,
		GenerationTimeout: time.Second,
	})
	return NewQueryService(pipeline, nil, testCollector)
}

func TestQueryServiceWithoutCache(t *testing.T) {
	store := &searchableStore{results: []rag.Document{{ID: "d1", Content: "ctx", Score: 0.9}}}
	service := newTestQueryService(store, stubGenerator{answer: "the answer"})

	result, err := service.Query(context.Background(), rag.QueryInput{Query: "what?"})
	require.NoError(t, err)
	assert.Equal(t, "the answer", result.Answer)
	assert.Equal(t, 1, result.Metadata.NumDocumentsRetrieved)
}

func TestQueryServiceStreamPassthrough(t *testing.T) {
	store := &searchableStore{results: []rag.Document{{ID: "d1", Content: "ctx"}}}
	service := newTestQueryService(store, stubGenerator{tokens: []string{"a", "b"}})

	var events []rag.Event
	for ev := range service.Stream(context.Background(), rag.QueryInput{Query: "what?"}) {
		events = append(events, ev)
	}

	require.Len(t, events, 4)
	assert.Equal(t, rag.EventDocuments, events[0].Type)
	assert.Equal(t, rag.EventToken, events[1].Type)
	assert.Equal(t, rag.EventToken, events[2].Type)
	assert.Equal(t, rag.EventDone, events[3].Type)
	assert.Equal(t, 2, events[3].TokensStreamed)
}
