package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"

	"google.golang.org/genai"
)

// Embedder produces embedding vectors for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedding task types. Queries and indexed documents use asymmetric
// task types so the model places them in comparable vector spaces.
const (
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

// GenAIEmbedder computes vectors through a Gemini embedding model.
type GenAIEmbedder struct {
	client *genai.Client
	model  string
}

// NewGenAIEmbedder builds an embedder over the given model.
func NewGenAIEmbedder(apiKey, model string) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	return &GenAIEmbedder{client: client, model: model}, nil
}

// embed issues one EmbedContent call covering all texts.
func (e *GenAIEmbedder) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType: task,
	})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed content: got %d vectors for %d texts",
			len(result.Embeddings), len(texts))
	}

	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

// Embed vectorizes a search query.
func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch vectorizes documents for indexing.
func (e *GenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, texts, taskRetrievalDocument)
}

// Match is one search hit.
type Match struct {
	Name  string
	Score float64
}

// Searcher ranks knowledge sources by embedding similarity to a query.
// Ranking is advisory: it never reorders the sets fed to the context
// assembler.
type Searcher struct {
	embedder Embedder
	store    *Store
}

// NewSearcher builds a searcher over the given store.
func NewSearcher(embedder Embedder, store *Store) *Searcher {
	return &Searcher{embedder: embedder, store: store}
}

// Index embeds every document and persists the vectors.
func (s *Searcher) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("index documents: %w", err)
	}
	for i, vec := range vectors {
		if err := s.store.SaveEmbedding(docs[i].Name, vec); err != nil {
			return err
		}
	}
	return nil
}

// Search returns up to limit documents ranked by cosine similarity.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]Match, error) {
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	stored, err := s.store.LoadEmbeddings()
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(stored))
	for name, vec := range stored {
		matches = append(matches, Match{Name: name, Score: cosine(queryVec, vec)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Name < matches[j].Name
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
