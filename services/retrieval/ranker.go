package retrieval

import (
	"math"
	"sort"
	"strings"

	"github.com/upb/legal-rag/models"
	"github.com/upb/legal-rag/services"
	"go.uber.org/zap"
)

// DefaultSnippetLength is the target excerpt length in characters.
const DefaultSnippetLength = 350

// Ranker scores stored chunks against a query vector with exact
// brute-force cosine similarity. The scan is read-only and safe for
// unbounded concurrent use. The interface is index-agnostic: an ANN
// index can replace the linear scan without touching any caller.
type Ranker struct {
	snippetLength int
	logger        *zap.Logger
}

// NewRanker creates a ranker. A non-positive snippetLength falls back
// to DefaultSnippetLength.
func NewRanker(snippetLength int, logger *zap.Logger) *Ranker {
	if snippetLength <= 0 {
		snippetLength = DefaultSnippetLength
	}
	return &Ranker{
		snippetLength: snippetLength,
		logger:        logger,
	}
}

// Rank returns the top-k chunks by cosine similarity to queryVec,
// highest score first. Ties keep the original chunk enumeration order.
// Returns services.ErrNoCandidates when no chunk carries an embedding.
func (r *Ranker) Rank(queryVec []float64, chunks []models.Chunk, k int) ([]models.RetrievalItem, error) {
	items := make([]models.RetrievalItem, 0, len(chunks))
	for i := range chunks {
		chunk := &chunks[i]
		if !chunk.HasEmbedding() {
			continue
		}
		if len(chunk.Embedding) != len(queryVec) {
			// Mixed dimensions mean the stored data and the embedding
			// provider disagree; fail fast rather than score garbage.
			return nil, services.WrapInternal("embedding dimension mismatch", nil)
		}
		items = append(items, models.RetrievalItem{
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.ChunkIndex,
			Score:      Cosine(queryVec, chunk.Embedding),
			Snippet:    r.snippet(chunk.Content),
		})
	}

	if len(items) == 0 {
		return nil, services.ErrNoCandidates
	}

	sort.SliceStable(items, func(a, b int) bool {
		return items[a].Score > items[b].Score
	})

	if k < len(items) {
		items = items[:k]
	}

	r.logger.Debug("ranked chunks",
		zap.Int("candidates", len(chunks)),
		zap.Int("returned", len(items)),
		zap.Float64("top_score", items[0].Score))

	return items, nil
}

// snippet produces an excerpt centered on the chunk content, marking
// truncated edges with an ellipsis.
func (r *Ranker) snippet(content string) string {
	if len(content) <= r.snippetLength {
		return content
	}

	start := (len(content) - r.snippetLength) / 2
	end := start + r.snippetLength

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(content[start:end])
	if end < len(content) {
		b.WriteString("...")
	}
	return b.String()
}

// Cosine computes the cosine similarity dot(a,b)/(|a||b|). It is 0.0
// when either vector has zero norm. Callers guarantee equal dimensions.
func Cosine(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
