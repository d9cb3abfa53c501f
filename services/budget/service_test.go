package budget

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/legal-rag/models"
)

func itemWithSnippet(snippet string) models.RetrievalItem {
	return models.RetrievalItem{
		DocumentID: uuid.New(),
		ChunkIndex: 0,
		Score:      0.9,
		Snippet:    snippet,
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens("", ""))
	assert.Equal(t, 1, EstimateTokens("a", ""))
	assert.Equal(t, 1, EstimateTokens("abcd", ""))
	assert.Equal(t, 2, EstimateTokens("abcde", ""))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("x", 100), ""))

	// Estimator is model-independent for now
	assert.Equal(t, EstimateTokens("abcdefgh", "gpt-4o-mini"), EstimateTokens("abcdefgh", "gpt-4o"))
}

func TestBudgeter_Fit(t *testing.T) {
	budgeter := NewBudgeter(zap.NewNop())

	t.Run("empty input yields empty output", func(t *testing.T) {
		assert.Empty(t, budgeter.Fit(nil, 100, ""))
	})

	t.Run("everything fits within budget", func(t *testing.T) {
		items := []models.RetrievalItem{
			itemWithSnippet(strings.Repeat("a", 40)), // 10 tokens
			itemWithSnippet(strings.Repeat("b", 40)), // 10 tokens
		}

		budgeted := budgeter.Fit(items, 100, "")
		require.Len(t, budgeted, 2)
		assert.Equal(t, items[0].Snippet, budgeted[0].Snippet)
		assert.Equal(t, items[1].Snippet, budgeted[1].Snippet)
	})

	t.Run("stops at the first item that exceeds the budget", func(t *testing.T) {
		items := []models.RetrievalItem{
			itemWithSnippet(strings.Repeat("a", 40)),  // 10 tokens
			itemWithSnippet(strings.Repeat("b", 400)), // 100 tokens, over
			itemWithSnippet(strings.Repeat("c", 4)),   // would fit, but after cutoff
		}

		budgeted := budgeter.Fit(items, 50, "")
		require.Len(t, budgeted, 1)
		assert.Equal(t, items[0].Snippet, budgeted[0].Snippet)
	})

	t.Run("oversized first item is truncated not dropped", func(t *testing.T) {
		item := itemWithSnippet(strings.Repeat("z", 1000))

		budgeted := budgeter.Fit([]models.RetrievalItem{item}, 100, "")
		require.Len(t, budgeted, 1)
		assert.True(t, strings.HasSuffix(budgeted[0].Snippet, "..."))
		assert.Len(t, budgeted[0].Snippet, 100*4+len("..."))
		// Original item is untouched
		assert.Len(t, item.Snippet, 1000)
	})

	t.Run("truncation never slices past the snippet end", func(t *testing.T) {
		// 402 chars estimate to 101 tokens, over a budget of 100, but
		// 100*4=400 is still within the snippet
		item := itemWithSnippet(strings.Repeat("z", 402))

		budgeted := budgeter.Fit([]models.RetrievalItem{item}, 100, "")
		require.Len(t, budgeted, 1)
		assert.Len(t, budgeted[0].Snippet, 400+len("..."))
	})

	t.Run("preserves ranked order", func(t *testing.T) {
		items := []models.RetrievalItem{
			itemWithSnippet("first"),
			itemWithSnippet("second"),
			itemWithSnippet("third"),
		}

		budgeted := budgeter.Fit(items, 1000, "")
		require.Len(t, budgeted, 3)
		assert.Equal(t, "first", budgeted[0].Snippet)
		assert.Equal(t, "second", budgeted[1].Snippet)
		assert.Equal(t, "third", budgeted[2].Snippet)
	})

	t.Run("non-empty input never yields empty output", func(t *testing.T) {
		items := []models.RetrievalItem{itemWithSnippet(strings.Repeat("q", 5000))}

		budgeted := budgeter.Fit(items, 100, "")
		assert.NotEmpty(t, budgeted)
	})
}
