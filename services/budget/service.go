package budget

import (
	"go.uber.org/zap"

	"github.com/upb/legal-rag/models"
)

// charsPerToken is a documented approximation, not a tokenizer. It may
// under- or over-count for non-Latin text.
const charsPerToken = 4

// truncationMarker is appended when a snippet is cut to fit the budget.
const truncationMarker = "..."

// Budgeter trims a ranked item list so the estimated token cost of the
// included snippets fits a caller-specified budget.
type Budgeter struct {
	logger *zap.Logger
}

// NewBudgeter creates a context budgeter.
func NewBudgeter(logger *zap.Logger) *Budgeter {
	return &Budgeter{logger: logger}
}

// EstimateTokens estimates the token cost of a snippet as
// ceil(len/charsPerToken). The model parameter is accepted so a real
// tokenizer can slot in later without changing callers; the current
// estimator ignores it.
func EstimateTokens(snippet string, model string) int {
	return (len(snippet) + charsPerToken - 1) / charsPerToken
}

// Fit returns the prefix of items whose cumulative estimated token cost
// stays within budgetTokens, preserving ranked order. When even the
// first item exceeds the budget, its snippet is truncated to
// budgetTokens*charsPerToken characters and returned as the sole item:
// a non-empty retrieval never degrades to empty context just because
// the budget is tight. The result is empty only when items is empty.
func (b *Budgeter) Fit(items []models.RetrievalItem, budgetTokens int, model string) []models.RetrievalItem {
	if len(items) == 0 {
		return nil
	}

	budgeted := make([]models.RetrievalItem, 0, len(items))
	usedTokens := 0

	for _, item := range items {
		itemTokens := EstimateTokens(item.Snippet, model)
		if usedTokens+itemTokens > budgetTokens {
			if len(budgeted) == 0 {
				maxChars := budgetTokens * charsPerToken
				if maxChars > len(item.Snippet) {
					maxChars = len(item.Snippet)
				}
				truncated := item
				truncated.Snippet = item.Snippet[:maxChars] + truncationMarker
				budgeted = append(budgeted, truncated)
				usedTokens = budgetTokens
			}
			break
		}
		budgeted = append(budgeted, item)
		usedTokens += itemTokens
	}

	b.logger.Debug("budgeted context",
		zap.Int("items_in", len(items)),
		zap.Int("items_out", len(budgeted)),
		zap.Int("tokens_used", usedTokens),
		zap.Int("tokens_budget", budgetTokens))

	return budgeted
}
