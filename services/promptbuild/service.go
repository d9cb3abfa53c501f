package promptbuild

import (
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/upb/legal-rag/models"
)

// answerTemplate renders the query and the budgeted context into the
// generation prompt. Reference blocks are machine-parseable and
// numbered 1-based in budgeted order; citation assembly reuses that
// order unchanged, so renderer order and citation order always match.
const answerTemplate = `You are a legal research assistant. Answer the question using only the
numbered context passages below. Cite passages by their number, e.g. [1].
If the context does not contain the answer, say so.

Question: {{.Query}}

Context:
{{- range $i, $item := .Items}}
[{{add $i 1}}] (doc={{$item.DocumentID}} chunk={{$item.ChunkIndex}} score={{printf "%.4f" $item.Score}})
{{$item.Snippet}}
{{- end}}

Answer:`

// Composer renders (query, budgeted items) into a single prompt. The
// rendering is pure and deterministic for identical input.
type Composer struct {
	tmpl   *template.Template
	logger *zap.Logger
}

type templateData struct {
	Query string
	Items []models.RetrievalItem
}

// NewComposer creates a composer with the built-in answer template.
func NewComposer(logger *zap.Logger) *Composer {
	tmpl, err := template.New("answer").
		Funcs(template.FuncMap{"add": func(a, b int) int { return a + b }}).
		Parse(answerTemplate)
	if err != nil {
		// Parse failure of the built-in template is caught by tests;
		// a nil tmpl routes every Build through the fallback.
		logger.Error("failed to parse answer template", zap.Error(err))
		tmpl = nil
	}
	return &Composer{tmpl: tmpl, logger: logger}
}

// Build renders the prompt. It cannot fail the request: on any template
// error it falls back to a minimal deterministic format that preserves
// the same numbering and source-identifying fields, keeping citations
// traceable.
func (c *Composer) Build(query string, items []models.RetrievalItem) string {
	if c.tmpl != nil {
		var b strings.Builder
		if err := c.tmpl.Execute(&b, templateData{Query: query, Items: items}); err == nil {
			return b.String()
		} else {
			c.logger.Warn("prompt template execution failed, using fallback", zap.Error(err))
		}
	}
	return c.fallback(query, items)
}

// fallback is the correctness floor: plain fmt rendering with identical
// item numbering and reference fields.
func (c *Composer) fallback(query string, items []models.RetrievalItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nContext:\n", query)
	for i, item := range items {
		fmt.Fprintf(&b, "[%d] (doc=%s chunk=%d score=%.4f)\n%s\n\n",
			i+1, item.DocumentID, item.ChunkIndex, item.Score, item.Snippet)
	}
	b.WriteString("Answer:")
	return b.String()
}
