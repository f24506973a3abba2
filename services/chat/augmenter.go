package chat

import (
	"strings"

	"github.com/upb/rag-chat/internal/rag"
	"github.com/upb/rag-chat/services"
)

// DefaultPromptTemplate grounds the answer in the retrieved context. It must
// contain the {context} and {query} placeholders.
const DefaultPromptTemplate = `Context information is below.

---------------------
{context}
---------------------

Given the context information and no prior knowledge, answer the query.

Follow these rules:

1. If the answer is not in the context, just say that you don't know.
2. Avoid statements like "Based on the context..." or "The provided information...".

Query: {query}

Answer:
`

// Augmenter splices retrieved documents into the user prompt.
type Augmenter struct {
	template   string
	allowEmpty bool
}

// NewAugmenter creates an augmenter with DefaultPromptTemplate.
func NewAugmenter(allowEmptyContext bool) *Augmenter {
	return &Augmenter{template: DefaultPromptTemplate, allowEmpty: allowEmptyContext}
}

// NewAugmenterWithTemplate creates an augmenter with a custom template.
func NewAugmenterWithTemplate(template string, allowEmptyContext bool) (*Augmenter, error) {
	if !strings.Contains(template, "{context}") || !strings.Contains(template, "{query}") {
		return nil, services.InvalidArgument("prompt template must contain {context} and {query}")
	}
	return &Augmenter{template: template, allowEmpty: allowEmptyContext}, nil
}

// AllowEmptyContext reports whether an empty retrieval result is accepted.
func (a *Augmenter) AllowEmptyContext() bool { return a.allowEmpty }

// Augment renders the grounded user message. Document texts are joined by
// newlines in result order. An empty result fails with an empty context
// error unless empty context is allowed.
func (a *Augmenter) Augment(query string, docs []rag.Document) (string, error) {
	if len(docs) == 0 && !a.allowEmpty {
		return "", services.NewDomainError(services.ErrorTypeEmptyContext, services.ErrEmptyContext.Message, nil)
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	return strings.NewReplacer(
		"{context}", strings.Join(texts, "\n"),
		"{query}", query,
	).Replace(a.template), nil
}
