// Package generator produces grounded answers from retrieved context. The
// main Generate path builds a strict "answer from this context only" prompt
// and appends a numbered source footer. The auxiliary helpers (follow-up
// questions, summarization, relevance check, rephrasing) are advisory and
// degrade to safe fallbacks on provider failure rather than surfacing errors.
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/robolabs/robotutor/internal/rag"
)

// DefaultSystemPrompt frames the model as a textbook assistant that must not
// answer beyond the provided context.
const DefaultSystemPrompt = `You are a helpful teaching assistant for a robotics textbook. Answer questions using only the provided context from the textbook. If the context does not contain the information needed, say so clearly instead of guessing. Cite concepts accurately and keep answers concise.`

// Default generation parameters.
const (
	DefaultTemperature float32 = 0.7
	DefaultMaxTokens           = 1000

	// DefaultFollowUps is the follow-up question count when the caller
	// passes 0.
	DefaultFollowUps = 3

	// DefaultSummaryLength is the summary character budget when the caller
	// passes 0.
	DefaultSummaryLength = 200
)

// Options tune answer generation.
type Options struct {
	// Model overrides the provider's default model when non-empty.
	Model string

	// Temperature is the sampling temperature (default 0.7).
	Temperature float32

	// MaxTokens caps the completion length (default 1000).
	MaxTokens int

	// SystemPrompt replaces DefaultSystemPrompt when non-empty.
	SystemPrompt string

	// IncludeSources controls the numbered source footer (default true).
	IncludeSources bool
}

// DefaultOptions returns the baseline generation options.
func DefaultOptions() Options {
	return Options{
		Temperature:    DefaultTemperature,
		MaxTokens:      DefaultMaxTokens,
		IncludeSources: true,
	}
}

// Generator turns retrieval results into model answers.
type Generator struct {
	completer rag.Completer
}

// New constructs a Generator over the given completion provider.
func New(completer rag.Completer) (*Generator, error) {
	if completer == nil {
		return nil, fmt.Errorf("generator: completer must not be nil")
	}
	return &Generator{completer: completer}, nil
}

// Generate asks the model to answer query using only the retrieved context
// and returns the answer with the retrieval's deduplicated sources attached.
func (g *Generator) Generate(ctx context.Context, query string, retrieval *rag.RetrievalResult, opts Options) (*rag.GeneratedResponse, error) {
	if retrieval == nil {
		return nil, fmt.Errorf("generator: retrieval result must not be nil")
	}
	opts = withDefaults(opts)

	system := opts.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}

	user := fmt.Sprintf("Context from the textbook:\n%s\n\n---\n\nQuestion: %s\n\nPlease answer the question based on the context provided above. If the context doesn't contain enough information to answer fully, please say so.",
		retrieval.Context, query)

	answer, err := g.completer.Complete(ctx, []rag.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, rag.CompletionOptions{
		Model:       opts.Model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generator: failed to generate response: %w", err)
	}

	if opts.IncludeSources && len(retrieval.Sources) > 0 {
		answer += formatSources(retrieval.Sources)
	}

	return &rag.GeneratedResponse{
		Answer:          answer,
		Sources:         retrieval.Sources,
		RetrievedChunks: len(retrieval.Results),
	}, nil
}

// FollowUpQuestions asks the model for up to count follow-up questions the
// reader might ask next (default 3). Provider failure or unparseable output
// yields an empty list, never an error.
func (g *Generator) FollowUpQuestions(ctx context.Context, query, answer string, count int) []string {
	if count <= 0 {
		count = DefaultFollowUps
	}
	prompt := fmt.Sprintf("Based on this question and answer about robotics, suggest up to %d natural follow-up questions a student might ask next. Return one question per line, no numbering.\n\nQuestion: %s\n\nAnswer: %s", count, query, answer)

	raw, err := g.completer.Complete(ctx, []rag.Message{
		{Role: "user", Content: prompt},
	}, rag.CompletionOptions{Temperature: 0.8, MaxTokens: 300})
	if err != nil {
		return nil
	}

	var questions []string
	for _, line := range strings.Split(raw, "\n") {
		q := stripListMarker(strings.TrimSpace(line))
		if q == "" || !strings.HasSuffix(q, "?") {
			continue
		}
		questions = append(questions, q)
		if len(questions) == count {
			break
		}
	}
	return questions
}

// Summarize condenses text to at most maxLength characters (default 200).
// On provider failure it returns the first maxLength characters of the input
// followed by "..."; input already within the budget is returned unchanged.
func (g *Generator) Summarize(ctx context.Context, text string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultSummaryLength
	}

	prompt := fmt.Sprintf("Summarize the following text in at most %d characters:\n\n%s", maxLength, text)
	summary, err := g.completer.Complete(ctx, []rag.Message{
		{Role: "user", Content: prompt},
	}, rag.CompletionOptions{Temperature: 0.3, MaxTokens: maxLength})
	if err != nil {
		runes := []rune(text)
		if len(runes) <= maxLength {
			return text
		}
		return string(runes[:maxLength]) + "..."
	}
	return strings.TrimSpace(summary)
}

// IsRelevant asks the model whether the question falls within the robotics
// domain the knowledge base covers. Ambiguous output or provider failure
// returns true: an infrastructure hiccup must never block a question.
func (g *Generator) IsRelevant(ctx context.Context, query string) bool {
	prompt := fmt.Sprintf("Is the following question about robotics, robot hardware, perception, control, or related engineering topics that a robotics textbook would cover? Reply with exactly YES or NO.\n\nQuestion: %s", query)
	raw, err := g.completer.Complete(ctx, []rag.Message{
		{Role: "user", Content: prompt},
	}, rag.CompletionOptions{Temperature: 0, MaxTokens: 5})
	if err != nil {
		return true
	}
	return !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(raw)), "NO")
}

// Rephrase rewrites a query for better retrieval. On provider failure it
// returns the original query unchanged.
func (g *Generator) Rephrase(ctx context.Context, query string) string {
	prompt := fmt.Sprintf("Rephrase this question to be clearer and more specific for searching a robotics textbook. Return only the rephrased question.\n\nQuestion: %s", query)
	raw, err := g.completer.Complete(ctx, []rag.Message{
		{Role: "user", Content: prompt},
	}, rag.CompletionOptions{Temperature: 0.5, MaxTokens: 100})
	if err != nil {
		return query
	}
	rephrased := strings.TrimSpace(raw)
	if rephrased == "" {
		return query
	}
	return rephrased
}

func withDefaults(o Options) Options {
	if o.Temperature == 0 {
		o.Temperature = DefaultTemperature
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	return o
}

// formatSources renders the numbered source footer appended to answers.
func formatSources(sources []rag.Source) string {
	var b strings.Builder
	b.WriteString("\n\n**Sources:**")
	for i, s := range sources {
		fmt.Fprintf(&b, "\n%d. %s", i+1, s.Title)
	}
	return b.String()
}

// stripListMarker removes a leading "1." / "1)" / "-" / "*" list marker.
func stripListMarker(s string) string {
	s = strings.TrimLeft(s, "-* ")
	for i, r := range s {
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '.' || r == ')' {
			return strings.TrimSpace(s[i+1:])
		}
		return strings.TrimSpace(s[i:])
	}
	return ""
}
