// Package registry holds the ordered model candidate lists the extraction
// pipelines fall back across.
package registry

import "fmt"

// ModelCandidate is one entry in a fallback chain. Static configuration,
// immutable at runtime.
type ModelCandidate struct {
	Name         string // short label used in logs and attempt bookkeeping
	ID           string // provider model identifier, e.g. "google/gemini-2.0-flash-001"
	SystemPrompt string
	MaxRetries   int // retry budget for transient failures on this model
	TokenLimit   int // hard cap on requested max output tokens
}

// ClampTokens caps a caller-requested output-token ceiling to the model's
// limit. Non-positive requests fall back to the limit itself.
func (m ModelCandidate) ClampTokens(requested int) int {
	if requested <= 0 || requested > m.TokenLimit {
		return m.TokenLimit
	}
	return requested
}

// Registry is an ordered, read-only list of model candidates. The first entry
// is the preferred model; later entries are progressively cheaper or more
// available fallbacks.
type Registry struct {
	models []ModelCandidate
}

// New builds a registry from an ordered candidate list.
func New(models ...ModelCandidate) (*Registry, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("registry: at least one model candidate is required")
	}
	for i, m := range models {
		if m.ID == "" {
			return nil, fmt.Errorf("registry: candidate %d has empty model id", i)
		}
		if m.TokenLimit <= 0 {
			return nil, fmt.Errorf("registry: candidate %q has non-positive token limit", m.ID)
		}
		if m.MaxRetries < 0 {
			return nil, fmt.Errorf("registry: candidate %q has negative retry budget", m.ID)
		}
	}
	cp := make([]ModelCandidate, len(models))
	copy(cp, models)
	return &Registry{models: cp}, nil
}

// ListModels returns the candidates in priority order. The returned slice is a
// copy; callers cannot mutate registry state.
func (r *Registry) ListModels() []ModelCandidate {
	cp := make([]ModelCandidate, len(r.models))
	copy(cp, r.models)
	return cp
}

// Len reports the number of candidates.
func (r *Registry) Len() int { return len(r.models) }

const receiptSystemPrompt = "You are a receipt parser for restaurant inventory. " +
	"Extract every line item from the receipt image or PDF. Return ONLY a JSON object " +
	`with keys "vendor" (string), "receiptDate" (YYYY-MM-DD), "subtotal", "tax", "total" (numbers), ` +
	`and "lineItems": an array of objects {"rawText","parsedName","parsedQuantity","parsedPrice","unit","confidenceScore"}. ` +
	"confidenceScore is your 0..1 estimate per item. No prose, no markdown fences."

const statementSystemPrompt = "You are a bank statement parser. Extract every transaction " +
	"from the statement. Return ONLY a JSON object with keys \"bankName\" (string), " +
	"\"periodStart\", \"periodEnd\" (YYYY-MM-DD), and \"transactions\": an array of objects " +
	`{"date","description","amount","balance","confidenceScore"}. ` +
	"Amounts are signed numbers (negative for money out). No prose, no markdown fences."

// ReceiptModels is the default fallback chain for receipt extraction.
func ReceiptModels() *Registry {
	r, err := New(
		ModelCandidate{
			Name:         "gemini-flash",
			ID:           "google/gemini-2.0-flash-001",
			SystemPrompt: receiptSystemPrompt,
			MaxRetries:   2,
			TokenLimit:   8192,
		},
		ModelCandidate{
			Name:         "gpt-4o-mini",
			ID:           "openai/gpt-4o-mini",
			SystemPrompt: receiptSystemPrompt,
			MaxRetries:   2,
			TokenLimit:   4096,
		},
		ModelCandidate{
			Name:         "llama-vision",
			ID:           "meta-llama/llama-3.2-90b-vision-instruct",
			SystemPrompt: receiptSystemPrompt,
			MaxRetries:   1,
			TokenLimit:   4096,
		},
	)
	if err != nil {
		panic(err) // static configuration
	}
	return r
}

// StatementModels is the default fallback chain for bank statement extraction.
// Statements need larger output budgets than receipts.
func StatementModels() *Registry {
	r, err := New(
		ModelCandidate{
			Name:         "gemini-flash",
			ID:           "google/gemini-2.0-flash-001",
			SystemPrompt: statementSystemPrompt,
			MaxRetries:   2,
			TokenLimit:   16384,
		},
		ModelCandidate{
			Name:         "gpt-4o",
			ID:           "openai/gpt-4o",
			SystemPrompt: statementSystemPrompt,
			MaxRetries:   2,
			TokenLimit:   16384,
		},
		ModelCandidate{
			Name:         "gpt-4o-mini",
			ID:           "openai/gpt-4o-mini",
			SystemPrompt: statementSystemPrompt,
			MaxRetries:   1,
			TokenLimit:   8192,
		},
	)
	if err != nil {
		panic(err) // static configuration
	}
	return r
}
