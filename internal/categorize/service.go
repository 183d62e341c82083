// Package categorize assigns restaurant expense categories to persisted
// statement transactions with a cheap text model. It runs after extraction,
// as a sweep: load a restaurant's uncategorized transactions, label them in
// batches, write the resolved categories back.
package categorize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/toyiyo/nimble-pnl-sub019/constants"
	"github.com/toyiyo/nimble-pnl-sub019/internal/jsonrepair"
	"github.com/toyiyo/nimble-pnl-sub019/internal/repository"
)

// chatCompleter is the slice of the OpenAI client the service uses.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// TransactionStore is the repository slice the sweep reads from and writes
// back to.
type TransactionStore interface {
	ListUncategorized(ctx context.Context, restaurantID uuid.UUID) ([]repository.UncategorizedTransaction, error)
	SetCategories(ctx context.Context, updates []repository.CategoryUpdate) error
}

type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	BatchSize int
	Timeout   time.Duration
}

type Service struct {
	client    chatCompleter
	store     TransactionStore
	model     string
	batchSize int
	timeout   time.Duration
	log       *slog.Logger
}

// Assignment pairs one input description with its resolved category.
// Recognized reports whether the model's label mapped cleanly onto the
// taxonomy; unrecognized labels fall back to Other.
type Assignment struct {
	Description string             `json:"description"`
	Category    constants.Category `json:"category"`
	Recognized  bool               `json:"recognized"`
}

func NewService(cfg Config, store TransactionStore, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 40
	}
	return &Service{
		client:    openai.NewClientWithConfig(oc),
		store:     store,
		model:     cfg.Model,
		batchSize: batch,
		timeout:   cfg.Timeout,
		log:       log,
	}
}

// RunSummary reports one categorization sweep.
type RunSummary struct {
	Scanned     int          `json:"scanned"`
	Updated     int          `json:"updated"`
	Assignments []Assignment `json:"assignments,omitempty"`
}

// CategorizeRestaurant loads the restaurant's uncategorized transactions,
// resolves a category for each, and persists the assignments. A restaurant
// with nothing pending is a successful no-op; the model is never called.
func (s *Service) CategorizeRestaurant(ctx context.Context, restaurantID uuid.UUID) (*RunSummary, error) {
	start := time.Now()

	pending, err := s.store.ListUncategorized(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("list uncategorized: %w", err)
	}
	sum := &RunSummary{Scanned: len(pending)}
	if len(pending) == 0 {
		return sum, nil
	}

	descriptions := make([]string, len(pending))
	for i, p := range pending {
		descriptions[i] = p.Description
	}
	assignments, err := s.Categorize(ctx, descriptions)
	if err != nil {
		return nil, err
	}
	sum.Assignments = assignments

	updates := make([]repository.CategoryUpdate, len(pending))
	for i, p := range pending {
		updates[i] = repository.CategoryUpdate{ID: p.ID, Category: assignments[i].Category}
	}
	if err := s.store.SetCategories(ctx, updates); err != nil {
		return nil, fmt.Errorf("persist categories: %w", err)
	}
	sum.Updated = len(updates)

	s.log.Info("categorize.run",
		"restaurant_id", restaurantID.String(),
		"scanned", sum.Scanned,
		"updated", sum.Updated,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return sum, nil
}

const systemPrompt = `You categorize restaurant expenses. For each numbered transaction description,
pick exactly one category from the allowed list. Respond with a JSON object:
{"assignments": [{"index": 1, "category": "<category>"}]}
Use "Other" when nothing fits. Do not invent categories.`

// Categorize resolves a category for every description, preserving input
// order. Descriptions the model skips or mislabels come back as Other rather
// than being dropped.
func (s *Service) Categorize(ctx context.Context, descriptions []string) ([]Assignment, error) {
	out := make([]Assignment, len(descriptions))
	for i, d := range descriptions {
		out[i] = Assignment{Description: d, Category: constants.Other}
	}

	for start := 0; start < len(descriptions); start += s.batchSize {
		end := start + s.batchSize
		if end > len(descriptions) {
			end = len(descriptions)
		}
		if err := s.categorizeBatch(ctx, descriptions[start:end], out[start:end]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Service) categorizeBatch(ctx context.Context, descriptions []string, out []Assignment) error {
	start := time.Now()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var sb strings.Builder
	sb.WriteString("Allowed categories: ")
	sb.WriteString(strings.Join(constants.AsStringSlice(), ", "))
	sb.WriteString("\n\nTransactions:\n")
	for i, d := range descriptions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, d)
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
		Temperature:    0.1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return fmt.Errorf("categorize call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("categorize call: empty response")
	}

	_, list, err := jsonrepair.Recover(resp.Choices[0].Message.Content, "assignments")
	if err != nil {
		return fmt.Errorf("categorize parse: %w", err)
	}

	recognized := 0
	for _, raw := range list {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		idx := int(jsonNum(obj["index"])) - 1
		if idx < 0 || idx >= len(out) {
			continue
		}
		label, _ := obj["category"].(string)
		cat, known := constants.Canonicalize(label)
		out[idx].Category = cat
		out[idx].Recognized = known
		if known {
			recognized++
		}
	}

	s.log.Info("categorize.batch",
		"model", s.model,
		"size", len(descriptions),
		"recognized", recognized,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func jsonNum(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		var f float64
		_, _ = fmt.Sscanf(t, "%f", &f)
		return f
	default:
		return 0
	}
}
