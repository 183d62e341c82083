package pipeline

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/toyiyo/nimble-pnl-sub019/constants"
	"github.com/toyiyo/nimble-pnl-sub019/internal/extract"
	"github.com/toyiyo/nimble-pnl-sub019/internal/provider"
)

// Extractor is the fallback orchestrator seam; fakes stand in for it in tests.
type Extractor interface {
	Run(ctx context.Context, doc provider.Document) (*extract.Attempt, error)
}

// DocumentStore covers the parent-row lifecycle the pipelines drive.
type DocumentStore interface {
	CreateDocument(ctx context.Context, restaurantID uuid.UUID, kind constants.MediaKind) (uuid.UUID, error)
	SetStatus(ctx context.Context, id uuid.UUID, status constants.UploadStatus, errMsg string) error
}

// Outcome is what a pipeline run reports back to the API layer. It is
// populated even when the run failed partway, so callers always learn the
// document ID and terminal status.
type Outcome struct {
	DocumentID      uuid.UUID
	Status          constants.UploadStatus
	VendorOrBank    string
	InsertedCount   int
	SkippedCount    int
	Warnings        []string
	ModelUsed       string
	AttemptedModels []string
	Truncated       bool
	Message         string
}

// numFromAny coerces the model's document-level amounts, which arrive as
// either numbers or quoted strings. Unparseable values collapse to zero;
// totals are advisory, not load-bearing.
func numFromAny(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		s := strings.TrimPrefix(strings.TrimSpace(strings.ReplaceAll(t, ",", "")), "$")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return s
}
