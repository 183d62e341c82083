package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/toyiyo/nimble-pnl-sub019/constants"
	"github.com/toyiyo/nimble-pnl-sub019/internal/extract"
	"github.com/toyiyo/nimble-pnl-sub019/internal/jsonrepair"
	"github.com/toyiyo/nimble-pnl-sub019/internal/provider"
	"github.com/toyiyo/nimble-pnl-sub019/internal/repository"
)

// StatementCommitter persists a bank statement extraction.
type StatementCommitter interface {
	CommitStatement(ctx context.Context, res *extract.ExtractionResult, txns []extract.ExtractedRecord) (repository.CommitStats, error)
}

// StatementPipeline mirrors the receipt pipeline with the opposite
// invalid-record policy: flagged transactions are persisted alongside valid
// ones, marked for review. A bank statement cannot be re-photographed, so
// dropping rows would silently lose money movements.
type StatementPipeline struct {
	Docs      DocumentStore
	Extractor Extractor
	Store     StatementCommitter
	Validator *extract.Validator
	Logger    *slog.Logger
}

func NewStatementPipeline(docs DocumentStore, ex Extractor, store StatementCommitter, logger *slog.Logger) *StatementPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatementPipeline{
		Docs:      docs,
		Extractor: ex,
		Store:     store,
		Validator: extract.NewTransactionValidator(logger),
		Logger:    logger,
	}
}

func (p *StatementPipeline) Process(ctx context.Context, restaurantID uuid.UUID, doc provider.Document) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{Status: constants.StatusError}

	docID, err := p.Docs.CreateDocument(ctx, restaurantID, doc.Kind)
	if err != nil {
		return out, fmt.Errorf("create document: %w", err)
	}
	out.DocumentID = docID
	_ = p.Docs.SetStatus(ctx, docID, constants.StatusProcessing, "")

	att, err := p.Extractor.Run(ctx, doc)
	if err != nil {
		p.fail(ctx, out, "extraction failed: all models exhausted")
		return out, err
	}
	out.ModelUsed = att.ModelUsed
	out.AttemptedModels = att.AttemptedModels
	out.Truncated = att.Truncated

	obj, list, err := jsonrepair.Recover(att.Text, "transactions")
	if err != nil {
		p.fail(ctx, out, err.Error())
		return out, err
	}

	sum := p.Validator.Validate(list)
	out.Warnings = sum.Warnings

	res := &extract.ExtractionResult{
		SourceDocumentID: docID,
		RestaurantID:     restaurantID,
		VendorOrBank:     stringFromAny(obj["bankName"]),
		ModelUsed:        att.ModelUsed,
		AttemptedModels:  att.AttemptedModels,
		Truncated:        att.Truncated,
		RawPayload:       att.Text,
	}

	out.VendorOrBank = res.VendorOrBank

	stats, commitErr := p.Store.CommitStatement(ctx, res, sum.Records)
	out.InsertedCount = stats.InsertedCount

	out.Status, out.Message = statementStatus(sum, commitErr)
	_ = p.Docs.SetStatus(ctx, docID, out.Status, out.Message)

	p.Logger.Info("pipeline.statement.done",
		"document_id", docID,
		"status", string(out.Status),
		"inserted", out.InsertedCount,
		"flagged", sum.InvalidCount,
		"model", out.ModelUsed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (p *StatementPipeline) fail(ctx context.Context, out *Outcome, msg string) {
	out.Status = constants.StatusError
	out.Message = msg
	_ = p.Docs.SetStatus(ctx, out.DocumentID, constants.StatusError, msg)
}

func statementStatus(sum extract.ValidationSummary, commitErr error) (constants.UploadStatus, string) {
	switch {
	case commitErr != nil:
		// A failed commit is an error even when earlier batches landed; the
		// message states exactly how many did.
		return constants.StatusError, commitErr.Error()
	case sum.InvalidCount > 0:
		return constants.StatusPartialSuccess,
			fmt.Sprintf("%d of %d transactions flagged for review", sum.InvalidCount, len(sum.Records))
	default:
		return constants.StatusProcessed, ""
	}
}
