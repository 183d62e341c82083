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

// ReceiptCommitter persists a receipt extraction.
type ReceiptCommitter interface {
	CommitReceipt(ctx context.Context, res *extract.ExtractionResult, items []extract.ExtractedRecord, skipped int) (repository.CommitStats, error)
}

// ReceiptPipeline runs a receipt document through extraction, repair,
// validation and persistence. Receipt policy is strict: structurally
// incomplete line items are skipped before insert rather than persisted for
// review, since re-photographing a receipt is cheap.
type ReceiptPipeline struct {
	Docs      DocumentStore
	Extractor Extractor
	Store     ReceiptCommitter
	Validator *extract.Validator
	Logger    *slog.Logger
}

func NewReceiptPipeline(docs DocumentStore, ex Extractor, store ReceiptCommitter, logger *slog.Logger) *ReceiptPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiptPipeline{
		Docs:      docs,
		Extractor: ex,
		Store:     store,
		Validator: extract.NewLineItemValidator(logger),
		Logger:    logger,
	}
}

// Process drives one receipt end to end. The returned Outcome is populated
// even on failure so callers always learn the document ID and final status.
func (p *ReceiptPipeline) Process(ctx context.Context, restaurantID uuid.UUID, doc provider.Document) (*Outcome, error) {
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

	obj, list, err := jsonrepair.Recover(att.Text, "lineItems")
	if err != nil {
		p.fail(ctx, out, err.Error())
		return out, err
	}

	sum := p.Validator.Validate(list)
	out.Warnings = sum.Warnings

	res := &extract.ExtractionResult{
		SourceDocumentID: docID,
		RestaurantID:     restaurantID,
		VendorOrBank:     stringFromAny(obj["vendor"]),
		Totals: extract.TotalsSummary{
			Subtotal: numFromAny(obj["subtotal"]),
			Tax:      numFromAny(obj["tax"]),
			Total:    numFromAny(obj["total"]),
		},
		ModelUsed:       att.ModelUsed,
		AttemptedModels: att.AttemptedModels,
		Truncated:       att.Truncated,
		RawPayload:      att.Text,
	}

	out.VendorOrBank = res.VendorOrBank

	insertable := make([]extract.ExtractedRecord, 0, sum.ValidCount)
	for _, r := range sum.Records {
		if !r.HasValidationError {
			insertable = append(insertable, r)
		}
	}
	skipped := len(sum.Records) - len(insertable)

	stats, commitErr := p.Store.CommitReceipt(ctx, res, insertable, skipped)
	out.InsertedCount = stats.InsertedCount
	out.SkippedCount = stats.SkippedCount

	out.Status, out.Message = receiptStatus(stats, len(insertable), commitErr)
	_ = p.Docs.SetStatus(ctx, docID, out.Status, out.Message)

	p.Logger.Info("pipeline.receipt.done",
		"document_id", docID,
		"status", string(out.Status),
		"inserted", out.InsertedCount,
		"skipped", out.SkippedCount,
		"model", out.ModelUsed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (p *ReceiptPipeline) fail(ctx context.Context, out *Outcome, msg string) {
	out.Status = constants.StatusError
	out.Message = msg
	_ = p.Docs.SetStatus(ctx, out.DocumentID, constants.StatusError, msg)
}

// receiptStatus derives the terminal document status from what actually
// landed. Counts stay honest: a partial commit reports exactly the rows from
// completed batches.
func receiptStatus(stats repository.CommitStats, attempted int, commitErr error) (constants.UploadStatus, string) {
	switch {
	case commitErr != nil:
		// A failed commit is an error even when earlier batches landed; the
		// message states exactly how many did.
		return constants.StatusError, commitErr.Error()
	case attempted == 0:
		return constants.StatusError, "no structurally valid line items"
	case stats.SkippedCount > 0:
		return constants.StatusPartialSuccess,
			fmt.Sprintf("skipped %d structurally incomplete line items", stats.SkippedCount)
	default:
		return constants.StatusProcessed, ""
	}
}
