package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toyiyo/nimble-pnl-sub019/constants"
	"github.com/toyiyo/nimble-pnl-sub019/internal/common"
	"github.com/toyiyo/nimble-pnl-sub019/internal/extract"
)

type ReceiptStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewReceiptStore(pool *pgxpool.Pool, log *slog.Logger) *ReceiptStore {
	if log == nil {
		log = slog.Default()
	}
	return &ReceiptStore{pool: pool, log: log}
}

// CommitReceipt writes the extraction outcome: parent metadata first, then the
// line items in ordinal-ordered batches. Batches commit independently, so a
// mid-commit failure leaves the earlier batches in place and the returned
// stats report exactly what landed. skipped counts records the pipeline
// filtered out before the commit.
func (s *ReceiptStore) CommitReceipt(ctx context.Context, res *extract.ExtractionResult, items []extract.ExtractedRecord, skipped int) (CommitStats, error) {
	stats := CommitStats{SkippedCount: skipped}
	start := time.Now()

	_, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET vendor_or_bank = $2, subtotal = $3, tax = $4, total = $5,
		    model_used = $6, attempted_models = $7, truncated = $8,
		    raw_payload = $9, updated_at = now()
		WHERE id = $1`,
		res.SourceDocumentID, res.VendorOrBank,
		res.Totals.Subtotal, res.Totals.Tax, res.Totals.Total,
		res.ModelUsed, res.AttemptedModels, res.Truncated, res.RawPayload,
	)
	if err != nil {
		return stats, common.WrapError(err, "update receipt document")
	}

	inserted, err := insertInBatches(len(items), constants.InsertBatchSize, func(batchStart, batchEnd int) error {
		batch := &pgx.Batch{}
		for i := batchStart; i < batchEnd; i++ {
			it := items[i]
			batch.Queue(`
				INSERT INTO receipt_line_items
					(id, document_id, ordinal, raw_text, parsed_name, parsed_quantity,
					 parsed_price, unit, category, confidence_score, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())`,
				uuid.New(), res.SourceDocumentID, i, it.RawText, it.Name,
				it.Quantity, it.Amount, it.Unit, it.Category, it.ConfidenceScore,
			)
		}
		return s.pool.SendBatch(ctx, batch).Close()
	})
	stats.InsertedCount = inserted

	s.log.Info("repo.receipt.commit",
		"document_id", res.SourceDocumentID,
		"inserted", stats.InsertedCount,
		"skipped", stats.SkippedCount,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if err != nil {
		s.log.Error("repo.receipt.commit_partial",
			"document_id", res.SourceDocumentID,
			"inserted", inserted, "total", len(items), "error", err)
		return stats, err
	}
	return stats, nil
}

// ReceiptLineItemRow is one persisted line item.
type ReceiptLineItemRow struct {
	Ordinal         int
	RawText         string
	ParsedName      string
	ParsedQuantity  float64
	ParsedPrice     float64
	Unit            string
	Category        string
	ConfidenceScore float64
}

// ListLineItems returns a document's line items in insertion order.
func (s *ReceiptStore) ListLineItems(ctx context.Context, documentID uuid.UUID) ([]ReceiptLineItemRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ordinal, raw_text, parsed_name, parsed_quantity, parsed_price,
		       COALESCE(unit, ''), COALESCE(category, ''), confidence_score
		FROM receipt_line_items
		WHERE document_id = $1
		ORDER BY ordinal`, documentID)
	if err != nil {
		return nil, common.WrapError(err, "list line items")
	}
	defer rows.Close()

	var out []ReceiptLineItemRow
	for rows.Next() {
		var r ReceiptLineItemRow
		if err := rows.Scan(&r.Ordinal, &r.RawText, &r.ParsedName, &r.ParsedQuantity,
			&r.ParsedPrice, &r.Unit, &r.Category, &r.ConfidenceScore); err != nil {
			return nil, common.WrapError(err, "scan line item")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
