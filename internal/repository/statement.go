package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toyiyo/nimble-pnl-sub019/constants"
	"github.com/toyiyo/nimble-pnl-sub019/internal/common"
	"github.com/toyiyo/nimble-pnl-sub019/internal/extract"
)

type StatementStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewStatementStore(pool *pgxpool.Pool, log *slog.Logger) *StatementStore {
	if log == nil {
		log = slog.Default()
	}
	return &StatementStore{pool: pool, log: log}
}

// CommitStatement persists every transaction the validator returned, flagged
// ones included: an invalid row lands with has_validation_error and its error
// map so a reviewer can repair it instead of re-uploading the statement.
// Batches commit independently; stats never overstate what landed.
func (s *StatementStore) CommitStatement(ctx context.Context, res *extract.ExtractionResult, txns []extract.ExtractedRecord) (CommitStats, error) {
	var stats CommitStats
	start := time.Now()

	_, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET vendor_or_bank = $2, model_used = $3, attempted_models = $4,
		    truncated = $5, raw_payload = $6, updated_at = now()
		WHERE id = $1`,
		res.SourceDocumentID, res.VendorOrBank,
		res.ModelUsed, res.AttemptedModels, res.Truncated, res.RawPayload,
	)
	if err != nil {
		return stats, common.WrapError(err, "update statement document")
	}

	inserted, err := insertInBatches(len(txns), constants.InsertBatchSize, func(batchStart, batchEnd int) error {
		batch := &pgx.Batch{}
		for i := batchStart; i < batchEnd; i++ {
			tx := txns[i]
			var validationErrs []byte
			if tx.HasValidationError {
				validationErrs, _ = json.Marshal(tx.ValidationErrors)
			}
			batch.Queue(`
				INSERT INTO statement_transactions
					(id, document_id, ordinal, tx_date, description, amount, balance,
					 category, confidence_score, has_validation_error, validation_errors, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())`,
				uuid.New(), res.SourceDocumentID, i, tx.Date, tx.Name, tx.Amount, tx.Balance,
				tx.Category, tx.ConfidenceScore, tx.HasValidationError, validationErrs,
			)
		}
		return s.pool.SendBatch(ctx, batch).Close()
	})
	stats.InsertedCount = inserted

	s.log.Info("repo.statement.commit",
		"document_id", res.SourceDocumentID,
		"inserted", stats.InsertedCount,
		"total", len(txns),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if err != nil {
		s.log.Error("repo.statement.commit_partial",
			"document_id", res.SourceDocumentID,
			"inserted", inserted, "total", len(txns), "error", err)
		return stats, err
	}
	return stats, nil
}

// UncategorizedTransaction is a statement row still awaiting a category.
type UncategorizedTransaction struct {
	ID          uuid.UUID
	Description string
}

// ListUncategorized returns a restaurant's transactions with no category yet,
// oldest documents first so a bounded sweep drains the backlog in order.
func (s *StatementStore) ListUncategorized(ctx context.Context, restaurantID uuid.UUID) ([]UncategorizedTransaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.description
		FROM statement_transactions t
		JOIN documents d ON d.id = t.document_id
		WHERE d.restaurant_id = $1
		  AND (t.category IS NULL OR t.category = '')
		ORDER BY d.created_at, t.ordinal`, restaurantID)
	if err != nil {
		return nil, common.WrapError(err, "list uncategorized transactions")
	}
	defer rows.Close()

	var out []UncategorizedTransaction
	for rows.Next() {
		var u UncategorizedTransaction
		if err := rows.Scan(&u.ID, &u.Description); err != nil {
			return nil, common.WrapError(err, "scan uncategorized transaction")
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CategoryUpdate assigns one transaction its resolved category.
type CategoryUpdate struct {
	ID       uuid.UUID
	Category constants.Category
}

// SetCategories writes resolved categories back, batched like the inserts.
func (s *StatementStore) SetCategories(ctx context.Context, updates []CategoryUpdate) error {
	for start := 0; start < len(updates); start += constants.InsertBatchSize {
		end := start + constants.InsertBatchSize
		if end > len(updates) {
			end = len(updates)
		}
		batch := &pgx.Batch{}
		for i := start; i < end; i++ {
			batch.Queue(`UPDATE statement_transactions SET category = $2 WHERE id = $1`,
				updates[i].ID, updates[i].Category)
		}
		if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
			return common.WrapError(err, "update transaction categories")
		}
	}
	s.log.Info("repo.statement.categorize", "updated", len(updates))
	return nil
}

// TransactionRow is one persisted statement transaction, as exported.
type TransactionRow struct {
	Ordinal            int
	Date               string
	Description        string
	Amount             float64
	Balance            *float64
	Category           string
	ConfidenceScore    float64
	HasValidationError bool
}

// ListTransactions returns a document's transactions in insertion order.
func (s *StatementStore) ListTransactions(ctx context.Context, documentID uuid.UUID) ([]TransactionRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ordinal, COALESCE(tx_date, ''), description, amount, balance,
		       COALESCE(category, ''), confidence_score, has_validation_error
		FROM statement_transactions
		WHERE document_id = $1
		ORDER BY ordinal`, documentID)
	if err != nil {
		return nil, common.WrapError(err, "list transactions")
	}
	defer rows.Close()

	var out []TransactionRow
	for rows.Next() {
		var r TransactionRow
		if err := rows.Scan(&r.Ordinal, &r.Date, &r.Description, &r.Amount, &r.Balance,
			&r.Category, &r.ConfidenceScore, &r.HasValidationError); err != nil {
			return nil, common.WrapError(err, "scan transaction")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
