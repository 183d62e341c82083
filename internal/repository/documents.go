package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toyiyo/nimble-pnl-sub019/constants"
	"github.com/toyiyo/nimble-pnl-sub019/internal/common"
)

// DocumentRow mirrors one row of the documents table: the parent record every
// extracted line item or transaction hangs off.
type DocumentRow struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Kind         constants.MediaKind
	Status       constants.UploadStatus
	VendorOrBank string
	ModelUsed    string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type DocumentStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewDocumentStore(pool *pgxpool.Pool, log *slog.Logger) *DocumentStore {
	if log == nil {
		log = slog.Default()
	}
	return &DocumentStore{pool: pool, log: log}
}

// CreateDocument inserts the parent row in pending state and returns its ID.
func (s *DocumentStore) CreateDocument(ctx context.Context, restaurantID uuid.UUID, kind constants.MediaKind) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, restaurant_id, kind, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())`,
		id, restaurantID, string(kind), string(constants.StatusPending),
	)
	if err != nil {
		s.log.Error("repo.documents.create_failed", "restaurant_id", restaurantID, "error", err)
		return uuid.Nil, common.WrapError(err, "create document")
	}
	return id, nil
}

// SetStatus transitions the parent row; errMsg is cleared when empty.
func (s *DocumentStore) SetStatus(ctx context.Context, id uuid.UUID, status constants.UploadStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET status = $2, error_message = NULLIF($3, ''), updated_at = now()
		WHERE id = $1`,
		id, string(status), errMsg,
	)
	if err != nil {
		return common.WrapError(err, "update document status")
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

// GetDocument fetches one parent row.
func (s *DocumentStore) GetDocument(ctx context.Context, id uuid.UUID) (*DocumentRow, error) {
	var row DocumentRow
	var kind, status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, restaurant_id, kind, status,
		       COALESCE(vendor_or_bank, ''), COALESCE(model_used, ''), COALESCE(error_message, ''),
		       created_at, updated_at
		FROM documents WHERE id = $1`, id,
	).Scan(&row.ID, &row.RestaurantID, &kind, &status,
		&row.VendorOrBank, &row.ModelUsed, &row.ErrorMessage,
		&row.CreatedAt, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "get document")
	}
	row.Kind = constants.MediaKind(kind)
	row.Status = constants.UploadStatus(status)
	return &row, nil
}
