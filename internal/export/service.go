package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/toyiyo/nimble-pnl-sub019/internal/repository"
)

// TransactionLister is the repository slice the exporter reads from.
type TransactionLister interface {
	ListTransactions(ctx context.Context, documentID uuid.UUID) ([]repository.TransactionRow, error)
}

// Service is a tiny façade over the statement store that produces XLSX bytes
// for exports.
type Service struct {
	store  TransactionLister
	logger *slog.Logger
}

func NewService(store TransactionLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// ExportTransactionsXLSX returns an XLSX workbook (as bytes) with every
// persisted transaction of one statement document, flagged rows included so
// the bookkeeper sees what still needs review.
func (s *Service) ExportTransactionsXLSX(ctx context.Context, documentID uuid.UUID) ([]byte, error) {
	start := time.Now()

	txns, err := s.store.ListTransactions(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Transactions"
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}
	_ = f.DeleteSheet("Sheet1")
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Date",
		"Description",
		"Amount",
		"Balance",
		"Category",
		"Confidence",
		"Needs Review",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, tx := range txns {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, tx.Date)
		write(2, tx.Description)
		write(3, tx.Amount)
		if tx.Balance != nil {
			write(4, *tx.Balance)
		}
		write(5, tx.Category)
		write(6, tx.ConfidenceScore)
		if tx.HasValidationError {
			write(7, "yes")
		} else {
			write(7, "")
		}

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 12)
	_ = f.SetColWidth(sheet, "B", "B", 48)
	_ = f.SetColWidth(sheet, "C", "D", 14)
	_ = f.SetColWidth(sheet, "E", "E", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"document_id", documentID.String(),
		"rows", len(txns),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
