package repository

import "fmt"

// CommitStats reports what a commit actually persisted. InsertedCount never
// overstates: a failed batch contributes nothing to it.
type CommitStats struct {
	InsertedCount int
	SkippedCount  int
}

// PartialInsertError reports a commit that stopped partway. Inserted counts
// only rows from batches that completed before the failure.
type PartialInsertError struct {
	Inserted int
	Total    int
	Cause    error
}

func (e *PartialInsertError) Error() string {
	return fmt.Sprintf("inserted %d of %d records before failure: %v", e.Inserted, e.Total, e.Cause)
}

func (e *PartialInsertError) Unwrap() error { return e.Cause }

// insertInBatches walks [0,total) in batchSize chunks, calling runBatch with
// each half-open [start,end) range in order. It stops at the first batch error
// and returns how many rows landed before it. Ranges never interleave, so
// ordinal ordering is preserved across chunks.
func insertInBatches(total, batchSize int, runBatch func(start, end int) error) (int, error) {
	if batchSize <= 0 {
		batchSize = total
	}
	inserted := 0
	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}
		if err := runBatch(start, end); err != nil {
			return inserted, &PartialInsertError{Inserted: inserted, Total: total, Cause: err}
		}
		inserted = end
	}
	return inserted, nil
}
