package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertInBatchesWalksOrderedRanges(t *testing.T) {
	var ranges [][2]int
	inserted, err := insertInBatches(120, 50, func(start, end int) error {
		ranges = append(ranges, [2]int{start, end})
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 120, inserted)
	assert.Equal(t, [][2]int{{0, 50}, {50, 100}, {100, 120}}, ranges)
}

func TestInsertInBatchesPartialFailure(t *testing.T) {
	boom := errors.New("connection reset")
	inserted, err := insertInBatches(120, 50, func(start, end int) error {
		if start == 100 {
			return boom
		}
		return nil
	})

	assert.Equal(t, 100, inserted, "only completed batches count")

	var partial *PartialInsertError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 100, partial.Inserted)
	assert.Equal(t, 120, partial.Total)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "inserted 100 of 120 records")
}

func TestInsertInBatchesFirstBatchFails(t *testing.T) {
	inserted, err := insertInBatches(10, 50, func(start, end int) error {
		return errors.New("down")
	})

	assert.Zero(t, inserted)
	var partial *PartialInsertError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 0, partial.Inserted)
}

func TestInsertInBatchesEmptyInput(t *testing.T) {
	called := false
	inserted, err := insertInBatches(0, 50, func(int, int) error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.Zero(t, inserted)
	assert.False(t, called)
}

func TestInsertInBatchesNonPositiveSizeIsOneBatch(t *testing.T) {
	var ranges [][2]int
	inserted, err := insertInBatches(7, 0, func(start, end int) error {
		ranges = append(ranges, [2]int{start, end})
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 7, inserted)
	assert.Equal(t, [][2]int{{0, 7}}, ranges)
}
