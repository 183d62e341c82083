package pdfinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7\n...")))
	assert.False(t, IsPDF([]byte("\xff\xd8\xff\xe0jpeg")))
	assert.False(t, IsPDF([]byte("")))
	assert.False(t, IsPDF([]byte(" %PDF-1.7")), "magic must be at offset zero")
}

func TestAnalyzeMalformedPDFReturnsDefaults(t *testing.T) {
	info := Analyze([]byte("%PDF-1.4 but otherwise garbage"), nil)

	assert.Equal(t, 1, info.PageCount)
	assert.Equal(t, defaultMaxTokens, info.SuggestedMaxTokens)
}

func TestSuggestTokens(t *testing.T) {
	assert.Equal(t, defaultMaxTokens, suggestTokens(0))
	assert.Equal(t, minMaxTokens, suggestTokens(100), "tiny documents get the floor")
	assert.Equal(t, maxMaxTokens, suggestTokens(10_000_000), "huge documents get the ceiling")

	mid := suggestTokens(40_000)
	assert.Zero(t, mid%1024, "suggestions are rounded to 1024")
	assert.Greater(t, mid, minMaxTokens)
	assert.Less(t, mid, maxMaxTokens)
}
