package constants

import "strings"

// MediaKind identifies the document payload type handed to the pipeline.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaPDF   MediaKind = "pdf"
)

// ParseMediaKind normalizes a caller-supplied media kind string.
func ParseMediaKind(s string) (MediaKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "image", "img", "jpeg", "jpg", "png":
		return MediaImage, true
	case "pdf":
		return MediaPDF, true
	}
	return "", false
}

// Size ceilings. Document ceiling is enforced before any model call (HTTP 413).
// Stream ceilings bound accumulated model output: receipts are short, bank
// statements can carry hundreds of transactions.
const (
	MaxDocumentBytes          = 20 << 20 // 20 MiB
	ReceiptStreamLimitBytes   = 48 << 10
	StatementStreamLimitBytes = 512 << 10
)

// InsertBatchSize bounds a single child-row insert statement.
const InsertBatchSize = 50
