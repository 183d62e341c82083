package constants

// UploadStatus is the canonical status for parent upload/import rows.
type UploadStatus string

// Stable values (store these exact strings in DB).
const (
	StatusPending        UploadStatus = "pending"         // created, not yet picked up
	StatusProcessing     UploadStatus = "processing"      // extraction in progress
	StatusProcessed      UploadStatus = "processed"       // all records committed cleanly
	StatusPartialSuccess UploadStatus = "partial_success" // committed, but some records flagged or skipped
	StatusError          UploadStatus = "error"           // terminal failure
)
