package extract

import "github.com/google/uuid"

// RecordKind tags which pipeline shape a record carries.
type RecordKind string

const (
	KindLineItem    RecordKind = "line_item"
	KindTransaction RecordKind = "transaction"
)

// ExtractedRecord is one validated line item or transaction. Invariant: a
// record carries either usable normalized fields or a non-empty
// ValidationErrors map, never a silently incomplete middle state. The
// confidence score is always clamped into [0,1].
type ExtractedRecord struct {
	Kind               RecordKind
	RawText            string
	Name               string  // item name or transaction description
	Date               string  // YYYY-MM-DD, transactions only
	Quantity           float64 // line items only
	Amount             float64 // price or signed transaction amount
	Unit               string
	Balance            *float64 // running balance when the statement carries one
	Category           string
	ConfidenceScore    float64
	ValidationErrors   map[string]string // nil when the record is valid
	HasValidationError bool
}

// ValidationSummary is the output of validating one parsed record list.
// Records are never dropped here; invalid ones are flagged and counted.
type ValidationSummary struct {
	Records      []ExtractedRecord
	ValidCount   int
	InvalidCount int
	Warnings     []string
}

// ExtractionResult is the terminal artifact of one extraction request,
// immutable once built.
type ExtractionResult struct {
	SourceDocumentID uuid.UUID
	RestaurantID     uuid.UUID
	VendorOrBank     string
	Totals           TotalsSummary
	Records          []ExtractedRecord
	ModelUsed        string
	AttemptedModels  []string
	Truncated        bool
	RawPayload       string // archived model output for the parent row
}

// TotalsSummary carries the document-level amounts the model reported.
type TotalsSummary struct {
	Subtotal float64
	Tax      float64
	Total    float64
}
