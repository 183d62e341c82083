package extract

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator schema-checks raw parsed records and normalizes them into
// ExtractedRecords. Policy: a record is never dropped for failing validation;
// it is flagged with a populated error map and a human-readable warning, and
// the persistence layer decides what to do with it.
type Validator struct {
	kind   RecordKind
	schema *jsonschema.Schema
	log    *slog.Logger
}

var dateShape = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Structural schemas (draft 2020-12 subset). Numeric fields accept strings
// too: models frequently quote numbers, and the plausibility checks below
// parse them either way.
const lineItemSchemaJSON = `{
	"type": "object",
	"properties": {
		"rawText":         {"type": "string"},
		"parsedName":      {"type": "string", "minLength": 1},
		"parsedQuantity":  {"type": ["number", "string"]},
		"parsedPrice":     {"type": ["number", "string"]},
		"unit":            {"type": "string"},
		"confidenceScore": {"type": ["number", "string"]}
	},
	"required": ["parsedName", "parsedPrice"]
}`

const transactionSchemaJSON = `{
	"type": "object",
	"properties": {
		"date":            {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
		"description":     {"type": "string", "minLength": 1},
		"amount":          {"type": ["number", "string"]},
		"balance":         {"type": ["number", "string", "null"]},
		"confidenceScore": {"type": ["number", "string"]}
	},
	"required": ["date", "description", "amount"]
}`

func mustCompile(name, doc string) *jsonschema.Schema {
	s, err := jsonschema.CompileString(name+".json", doc)
	if err != nil {
		panic(err) // static schema
	}
	return s
}

var (
	lineItemSchema    = mustCompile("line_item", lineItemSchemaJSON)
	transactionSchema = mustCompile("transaction", transactionSchemaJSON)
)

// NewLineItemValidator validates receipt line items.
func NewLineItemValidator(log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}
	return &Validator{kind: KindLineItem, schema: lineItemSchema, log: log}
}

// NewTransactionValidator validates bank statement transactions.
func NewTransactionValidator(log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}
	return &Validator{kind: KindTransaction, schema: transactionSchema, log: log}
}

// Validate checks every raw record independently and returns the full list,
// valid and flagged alike, with counts and per-issue warnings.
func (v *Validator) Validate(raws []any) ValidationSummary {
	out := ValidationSummary{Records: make([]ExtractedRecord, 0, len(raws))}

	for i, raw := range raws {
		rec := v.validateOne(raw)
		if rec.HasValidationError {
			out.InvalidCount++
			for field, msg := range rec.ValidationErrors {
				out.Warnings = append(out.Warnings, fmt.Sprintf("record %d: %s: %s", i+1, field, msg))
			}
		} else {
			out.ValidCount++
		}
		out.Records = append(out.Records, rec)
	}

	v.log.Info("extract.validate",
		"kind", string(v.kind),
		"total", len(out.Records),
		"valid", out.ValidCount,
		"invalid", out.InvalidCount,
	)
	return out
}

func (v *Validator) validateOne(raw any) ExtractedRecord {
	rec := ExtractedRecord{Kind: v.kind}
	errs := map[string]string{}

	obj, isObj := raw.(map[string]any)
	if !isObj {
		rec.RawText = fmt.Sprintf("%v", raw)
		rec.ValidationErrors = map[string]string{"record": "not a JSON object"}
		rec.HasValidationError = true
		return rec
	}

	rec.RawText = stringField(obj, "rawText")
	if rec.RawText == "" {
		if b, err := json.Marshal(obj); err == nil {
			rec.RawText = string(b)
		}
	}

	if err := v.schema.Validate(obj); err != nil {
		errs["schema"] = compactSchemaError(err)
	}

	switch v.kind {
	case KindLineItem:
		rec.Name = stringField(obj, "parsedName")
		if rec.Name == "" {
			errs["parsedName"] = "missing or empty item name"
		}
		rec.Amount = numField(obj, "parsedPrice", errs, "parsedPrice")
		if qty, present := obj["parsedQuantity"]; present {
			rec.Quantity = numValue(qty, errs, "parsedQuantity")
		} else {
			rec.Quantity = 1
		}
		rec.Unit = stringField(obj, "unit")
	case KindTransaction:
		rec.Date = stringField(obj, "date")
		if !dateShape.MatchString(rec.Date) {
			errs["date"] = "expected YYYY-MM-DD date"
		}
		rec.Name = stringField(obj, "description")
		if rec.Name == "" {
			errs["description"] = "missing or empty description"
		}
		rec.Amount = numField(obj, "amount", errs, "amount")
		if bal, present := obj["balance"]; present && bal != nil {
			balErrs := map[string]string{}
			b := numValue(bal, balErrs, "balance")
			if len(balErrs) == 0 {
				rec.Balance = &b
			}
			// A bad running balance is not worth flagging the record for.
		}
	}

	rec.ConfidenceScore = clampConfidence(obj["confidenceScore"])
	rec.Category = stringField(obj, "category")

	if len(errs) > 0 {
		rec.ValidationErrors = errs
		rec.HasValidationError = true
	}
	return rec
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

// numField checks presence then numeric well-formedness; both failure modes
// land in errs under key.
func numField(obj map[string]any, key string, errs map[string]string, errKey string) float64 {
	v, present := obj[key]
	if !present || v == nil {
		errs[errKey] = "missing value"
		return 0
	}
	return numValue(v, errs, errKey)
}

func numValue(v any, errs map[string]string, errKey string) float64 {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			errs[errKey] = "not a finite number"
			return 0
		}
		return t
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", ""))
		s = strings.TrimPrefix(s, "$")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			errs[errKey] = fmt.Sprintf("non-numeric value %q", t)
			return 0
		}
		return f
	default:
		errs[errKey] = fmt.Sprintf("non-numeric value of type %T", v)
		return 0
	}
}

// clampConfidence coerces a model-reported confidence into [0,1]. Out-of-range
// values are clamped, never rejected; absent or unparseable values default to
// a neutral 0.5.
func clampConfidence(v any) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0.5
		}
		f = parsed
	default:
		return 0.5
	}
	if math.IsNaN(f) {
		return 0.5
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// compactSchemaError flattens the library's multi-line error into one line.
func compactSchemaError(err error) string {
	parts := strings.Split(err.Error(), "\n")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, "; ")
}
