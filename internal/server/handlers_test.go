package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toyiyo/nimble-pnl-sub019/constants"
	"github.com/toyiyo/nimble-pnl-sub019/internal/categorize"
	"github.com/toyiyo/nimble-pnl-sub019/internal/extract"
	"github.com/toyiyo/nimble-pnl-sub019/internal/jsonrepair"
	"github.com/toyiyo/nimble-pnl-sub019/internal/pipeline"
	"github.com/toyiyo/nimble-pnl-sub019/internal/provider"
)

type fakeProcessor struct {
	out *pipeline.Outcome
	err error
	doc provider.Document
}

func (f *fakeProcessor) Process(_ context.Context, _ uuid.UUID, doc provider.Document) (*pipeline.Outcome, error) {
	f.doc = doc
	return f.out, f.err
}

type fakeCategorizer struct {
	sum          *categorize.RunSummary
	err          error
	restaurantID uuid.UUID
}

func (f *fakeCategorizer) CategorizeRestaurant(_ context.Context, restaurantID uuid.UUID) (*categorize.RunSummary, error) {
	f.restaurantID = restaurantID
	return f.sum, f.err
}

type fakeExporter struct {
	data []byte
	err  error
}

func (f *fakeExporter) ExportTransactionsXLSX(context.Context, uuid.UUID) ([]byte, error) {
	return f.data, f.err
}

type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) Fetch(context.Context, string) ([]byte, string, error) {
	return f.data, "application/octet-stream", f.err
}

type serverFixture struct {
	receipts   *fakeProcessor
	statements *fakeProcessor
	categories *fakeCategorizer
	exporter   *fakeExporter
	fetcher    *fakeFetcher
	dbErr      error
}

const testMaxDocumentBytes = 64 << 10

func newFixture() *serverFixture {
	return &serverFixture{
		receipts:   &fakeProcessor{out: &pipeline.Outcome{DocumentID: uuid.New(), Status: constants.StatusProcessed}},
		statements: &fakeProcessor{out: &pipeline.Outcome{DocumentID: uuid.New(), Status: constants.StatusProcessed}},
		categories: &fakeCategorizer{},
		exporter:   &fakeExporter{data: []byte("xlsx-bytes")},
		fetcher:    &fakeFetcher{},
	}
}

func (fx *serverFixture) router(authToken string) http.Handler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(Config{AuthToken: authToken, MaxDocumentBytes: testMaxDocumentBytes},
		fx.receipts, fx.statements, fx.categories, fx.exporter, fx.fetcher,
		func(context.Context) error { return fx.dbErr }, log)
	return srv.Router()
}

func tinyPNGBase64(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func doJSON(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func extractBody(t *testing.T, doc string) string {
	t.Helper()
	b, err := json.Marshal(map[string]string{
		"restaurantId":   uuid.NewString(),
		"documentBase64": doc,
	})
	require.NoError(t, err)
	return string(b)
}

func TestExtractRequiresAuth(t *testing.T) {
	fx := newFixture()
	h := fx.router("secret")

	w := doJSON(h, http.MethodPost, "/v1/extract/receipt", "", extractBody(t, tinyPNGBase64(t)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(h, http.MethodPost, "/v1/extract/receipt", "wrong", extractBody(t, tinyPNGBase64(t)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExtractReceiptHappyPath(t *testing.T) {
	fx := newFixture()
	fx.receipts.out = &pipeline.Outcome{
		DocumentID:    uuid.New(),
		Status:        constants.StatusProcessed,
		VendorOrBank:  "Corner Grocery",
		InsertedCount: 3,
		ModelUsed:     "gemini-flash",
	}
	h := fx.router("secret")

	w := doJSON(h, http.MethodPost, "/v1/extract/receipt", "secret", extractBody(t, tinyPNGBase64(t)))

	require.Equal(t, http.StatusOK, w.Code)
	var resp extractResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "processed", resp.Status)
	assert.Equal(t, "Corner Grocery", resp.VendorOrBank, "the extracted vendor rides in the success body")
	assert.Equal(t, 3, resp.InsertedCount)
	assert.Equal(t, constants.MediaImage, fx.receipts.doc.Kind, "image bytes are sniffed as image")
}

func TestExtractDeclaredMediaKind(t *testing.T) {
	fx := newFixture()
	h := fx.router("secret")

	body := func(kind, doc string) string {
		b, err := json.Marshal(map[string]string{
			"restaurantId":   uuid.NewString(),
			"documentBase64": doc,
			"mediaKind":      kind,
		})
		require.NoError(t, err)
		return string(b)
	}
	pdfB64 := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 fake"))

	w := doJSON(h, http.MethodPost, "/v1/extract/receipt", "secret", body("jpeg", tinyPNGBase64(t)))
	assert.Equal(t, http.StatusOK, w.Code, "declared image kind matching sniffed bytes passes")

	w = doJSON(h, http.MethodPost, "/v1/extract/receipt", "secret", body("pdf", pdfB64))
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(h, http.MethodPost, "/v1/extract/receipt", "secret", body("pdf", tinyPNGBase64(t)))
	assert.Equal(t, http.StatusBadRequest, w.Code, "declared kind contradicting the bytes is rejected")

	w = doJSON(h, http.MethodPost, "/v1/extract/receipt", "secret", body("spreadsheet", tinyPNGBase64(t)))
	assert.Equal(t, http.StatusBadRequest, w.Code, "unrecognized kinds are rejected")
}

func TestExtractSniffsPDF(t *testing.T) {
	fx := newFixture()
	h := fx.router("secret")
	pdfB64 := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 fake"))

	w := doJSON(h, http.MethodPost, "/v1/extract/bank-statement", "secret", extractBody(t, pdfB64))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, constants.MediaPDF, fx.statements.doc.Kind)
	assert.Equal(t, "application/pdf", fx.statements.doc.MIME)
}

func TestExtractBadRequests(t *testing.T) {
	fx := newFixture()
	h := fx.router("secret")

	cases := map[string]string{
		"malformed json":     `{not json`,
		"missing restaurant": `{"documentBase64": "aGk="}`,
		"bad uuid":           `{"restaurantId": "nope", "documentBase64": "aGk="}`,
		"neither document":   `{"restaurantId": "` + uuid.NewString() + `"}`,
		"both documents":     `{"restaurantId": "` + uuid.NewString() + `", "documentBase64": "aGk=", "documentUrl": "http://x"}`,
		"invalid base64":     `{"restaurantId": "` + uuid.NewString() + `", "documentBase64": "!!!"}`,
		"corrupt image":      extractBody(t, base64.StdEncoding.EncodeToString([]byte("not an image"))),
	}
	for name, body := range cases {
		w := doJSON(h, http.MethodPost, "/v1/extract/receipt", "secret", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}
}

func TestExtractOversizedDocument(t *testing.T) {
	fx := newFixture()
	h := fx.router("secret")
	big := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0xff}, testMaxDocumentBytes+1))

	w := doJSON(h, http.MethodPost, "/v1/extract/receipt", "secret", extractBody(t, big))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestExtractAllModelsExhausted(t *testing.T) {
	fx := newFixture()
	fx.receipts.out = &pipeline.Outcome{
		DocumentID:      uuid.New(),
		Status:          constants.StatusError,
		AttemptedModels: []string{"gemini-flash", "gpt-4o-mini", "llama-vision"},
	}
	fx.receipts.err = extract.ErrAllModelsExhausted
	h := fx.router("secret")

	w := doJSON(h, http.MethodPost, "/v1/extract/receipt", "secret", extractBody(t, tinyPNGBase64(t)))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body["attemptedModels"], 3)
}

func TestExtractUnparseablePayload(t *testing.T) {
	fx := newFixture()
	fx.receipts.out = &pipeline.Outcome{DocumentID: uuid.New(), Status: constants.StatusError}
	fx.receipts.err = &jsonrepair.ParseError{Reason: jsonrepair.ReasonNoStructure, Detail: "no JSON object found"}
	h := fx.router("secret")

	w := doJSON(h, http.MethodPost, "/v1/extract/receipt", "secret", extractBody(t, tinyPNGBase64(t)))

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "no_structure", body["reason"])
}

func TestCategorizeEndpoint(t *testing.T) {
	fx := newFixture()
	fx.categories.sum = &categorize.RunSummary{
		Scanned: 2,
		Updated: 2,
		Assignments: []categorize.Assignment{
			{Description: "SYSCO", Category: constants.FoodAndBeverage, Recognized: true},
			{Description: "GUSTO", Category: constants.Labor, Recognized: true},
		},
	}
	h := fx.router("secret")
	restaurantID := uuid.New()

	w := doJSON(h, http.MethodPost, "/v1/categorize", "secret", `{"restaurantId": "`+restaurantID.String()+`"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, restaurantID, fx.categories.restaurantID)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 2, body["scanned"])
	assert.EqualValues(t, 2, body["updated"])
	assert.Contains(t, w.Body.String(), "FoodAndBeverage")
}

func TestCategorizeEndpointBadRequests(t *testing.T) {
	fx := newFixture()
	h := fx.router("secret")

	w := doJSON(h, http.MethodPost, "/v1/categorize", "secret", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "restaurantId is required")

	w = doJSON(h, http.MethodPost, "/v1/categorize", "secret", `{"restaurantId": "nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportEndpoint(t *testing.T) {
	fx := newFixture()
	h := fx.router("secret")

	w := doJSON(h, http.MethodGet, "/v1/export/transactions?import_id="+uuid.NewString(), "secret", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "xlsx-bytes", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	w = doJSON(h, http.MethodGet, "/v1/export/transactions?import_id=nope", "secret", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz(t *testing.T) {
	fx := newFixture()
	h := fx.router("")

	w := doJSON(h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	fx.dbErr = errors.New("connection refused")
	h = fx.router("")
	w = doJSON(h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
