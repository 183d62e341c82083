package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/toyiyo/nimble-pnl-sub019/constants"
	"github.com/toyiyo/nimble-pnl-sub019/internal/docfetch"
	"github.com/toyiyo/nimble-pnl-sub019/internal/extract"
	"github.com/toyiyo/nimble-pnl-sub019/internal/imageprep"
	"github.com/toyiyo/nimble-pnl-sub019/internal/jsonrepair"
	"github.com/toyiyo/nimble-pnl-sub019/internal/pdfinfo"
	"github.com/toyiyo/nimble-pnl-sub019/internal/pipeline"
	"github.com/toyiyo/nimble-pnl-sub019/internal/provider"
)

type extractRequest struct {
	RestaurantID   string `json:"restaurantId" binding:"required"`
	DocumentURL    string `json:"documentUrl"`
	DocumentBase64 string `json:"documentBase64"`
	MediaKind      string `json:"mediaKind"`
}

type extractResponse struct {
	DocumentID      string   `json:"documentId"`
	Status          string   `json:"status"`
	VendorOrBank    string   `json:"vendorOrBank,omitempty"`
	InsertedCount   int      `json:"insertedCount"`
	SkippedCount    int      `json:"skippedCount,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
	ModelUsed       string   `json:"modelUsed,omitempty"`
	AttemptedModels []string `json:"attemptedModels,omitempty"`
	Truncated       bool     `json:"truncated,omitempty"`
	Message         string   `json:"message,omitempty"`
}

func (s *Server) handleExtract(proc DocumentProcessor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req extractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		restaurantID, err := uuid.Parse(req.RestaurantID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "restaurantId must be a UUID"})
			return
		}
		if (req.DocumentURL == "") == (req.DocumentBase64 == "") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "provide exactly one of documentUrl or documentBase64"})
			return
		}

		doc, err := s.buildDocument(c, req)
		if err != nil {
			s.writeDocumentError(c, err)
			return
		}

		out, err := proc.Process(c.Request.Context(), restaurantID, doc)
		if err != nil {
			s.writePipelineError(c, out, err)
			return
		}
		c.JSON(http.StatusOK, toExtractResponse(out))
	}
}

// buildDocument turns the request into a normalized provider document:
// URL references are downloaded, PDFs are sniffed by magic bytes, and images
// are downscaled and re-encoded. The document's actual bytes decide its kind;
// a declared mediaKind is only a cross-check against what was sniffed.
func (s *Server) buildDocument(c *gin.Context, req extractRequest) (provider.Document, error) {
	var declared constants.MediaKind
	if req.MediaKind != "" {
		k, ok := constants.ParseMediaKind(req.MediaKind)
		if !ok {
			return provider.Document{}, fmt.Errorf("%w: unrecognized mediaKind %q", errBadDocument, req.MediaKind)
		}
		declared = k
	}

	var data []byte

	if req.DocumentURL != "" {
		fetched, _, err := s.fetcher.Fetch(c.Request.Context(), req.DocumentURL)
		if err != nil {
			return provider.Document{}, err
		}
		data = fetched
	} else {
		decoded, err := base64.StdEncoding.DecodeString(req.DocumentBase64)
		if err != nil {
			return provider.Document{}, fmt.Errorf("%w: documentBase64 is not valid base64", errBadDocument)
		}
		data = decoded
	}

	if int64(len(data)) > s.cfg.MaxDocumentBytes {
		return provider.Document{}, docfetch.ErrTooLarge
	}
	if len(data) == 0 {
		return provider.Document{}, fmt.Errorf("%w: empty document", errBadDocument)
	}

	var doc provider.Document
	if pdfinfo.IsPDF(data) {
		info := pdfinfo.Analyze(data, s.log)
		s.log.Info("http.document.pdf", "pages", info.PageCount, "text_bytes", info.TextBytes)
		doc = provider.Document{
			Data:      data,
			Kind:      constants.MediaPDF,
			MIME:      "application/pdf",
			TokenHint: info.SuggestedMaxTokens,
		}
	} else {
		prepared, preparedMIME, err := imageprep.Prepare(data)
		if err != nil {
			return provider.Document{}, fmt.Errorf("%w: unsupported or corrupt image", errBadDocument)
		}
		doc = provider.Document{Data: prepared, Kind: constants.MediaImage, MIME: preparedMIME}
	}

	if declared != "" && declared != doc.Kind {
		return provider.Document{}, fmt.Errorf("%w: mediaKind %q does not match document contents", errBadDocument, declared)
	}
	return doc, nil
}

var errBadDocument = errors.New("bad document")

func (s *Server) writeDocumentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, docfetch.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "document exceeds size limit"})
	case errors.Is(err, errBadDocument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not load document: " + err.Error()})
	}
}

func (s *Server) writePipelineError(c *gin.Context, out *pipeline.Outcome, err error) {
	body := gin.H{"error": err.Error()}
	if out != nil && out.DocumentID != uuid.Nil {
		body["documentId"] = out.DocumentID.String()
	}

	var parseErr *jsonrepair.ParseError
	switch {
	case errors.Is(err, extract.ErrAllModelsExhausted):
		if out != nil {
			body["attemptedModels"] = out.AttemptedModels
		}
		c.JSON(http.StatusServiceUnavailable, body)
	case errors.As(err, &parseErr):
		body["reason"] = parseErr.Reason
		body["details"] = parseErr.Detail
		c.JSON(http.StatusUnprocessableEntity, body)
	default:
		s.log.Error("http.extract.internal", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func toExtractResponse(out *pipeline.Outcome) extractResponse {
	return extractResponse{
		DocumentID:      out.DocumentID.String(),
		Status:          string(out.Status),
		VendorOrBank:    out.VendorOrBank,
		InsertedCount:   out.InsertedCount,
		SkippedCount:    out.SkippedCount,
		Warnings:        out.Warnings,
		ModelUsed:       out.ModelUsed,
		AttemptedModels: out.AttemptedModels,
		Truncated:       out.Truncated,
		Message:         out.Message,
	}
}

type categorizeRequest struct {
	RestaurantID string `json:"restaurantId" binding:"required"`
}

func (s *Server) handleCategorize(c *gin.Context) {
	var req categorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	restaurantID, err := uuid.Parse(req.RestaurantID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "restaurantId must be a UUID"})
		return
	}

	sum, err := s.categories.CategorizeRestaurant(c.Request.Context(), restaurantID)
	if err != nil {
		var parseErr *jsonrepair.ParseError
		if errors.As(err, &parseErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "reason": parseErr.Reason, "details": parseErr.Detail})
			return
		}
		s.log.Error("http.categorize.internal", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) handleExportTransactions(c *gin.Context) {
	importID, err := uuid.Parse(c.Query("import_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "import_id must be a UUID"})
		return
	}

	data, err := s.exporter.ExportTransactionsXLSX(c.Request.Context(), importID)
	if err != nil {
		s.log.Error("http.export.internal", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=transactions-%s.xlsx", importID))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (s *Server) handleHealthz(c *gin.Context) {
	if err := s.dbPing(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
