// Package provider builds and executes OpenRouter-compatible chat/completions
// calls and reads their streamed responses.
package provider

import (
	"encoding/base64"

	"github.com/toyiyo/nimble-pnl-sub019/constants"
	"github.com/toyiyo/nimble-pnl-sub019/internal/registry"
)

// Document is the payload one extraction attempt sends to a model: either
// inline bytes or a remote URL the provider can fetch directly.
type Document struct {
	Data []byte
	URL  string
	Kind constants.MediaKind
	MIME string // e.g. "image/jpeg"; defaults applied when empty

	// TokenHint is an advisory output budget sized from the document itself
	// (e.g. PDF text volume). Used only when the caller does not request a
	// ceiling; always clamped to the model's limit.
	TokenHint int
}

// ChatRequest is the provider request body.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Plugins     []Plugin  `json:"plugins,omitempty"`
}

// Message is one chat turn. System turns carry plain string content; user
// turns carry typed parts so media can ride along.
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart is a single piece of a user message.
type ContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *ImageURL       `json:"image_url,omitempty"`
	File     *FileAttachment `json:"file,omitempty"`
}

// ImageURL carries either a data URI or a remote URL.
type ImageURL struct {
	URL string `json:"url"`
}

// FileAttachment carries an inline PDF as a data URI.
type FileAttachment struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

// Plugin enables provider-side capabilities, e.g. PDF text extraction.
type Plugin struct {
	ID  string     `json:"id"`
	PDF *PDFConfig `json:"pdf,omitempty"`
}

// PDFConfig selects the provider's PDF parsing engine.
type PDFConfig struct {
	Engine string `json:"engine"`
}

const extractionInstructions = "Extract the structured data from the attached document. " +
	"Follow the system instructions exactly. Respond with the JSON object only."

// near-deterministic sampling for extraction
const extractionTemperature = 0.1

// BuildRequest produces the provider request body for one model attempt.
// Pure construction: deterministic given inputs, no side effects.
func BuildRequest(model registry.ModelCandidate, doc Document, maxTokens int) ChatRequest {
	if maxTokens <= 0 {
		maxTokens = doc.TokenHint
	}
	req := ChatRequest{
		Model:       model.ID,
		Stream:      true,
		MaxTokens:   model.ClampTokens(maxTokens),
		Temperature: extractionTemperature,
		Messages: []Message{
			{
				Role:    "system",
				Content: []ContentPart{{Type: "text", Text: model.SystemPrompt}},
			},
			{
				Role: "user",
				Content: []ContentPart{
					{Type: "text", Text: extractionInstructions},
					mediaPart(doc),
				},
			},
		},
	}

	if doc.Kind == constants.MediaPDF {
		// Ask the provider to OCR scanned pages rather than failing on them.
		req.Plugins = []Plugin{{ID: "file-parser", PDF: &PDFConfig{Engine: "pdf-text"}}}
	}
	return req
}

func mediaPart(doc Document) ContentPart {
	if doc.Kind == constants.MediaPDF {
		if doc.URL != "" {
			return ContentPart{Type: "file", File: &FileAttachment{Filename: "document.pdf", FileData: doc.URL}}
		}
		return ContentPart{
			Type: "file",
			File: &FileAttachment{
				Filename: "document.pdf",
				FileData: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(doc.Data),
			},
		}
	}

	if doc.URL != "" {
		return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: doc.URL}}
	}
	mime := doc.MIME
	if mime == "" {
		mime = "image/jpeg"
	}
	return ContentPart{
		Type:     "image_url",
		ImageURL: &ImageURL{URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(doc.Data)},
	}
}
