package provider

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toyiyo/nimble-pnl-sub019/constants"
	"github.com/toyiyo/nimble-pnl-sub019/internal/registry"
)

func testModel() registry.ModelCandidate {
	return registry.ModelCandidate{
		Name:         "gemini-flash",
		ID:           "google/gemini-2.0-flash-001",
		SystemPrompt: "parse the receipt",
		MaxRetries:   2,
		TokenLimit:   4096,
	}
}

func TestBuildRequestImageInline(t *testing.T) {
	doc := Document{Data: []byte{0xff, 0xd8, 0xff}, Kind: constants.MediaImage, MIME: "image/jpeg"}

	req := BuildRequest(testModel(), doc, 100000)

	assert.Equal(t, "google/gemini-2.0-flash-001", req.Model)
	assert.True(t, req.Stream)
	assert.Equal(t, 4096, req.MaxTokens, "requested ceiling clamped to model limit")
	assert.InDelta(t, 0.1, req.Temperature, 0.001)
	assert.Empty(t, req.Plugins, "images need no parser plugin")

	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "parse the receipt", req.Messages[0].Content[0].Text)

	user := req.Messages[1]
	require.Len(t, user.Content, 2)
	require.NotNil(t, user.Content[1].ImageURL)
	assert.True(t, strings.HasPrefix(user.Content[1].ImageURL.URL, "data:image/jpeg;base64,"))
}

func TestBuildRequestImageRemoteURL(t *testing.T) {
	doc := Document{URL: "https://blobs.example.com/receipt.png", Kind: constants.MediaImage}

	req := BuildRequest(testModel(), doc, 0)

	require.NotNil(t, req.Messages[1].Content[1].ImageURL)
	assert.Equal(t, "https://blobs.example.com/receipt.png", req.Messages[1].Content[1].ImageURL.URL)
	assert.Equal(t, 4096, req.MaxTokens, "zero request falls back to model limit")
}

func TestBuildRequestPDFDeclaresParserPlugin(t *testing.T) {
	doc := Document{Data: []byte("%PDF-1.4"), Kind: constants.MediaPDF}

	req := BuildRequest(testModel(), doc, 2048)

	assert.Equal(t, 2048, req.MaxTokens)
	require.Len(t, req.Plugins, 1)
	assert.Equal(t, "file-parser", req.Plugins[0].ID)
	require.NotNil(t, req.Plugins[0].PDF)
	assert.Equal(t, "pdf-text", req.Plugins[0].PDF.Engine)

	part := req.Messages[1].Content[1]
	require.NotNil(t, part.File)
	assert.True(t, strings.HasPrefix(part.File.FileData, "data:application/pdf;base64,"))
}

func TestBuildRequestDeterministic(t *testing.T) {
	doc := Document{Data: []byte("same bytes"), Kind: constants.MediaImage}

	a := BuildRequest(testModel(), doc, 1024)
	b := BuildRequest(testModel(), doc, 1024)

	assert.Equal(t, a, b)
}
