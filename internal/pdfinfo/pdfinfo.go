// Package pdfinfo inspects uploaded PDFs before extraction: magic-byte
// sniffing, page counting, and a token-budget hint based on how much text the
// document carries.
package pdfinfo

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"

	"github.com/ledongthuc/pdf"
)

const (
	defaultMaxTokens = 8192
	minMaxTokens     = 2048
	maxMaxTokens     = 32768

	// maxTextBytes bounds how much extracted text we sample for sizing.
	maxTextBytes = 1 << 20
)

// Info is advisory metadata about a PDF. Analysis failures produce defaults,
// never a rejected upload: a PDF the reader chokes on may still extract fine
// through the provider's own parser.
type Info struct {
	PageCount          int
	TextBytes          int
	SuggestedMaxTokens int
}

// IsPDF sniffs the %PDF- magic rather than trusting the declared MIME type.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// Analyze never panics; the pdf reader is not hardened against malformed
// input, so the whole pass runs under recover.
func Analyze(data []byte, log *slog.Logger) (info Info) {
	if log == nil {
		log = slog.Default()
	}
	info = Info{PageCount: 1, SuggestedMaxTokens: defaultMaxTokens}

	defer func() {
		if r := recover(); r != nil {
			log.Warn("pdfinfo.recovered", "panic", fmt.Sprintf("%v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		log.Warn("pdfinfo.unreadable", "error", err)
		return info
	}

	if n := reader.NumPage(); n > 0 {
		info.PageCount = n
	}

	plainText, err := reader.GetPlainText()
	if err != nil {
		return info
	}
	text, err := io.ReadAll(io.LimitReader(plainText, maxTextBytes))
	if err != nil {
		return info
	}
	info.TextBytes = len(text)
	info.SuggestedMaxTokens = suggestTokens(len(text))
	return info
}

// suggestTokens sizes the output budget from the text volume: roughly one
// output token per four input bytes, with headroom, clamped and rounded up to
// the nearest 1024.
func suggestTokens(textBytes int) int {
	if textBytes <= 0 {
		return defaultMaxTokens
	}
	tokens := textBytes / 4 * 3 / 2
	if tokens < minMaxTokens {
		tokens = minMaxTokens
	}
	if tokens > maxMaxTokens {
		return maxMaxTokens
	}
	if tokens%1024 != 0 {
		tokens = (tokens/1024 + 1) * 1024
	}
	return tokens
}
