package provider

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
)

// streamChunk is one decoded SSE data event. OpenRouter delivers content as
// choice deltas and may embed an error object mid-stream.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// ReadStream consumes a chunked SSE response body, reassembling the text
// payload. It returns the accumulated text, whether the stream was truncated
// against limit, and a terminal error.
//
// Truncation is survivable: when the accumulator would exceed limit the stream
// is cancelled and the partial text is returned with truncated=true. An error
// event inside the stream fails the read immediately. The body is closed on
// every exit path.
func ReadStream(model string, body io.ReadCloser, limit int, log *slog.Logger) (text string, truncated bool, err error) {
	if log == nil {
		log = slog.Default()
	}
	defer func() {
		if cerr := body.Close(); cerr != nil {
			log.Warn("provider.stream.close_error", "model", model, "error", cerr)
		}
	}()

	var sb strings.Builder
	reader := bufio.NewReader(body)

	for {
		line, readErr := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		if line != "" && !strings.HasPrefix(line, ":") {
			data, ok := strings.CutPrefix(line, "data:")
			if ok {
				data = strings.TrimSpace(data)
				if data == "[DONE]" {
					return sb.String(), false, nil
				}

				var chunk streamChunk
				if jerr := json.Unmarshal([]byte(data), &chunk); jerr != nil {
					// A malformed event is skipped, not fatal; the recovery
					// parser deals with whatever text made it through.
					log.Warn("provider.stream.bad_event", "model", model, "error", jerr)
				} else {
					if chunk.Error != nil {
						log.Error("provider.stream.error_event",
							"model", model,
							"message", chunk.Error.Message,
							"accumulated_bytes", sb.Len(),
						)
						return "", false, &StreamError{Model: model, Message: chunk.Error.Message}
					}
					for _, ch := range chunk.Choices {
						if ch.Delta.Content == "" {
							continue
						}
						if sb.Len()+len(ch.Delta.Content) > limit {
							log.Warn("provider.stream.truncated",
								"model", model,
								"limit_bytes", limit,
								"accumulated_bytes", sb.Len(),
							)
							return sb.String(), true, nil
						}
						sb.WriteString(ch.Delta.Content)
					}
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return sb.String(), false, nil
			}
			return "", false, &TransportError{Model: model, Cause: readErr}
		}
	}
}
