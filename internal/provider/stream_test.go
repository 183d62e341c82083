package provider

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closeTracker wraps a reader and records whether Close was called.
type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func sse(events ...string) *closeTracker {
	return &closeTracker{Reader: strings.NewReader(strings.Join(events, ""))}
}

func delta(content string) string {
	return `data: {"choices":[{"delta":{"content":` + quote(content) + `}}]}` + "\n\n"
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func TestReadStreamAccumulatesDeltas(t *testing.T) {
	body := sse(
		": keep-alive comment\n\n",
		delta(`{"lineItems":[`),
		delta(`{"parsedName":"Milk"}`),
		delta(`]}`),
		"data: [DONE]\n\n",
	)

	text, truncated, err := ReadStream("m1", body, 1<<20, nil)

	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, `{"lineItems":[{"parsedName":"Milk"}]}`, text)
	assert.True(t, body.closed, "body must be released on success")
}

func TestReadStreamStopsAtDoneMarker(t *testing.T) {
	body := sse(
		delta("before"),
		"data: [DONE]\n\n",
		delta("after"),
	)

	text, _, err := ReadStream("m1", body, 1<<20, nil)

	require.NoError(t, err)
	assert.Equal(t, "before", text)
}

func TestReadStreamErrorEventFailsImmediately(t *testing.T) {
	body := sse(
		delta("partial"),
		`data: {"error":{"message":"provider exploded","code":500}}`+"\n\n",
	)

	text, truncated, err := ReadStream("m1", body, 1<<20, nil)

	require.Error(t, err)
	var se *StreamError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Message, "provider exploded")
	assert.Empty(t, text)
	assert.False(t, truncated)
	assert.True(t, body.closed, "body must be released on stream error")
}

func TestReadStreamEnforcesSizeCeiling(t *testing.T) {
	body := sse(
		delta(strings.Repeat("a", 40)),
		delta(strings.Repeat("b", 40)),
		delta(strings.Repeat("c", 40)),
		"data: [DONE]\n\n",
	)

	text, truncated, err := ReadStream("m1", body, 100, nil)

	require.NoError(t, err, "truncation is survivable, not an error")
	assert.True(t, truncated)
	assert.Equal(t, strings.Repeat("a", 40)+strings.Repeat("b", 40), text,
		"the delta that would overflow is dropped whole")
	assert.True(t, body.closed, "body must be cancelled on truncation")
}

func TestReadStreamSkipsMalformedEvents(t *testing.T) {
	body := sse(
		delta("good"),
		"data: {not json at all\n\n",
		delta(" text"),
		"data: [DONE]\n\n",
	)

	text, _, err := ReadStream("m1", body, 1<<20, nil)

	require.NoError(t, err)
	assert.Equal(t, "good text", text)
}

func TestReadStreamEOFWithoutDone(t *testing.T) {
	// Providers sometimes drop the connection without a [DONE] marker; the
	// accumulated text is still returned.
	body := sse(delta("partial payload"))

	text, truncated, err := ReadStream("m1", body, 1<<20, nil)

	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, "partial payload", text)
	assert.True(t, body.closed)
}

func TestReadStreamHandlesSplitLines(t *testing.T) {
	// A data line arriving without a trailing newline until the next read is
	// still assembled correctly by the buffered reader.
	raw := `data: {"choices":[{"delta":{"content":"ab"}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"content":"cd"}}]}` + "\n\ndata: [DONE]"
	body := &closeTracker{Reader: iotest(raw)}

	text, _, err := ReadStream("m1", body, 1<<20, nil)

	require.NoError(t, err)
	assert.Equal(t, "abcd", text)
}

// iotest returns a reader that yields one byte at a time, forcing partial-line
// buffering across read boundaries.
func iotest(s string) io.Reader {
	return &oneByteReader{data: []byte(s)}
}

type oneByteReader struct {
	data []byte
	pos  int
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	p[0] = r.data[r.pos]
	r.pos++
	return 1, nil
}
