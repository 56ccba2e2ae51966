// stream.go implements the incremental decode pipeline for streaming
// responses: raw transport chunks are assembled into newline-terminated
// event lines, each line is decoded into at most one content fragment,
// and every fragment is written to the sink the moment it is extracted.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/ads/ads-cli/internal/logger"
	"github.com/fatih/color"
)

const (
	// streamBufCap bounds the bytes a single event line may occupy
	// before its newline arrives. A well-behaved endpoint never comes
	// close; outgrowing it means the stream is not the protocol we
	// speak, so the exchange is aborted rather than truncated.
	streamBufCap = 4096

	// dataPrefix marks a server-sent event payload line.
	dataPrefix = "data: "

	// readChunkSize is the transport read granularity.
	readChunkSize = 512
)

// ErrStreamBufferOverflow reports an event line that outgrew the fixed
// stream buffer. It is fatal for the exchange; fragments already
// printed stay printed.
var ErrStreamBufferOverflow = errors.New("stream buffer overflow: event line too long")

// streamContext is the per-request decode state: a fixed-capacity
// buffer holding, between chunks, at most one partial line. It is
// owned by a single ChatStream call and never shared.
type streamContext struct {
	buf []byte
	n   int
}

func newStreamContext() *streamContext {
	return &streamContext{buf: make([]byte, streamBufCap)}
}

// append copies chunk onto the buffer tail. On overflow nothing is
// consumed and the caller must abort the stream.
func (sc *streamContext) append(chunk []byte) error {
	if sc.n+len(chunk) > len(sc.buf) {
		return ErrStreamBufferOverflow
	}
	copy(sc.buf[sc.n:], chunk)
	sc.n += len(chunk)
	return nil
}

// drain calls fn for every complete line in the buffer, in arrival
// order, then moves the trailing partial line to the front. Line views
// are valid only inside fn.
func (sc *streamContext) drain(fn func(line []byte)) {
	start := 0
	for {
		i := bytes.IndexByte(sc.buf[start:sc.n], '\n')
		if i < 0 {
			break
		}
		fn(sc.buf[start : start+i])
		start += i + 1
	}
	if start > 0 {
		sc.n = copy(sc.buf, sc.buf[start:sc.n])
	}
}

// full reports whether the buffer is filled to capacity with no
// complete line in it — a line that can never finish.
func (sc *streamContext) full() bool {
	return sc.n == len(sc.buf)
}

// decodeLine extracts the content fragment from one event line. Blank
// lines, the [DONE] sentinel, keep-alive comments, and anything else
// that does not decode to the expected shape yield no fragment; none
// of them are errors and the stream carries on.
func decodeLine(line []byte) (string, bool) {
	line = bytes.TrimPrefix(line, []byte(dataPrefix))
	if len(line) == 0 {
		return "", false
	}
	var ev streamEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		logger.Get().Debugf("dropping undecodable stream line: %.60s", line)
		return "", false
	}
	if len(ev.Choices) == 0 || ev.Choices[0].Delta.Content == nil {
		return "", false
	}
	return *ev.Choices[0].Delta.Content, true
}

// emitter hands fragments to the sink unbuffered. Write failures are
// remembered, not fatal: display is best-effort while the decode
// pipeline keeps running.
type emitter struct {
	w   io.Writer
	err error
}

func (e *emitter) emit(fragment string) {
	if fragment == "" {
		return
	}
	if _, err := io.WriteString(e.w, fragment); err != nil {
		if e.err == nil {
			e.err = err
		}
		return
	}
	if f, ok := e.w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil && e.err == nil {
			e.err = err
		}
	}
}

// ChatStream sends question with streaming enabled and writes content
// fragments to w in arrival order as they are generated. When
// reportUsage is set, a notice that token accounting is unavailable in
// this mode goes to stderr after a clean completion: the upstream
// protocol does not deliver a reliable usage summary mid-stream.
func (c *Client) ChatStream(ctx context.Context, question string, reportUsage bool, w io.Writer) error {
	req, err := c.newRequest(ctx, question, true)
	if err != nil {
		return err
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach %s: %w", c.cfg.BaseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, streamBufCap))
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	sc := newStreamContext()
	sink := &emitter{w: w}
	chunk := make([]byte, readChunkSize)

	for {
		// Never read more than the buffer has room for, so a read can
		// only fill the buffer, not burst it. A line that genuinely
		// outgrows the buffer is caught by the full check below once
		// draining frees nothing.
		room := streamBufCap - sc.n
		if room > readChunkSize {
			room = readChunkSize
		}
		n, readErr := resp.Body.Read(chunk[:room])
		if n > 0 {
			if err := sc.append(chunk[:n]); err != nil {
				return err
			}
			sc.drain(func(line []byte) {
				if fragment, ok := decodeLine(line); ok {
					sink.emit(fragment)
				}
			})
			if sc.full() {
				return ErrStreamBufferOverflow
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("stream interrupted: %w", readErr)
		}
	}

	if sink.err != nil {
		logger.Get().Warnf("output write failed: %v", sink.err)
	}
	if reportUsage {
		dim := color.New(color.FgHiBlack)
		dim.Fprintln(os.Stderr, "\nToken usage unavailable in streaming mode")
	}
	return nil
}
