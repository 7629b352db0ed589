package atrace

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"regexp"
)

var (
	traceMarker    = []byte("\nTRACE:")
	tracerHeader   = []byte("# tracer")
	traceDataOpen  = regexp.MustCompile(`<script class="trace-data"[^>]*>`)
	traceDataClose = []byte("</script>")
	llvmSuffix     = regexp.MustCompile(`tracing_mark_write\.llvm\.\d+:`)
	bufferStarted  = regexp.MustCompile(`(?m)^#+ CPU \d+ buffer started`)
)

// Unwrap turns a raw capture into plain ftrace text. It accepts plain text,
// a systrace HTML page, or raw atrace output with a TRACE: marker and an
// optionally zlib-compressed body.
func Unwrap(data []byte) ([]byte, error) {
	if block, ok := extractHTML(data); ok {
		data = block
	}

	if idx := bytes.Index(data, traceMarker); idx >= 0 {
		data = data[idx+len(traceMarker):]
		data = bytes.TrimPrefix(data, []byte("\r\n"))
		data = bytes.TrimPrefix(data, []byte("\n"))

		if !bytes.HasPrefix(data, tracerHeader) {
			inflated, err := inflate(data)
			if err != nil {
				return nil, err
			}

			data = inflated
		}
	}

	data = bytes.ReplaceAll(data, []byte("\r"), nil)
	data = llvmSuffix.ReplaceAll(data, []byte("tracing_mark_write:"))
	data = bytes.TrimLeft(data, "\n")

	return fixCircular(data), nil
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open compressed trace: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("inflate trace: %w", err)
	}

	return out, nil
}

// extractHTML returns the first systrace trace-data block holding ftrace text.
func extractHTML(data []byte) ([]byte, bool) {
	locs := traceDataOpen.FindAllIndex(data, -1)

	for _, loc := range locs {
		body := data[loc[1]:]

		end := bytes.Index(body, traceDataClose)
		if end < 0 {
			continue
		}

		block := bytes.TrimLeft(body[:end], "\r\n")
		if bytes.HasPrefix(block, tracerHeader) || bytes.Contains(block, traceMarker) {
			return block, true
		}
	}

	return nil, false
}

// fixCircular drops data recorded before the most recent per-CPU buffer
// restart, keeping the leading '#' header lines.
func fixCircular(data []byte) []byte {
	locs := bufferStarted.FindAllIndex(data, -1)
	if len(locs) == 0 {
		return data
	}

	last := locs[len(locs)-1][0]

	headerEnd := 0
	for headerEnd < len(data) && data[headerEnd] == '#' {
		nl := bytes.IndexByte(data[headerEnd:], '\n')
		if nl < 0 {
			headerEnd = len(data)

			break
		}

		headerEnd += nl + 1
	}

	if last <= headerEnd {
		return data
	}

	out := make([]byte, 0, headerEnd+len(data)-last)
	out = append(out, data[:headerEnd]...)

	return append(out, data[last:]...)
}
