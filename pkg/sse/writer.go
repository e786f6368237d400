package sse

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteEvent serializes v as JSON and writes it as a single SSE data frame:
//
//	data: <json>\n\n
//
// The JSON encoding never contains raw newlines, so each frame is exactly one
// data line followed by a blank line.
func WriteEvent(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal sse event: %w", err)
	}

	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, dataPrefix...)
	frame = append(frame, ' ')
	frame = append(frame, payload...)
	frame = append(frame, '\n', '\n')

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write sse event: %w", err)
	}
	return nil
}
