package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrorResponse is the JSON body returned by the chat endpoint on failure.
type ErrorResponse struct {
	Message string `json:"message"`
}

// ExtractErrorMessage pulls a human readable message out of an error
// response body. It tries, in order, a top-level "message" string, an "error"
// string, an "error.message" string and finally the raw body text. When
// nothing usable is present a generic status-coded message is returned.
func ExtractErrorMessage(body []byte, status int) string {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err == nil {
		if msg, ok := parsed["message"].(string); ok {
			return msg
		}

		switch e := parsed["error"].(type) {
		case string:
			return e
		case map[string]any:
			if msg, ok := e["message"].(string); ok {
				return msg
			}
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}

	return fmt.Sprintf("Request failed with status %d", status)
}
