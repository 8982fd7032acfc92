package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeModelJSON parses the model reply, tolerating prose or code fences
// around the first top-level object.
func decodeModelJSON(content string, dst any) error {
	s := strings.TrimSpace(content)
	if err := json.Unmarshal([]byte(s), dst); err == nil {
		return nil
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON object found in model output (len=%d)", len(s))
	}

	if err := json.Unmarshal([]byte(s[start:end+1]), dst); err != nil {
		return fmt.Errorf("unmarshal extracted JSON: %w", err)
	}
	return nil
}
